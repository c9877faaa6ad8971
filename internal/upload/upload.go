package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"watchparty/internal/config"
	"watchparty/internal/metrics"
	"watchparty/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// 上传校验错误，HTTP 层统一映射为 400。
var (
	ErrNoFile      = errors.New("no video file uploaded")
	ErrTooLarge    = errors.New("file too large")
	ErrInvalidType = errors.New("invalid file type. only video files are allowed")
)

// IsValidation 判断错误是否属于客户端输入问题。
func IsValidation(err error) bool {
	return errors.Is(err, ErrNoFile) || errors.Is(err, ErrTooLarge) || errors.Is(err, ErrInvalidType)
}

// Uploader 是视频记录的唯一生产者：校验文件、交给 Backend 存储并生成 models.Video。
type Uploader struct {
	backend Backend
	maxSize int64
	allowed map[string]struct{}
	now     func() time.Time
}

func NewUploader(backend Backend, maxSize int64, allowedTypes []string) *Uploader {
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(strings.TrimPrefix(t, "."))] = struct{}{}
	}
	return &Uploader{backend: backend, maxSize: maxSize, allowed: allowed, now: time.Now}
}

// New 按配置选择本地目录或 GCS 存储。
func New(ctx context.Context, cfg config.Config) (*Uploader, error) {
	var backend Backend
	switch cfg.StorageBackend {
	case "gcs":
		b, err := NewGCSBackend(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("gcs backend: %w", err)
		}
		backend = b
	default:
		b, err := NewLocalBackend(cfg.UploadPath)
		if err != nil {
			return nil, err
		}
		backend = b
	}
	log.Info().Str("backend", cfg.StorageBackend).Int64("max_size", cfg.MaxFileSize).Msg("upload storage ready")
	return NewUploader(backend, cfg.MaxFileSize, cfg.AllowedVideoTypes), nil
}

func (u *Uploader) Close() error {
	if c, ok := u.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Validate 按扩展名与大小校验，name 为客户端提供的原始文件名。
func (u *Uploader) Validate(name string, size int64) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if _, ok := u.allowed[ext]; !ok || ext == "" {
		return fmt.Errorf("%w: %q", ErrInvalidType, name)
	}
	if size > u.maxSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, size, u.maxSize)
	}
	return nil
}

// Store 校验并保存一个 multipart 文件，返回尚未加入任何房间的视频记录。
func (u *Uploader) Store(ctx context.Context, fh *multipart.FileHeader) (models.Video, error) {
	if fh == nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return models.Video{}, ErrNoFile
	}
	original := filepath.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
	if err := u.Validate(original, fh.Size); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return models.Video{}, err
	}
	f, err := fh.Open()
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return models.Video{}, err
	}
	defer f.Close()

	return u.save(ctx, original, f)
}

func (u *Uploader) save(ctx context.Context, original string, r io.Reader) (models.Video, error) {
	id := uuid.NewString()
	filename := id + "-" + original
	contentType := mime.TypeByExtension(filepath.Ext(original))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// 声明的大小可能与实际内容不符，多读一个字节用于判断是否超限。
	lr := &io.LimitedReader{R: r, N: u.maxSize + 1}
	cr := &countingReader{r: lr}
	storagePath, url, err := u.backend.Save(ctx, filename, contentType, cr)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("filename", filename).Msg("store upload")
		return models.Video{}, err
	}
	if cr.n > u.maxSize {
		if err := u.backend.Delete(ctx, filename); err != nil {
			log.Warn().Err(err).Str("filename", filename).Msg("remove oversized upload")
		}
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return models.Video{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, u.maxSize)
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	log.Info().Str("video_id", id).Str("filename", filename).Int64("size", cr.n).Msg("video uploaded")
	return models.Video{
		ID:           id,
		Filename:     filename,
		OriginalName: original,
		StoragePath:  storagePath,
		URL:          url,
		SizeBytes:    cr.n,
		UploadedAt:   u.now(),
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
