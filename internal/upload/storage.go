package upload

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// Backend 持久化上传的视频文件，返回存储路径和前端可访问的 URL。
type Backend interface {
	Save(ctx context.Context, name, contentType string, r io.Reader) (storagePath, url string, err error)
	Delete(ctx context.Context, name string) error
}

// LocalBackend 把文件写入本地目录，由 /uploads 静态路由对外提供。
type LocalBackend struct {
	dir string
}

func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalBackend{dir: dir}, nil
}

func (b *LocalBackend) Dir() string { return b.dir }

func (b *LocalBackend) Save(ctx context.Context, name, _ string, r io.Reader) (string, string, error) {
	path := filepath.Join(b.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", "", err
	}
	if _, err := io.Copy(f, readerWithContext(ctx, r)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", "", err
	}
	return path, "/uploads/" + url.PathEscape(name), nil
}

func (b *LocalBackend) Delete(_ context.Context, name string) error {
	return os.Remove(filepath.Join(b.dir, name))
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
