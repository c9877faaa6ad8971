package upload

import (
	"context"
	"fmt"
	"io"
	"net/url"

	gcs "cloud.google.com/go/storage"
)

// GCSBackend 把视频写入 Cloud Storage 并设为公开可读，URL 直接给前端播放。
type GCSBackend struct {
	client *gcs.Client
	bucket string
}

func NewGCSBackend(ctx context.Context, bucket string) (*GCSBackend, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSBackend{client: c, bucket: bucket}, nil
}

func (b *GCSBackend) Close() error { return b.client.Close() }

func (b *GCSBackend) Save(ctx context.Context, name, contentType string, r io.Reader) (string, string, error) {
	obj := b.client.Bucket(b.bucket).Object(name)

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", "", err
	}
	if err := w.Close(); err != nil {
		return "", "", err
	}
	if err := obj.ACL().Set(ctx, gcs.AllUsers, gcs.RoleReader); err != nil {
		return "", "", err
	}
	return fmt.Sprintf("gs://%s/%s", b.bucket, name), fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.bucket, url.PathEscape(name)), nil
}

func (b *GCSBackend) Delete(ctx context.Context, name string) error {
	return b.client.Bucket(b.bucket).Object(name).Delete(ctx)
}
