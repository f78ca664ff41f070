package archive

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Uploader copies sorted frames and result tables to an S3-compatible bucket.
type Uploader struct {
	client *miniogo.Client
	bucket string
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Uploader, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Uploader{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if !exists {
		if err := u.client.MakeBucket(ctx, u.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", u.bucket, err)
		}
	}
	return nil
}

// UploadFile stores the local file under key.
func (u *Uploader) UploadFile(ctx context.Context, localPath, key string) error {
	_, err := u.client.FPutObject(ctx, u.bucket, key, localPath, miniogo.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	return nil
}

// UploadDir stores every regular file directly inside dir under prefix and
// returns how many were uploaded.
func (u *Uploader) UploadDir(ctx context.Context, dir, prefix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	uploaded := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		key := objectKey(prefix, entry.Name())
		if err := u.UploadFile(ctx, filepath.Join(dir, entry.Name()), key); err != nil {
			return uploaded, err
		}
		uploaded++
	}

	u.logger.Info("uploaded frames", "bucket", u.bucket, "prefix", prefix, "count", uploaded)
	return uploaded, nil
}

func objectKey(prefix, name string) string {
	return path.Join(filepath.ToSlash(prefix), name)
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
