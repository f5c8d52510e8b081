package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"driveshare/config"
	"driveshare/core/utils"
)

var ErrNotFound = errors.New("blob not found")

type UploadResult struct {
	Size int64 `json:"size"`
}

// Store is the blob backend documents and signatures are kept in.
type Store interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (UploadResult, error)
	Download(ctx context.Context, key string) ([]byte, error)
	SignedURL(ctx context.Context, key, filename string, ttl time.Duration, forceDownload bool) (string, error)
	Remove(ctx context.Context, key string) error
	RemoveMany(ctx context.Context, keys []string) error
	ReadStream(ctx context.Context, key string) (io.ReadCloser, error)
}

// New builds the store selected by cfg.Storage.Driver.
func New(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (Store, error) {
	switch cfg.Storage.Driver {
	case "", "minio", "s3":
		return NewMinioStore(ctx, cfg.Storage, logger)
	case "local":
		return NewLocalStore(cfg.Storage.LocalDir, cfg.Auth.JWTSecret, "/api/blobs")
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
