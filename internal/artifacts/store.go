package artifacts

import (
	"context"
	"errors"
	"fmt"

	"greenr/internal/config"
	"greenr/internal/objectstore"
	"greenr/internal/objectstore/minio"
	"greenr/internal/objectstore/s3"
)

// ErrDisabled is returned when object storage is not enabled.
var ErrDisabled = errors.New("object storage is disabled")

// NewClient builds the configured driver without touching the network.
func NewClient(ctx context.Context, cfg config.ObjectStorage) (objectstore.Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	switch cfg.Driver {
	case config.DriverMinIO:
		return minio.New(minio.Options{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
	case config.DriverS3:
		return s3.New(ctx, s3.Options{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
	default:
		return nil, fmt.Errorf("unsupported object storage driver %q", cfg.Driver)
	}
}

// OpenStore builds the configured driver and ensures the bucket exists.
func OpenStore(ctx context.Context, cfg config.ObjectStorage) (objectstore.Client, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return client, nil
}
