// Package minio stores generated report artifacts in object storage.
package minio

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/ThreatCanvas/internal/config"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ThreatCanvas/pkg/errors"
)

// NewClient connects to MinIO (or any S3-compatible endpoint) and ensures
// the configured bucket exists.
func NewClient(ctx context.Context, cfg config.MinIOConfig, log logging.Logger) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to create minio client")
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "minio unreachable")
	}
	if !exists {
		if err := client.MakeBucket(checkCtx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to create bucket")
		}
		log.Info("created report bucket", logging.String("bucket", cfg.Bucket))
	}

	log.Info("connected to minio", logging.String("endpoint", cfg.Endpoint), logging.String("bucket", cfg.Bucket))
	return client, nil
}
