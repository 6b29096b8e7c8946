package minio

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ThreatCanvas/pkg/errors"
)

// ReportStore persists rendered report artifacts and hands out presigned
// download links so report bytes never flow back through the API server.
type ReportStore struct {
	client        *minio.Client
	bucket        string
	presignExpiry time.Duration
	logger        logging.Logger
}

func NewReportStore(client *minio.Client, bucket string, presignExpiry time.Duration, logger logging.Logger) *ReportStore {
	if presignExpiry <= 0 {
		presignExpiry = 24 * time.Hour
	}
	return &ReportStore{client: client, bucket: bucket, presignExpiry: presignExpiry, logger: logger}
}

// objectKey namespaces report artifacts by model.
func objectKey(modelID, reportID, format string) string {
	return fmt.Sprintf("reports/%s/%s.%s", modelID, reportID, format)
}

// Put stores one rendered report and returns its object key.
func (s *ReportStore) Put(ctx context.Context, modelID, reportID, format, contentType string, data []byte) (string, error) {
	key := objectKey(modelID, reportID, format)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeReportExportFailed, "failed to store report artifact")
	}
	s.logger.Info("stored report artifact",
		logging.String("key", key), logging.Int("bytes", len(data)))
	return key, nil
}

// PresignedURL returns a time-limited download link for a stored artifact.
func (s *ReportStore) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignExpiry, url.Values{})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeReportExportFailed, "failed to presign report url")
	}
	return u.String(), nil
}

// Delete removes a stored artifact.
func (s *ReportStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeReportExportFailed, "failed to delete report artifact")
	}
	return nil
}
