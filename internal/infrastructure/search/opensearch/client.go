// Package opensearch maintains the full-text index over merged threats.
package opensearch

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/turtacn/ThreatCanvas/internal/config"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ThreatCanvas/pkg/errors"
)

// NewClient builds an OpenSearch client and verifies the cluster responds.
func NewClient(ctx context.Context, cfg config.OpenSearchConfig, log logging.Logger) (*opensearch.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "opensearch.addresses is required")
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.User,
		Password:  cfg.Password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to create opensearch client")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "opensearch unreachable")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, errors.New(errors.ErrCodeExternalService, "opensearch ping failed").WithDetail(res.Status())
	}

	log.Info("connected to opensearch", logging.Any("addresses", cfg.Addresses))
	return client, nil
}
