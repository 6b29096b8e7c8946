// Background worker entry point for ThreatCanvas.  The worker consumes merge
// events and refreshes the derived stores: the OpenSearch threat index and the
// RAG chunk table.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/turtacn/ThreatCanvas/internal/application/ragingest"
	"github.com/turtacn/ThreatCanvas/internal/config"
	domain "github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/search/opensearch"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka must be enabled for the worker")
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("starting ThreatCanvas worker", logging.String("version", config.Version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	repo := repositories.NewThreatModelRepository(pool, logger)
	chunkRepo := repositories.NewRAGChunkRepository(pool, logger)
	ingest := ragingest.NewService(repo, chunkRepo, cfg.RAG.ChunkSize, logger)

	var indexer *opensearch.ThreatIndexer
	if cfg.OpenSearch.Enabled {
		osClient, err := opensearch.NewClient(ctx, cfg.OpenSearch, logger)
		if err != nil {
			return fmt.Errorf("connect opensearch: %w", err)
		}
		indexer = opensearch.NewThreatIndexer(osClient, cfg.OpenSearch.IndexPrefix, logger)
		if err := indexer.EnsureIndex(ctx); err != nil {
			return fmt.Errorf("ensure threat index: %w", err)
		}
	}

	refresher := &mergeRefresher{
		repo:    repo,
		ingest:  ingest,
		indexer: indexer,
		logger:  logger.Named("refresher"),
	}

	consumer := kafka.NewConsumer(cfg.Kafka, logger.Named("consumer"))
	defer consumer.Close() //nolint:errcheck

	logger.Info("consuming merge events", logging.String("topic", kafka.TopicModelMerged))
	if err := consumer.Run(ctx, refresher.Handle); err != nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}

// mergeRefresher rebuilds the derived stores for a merged model.
type mergeRefresher struct {
	repo    domain.Repository
	ingest  ragingest.Service
	indexer *opensearch.ThreatIndexer
	logger  logging.Logger
}

// Handle re-indexes the model's threats and re-ingests its RAG chunks.  A
// model deleted between the merge and this event is treated as handled.
func (r *mergeRefresher) Handle(ctx context.Context, ev kafka.MergeEvent) error {
	modelID, err := uuid.Parse(ev.ModelID)
	if err != nil {
		r.logger.Warn("dropping event with malformed model id", logging.String("model_id", ev.ModelID))
		return nil
	}

	if r.indexer != nil {
		model, err := r.repo.GetByID(ctx, modelID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				r.logger.Info("merged model no longer exists, skipping refresh",
					logging.String("model_id", ev.ModelID))
				return nil
			}
			return err
		}
		threats, err := r.repo.ListThreats(ctx, modelID)
		if err != nil {
			return err
		}
		if err := r.indexer.DeleteModelThreats(ctx, ev.ModelID); err != nil {
			return err
		}
		if err := r.indexer.IndexModelThreats(ctx, model, threats); err != nil {
			return err
		}
	}

	result, err := r.ingest.IngestModel(ctx, ev.ModelID, true)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	r.logger.Info("refreshed derived stores after merge",
		logging.String("model_id", ev.ModelID),
		logging.String("model_version", ev.ModelVersion),
		logging.Int("chunks", result.Chunks),
		logging.Int("chunks_inserted", result.Inserted),
	)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if path != defaultConfigPath {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return config.LoadFromEnv()
	}
	return config.Load(path)
}
