// API server entry point for ThreatCanvas.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/turtacn/ThreatCanvas/internal/application/assistant"
	"github.com/turtacn/ThreatCanvas/internal/application/merge"
	"github.com/turtacn/ThreatCanvas/internal/application/ragingest"
	"github.com/turtacn/ThreatCanvas/internal/application/reporting"
	tmservice "github.com/turtacn/ThreatCanvas/internal/application/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/config"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres/repositories"
	redisinfra "github.com/turtacn/ThreatCanvas/internal/infrastructure/database/redis"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	prommetrics "github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/search/opensearch"
	miniostore "github.com/turtacn/ThreatCanvas/internal/infrastructure/storage/minio"
	httpserver "github.com/turtacn/ThreatCanvas/internal/interfaces/http"
	"github.com/turtacn/ThreatCanvas/internal/interfaces/http/handlers"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	migrate := flag.Bool("migrate", true, "apply pending database migrations on startup")
	flag.Parse()

	if err := run(*configPath, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("starting ThreatCanvas API server",
		logging.String("version", config.Version),
		logging.Int("port", cfg.Server.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot-reload the log level when the config file changes; everything else
	// requires a restart.
	if _, statErr := os.Stat(configPath); statErr == nil {
		config.Watch(configPath, func(next *config.Config) {
			logging.SetLevel(logger, next.Log.Level)
			logger.Info("configuration reloaded", logging.String("log_level", next.Log.Level))
		})
	}

	if migrate {
		if err := postgres.RunMigrations(cfg.Database.URL(), cfg.Database.MigrationPath); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	pool, err := postgres.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := prommetrics.NewMetrics(registry)

	health := map[string]handlers.Pinger{
		"postgres": handlers.PingerFunc(pool.Ping),
	}

	// Optional read cache.
	var cache redisinfra.Cache
	if cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close() //nolint:errcheck
		cache = redisinfra.NewCache(client, cfg.Redis.KeyPrefix, cfg.Redis.DefaultTTL, logger)
		health["redis"] = handlers.PingerFunc(cache.Ping)
	}

	// Optional merge-event producer.
	var notifier merge.Notifier
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, logger)
		defer producer.Close() //nolint:errcheck
		notifier = kafka.NewMergeNotifier(producer, logger)
	}

	repo := repositories.NewThreatModelRepository(pool, logger)
	mergeStore := repositories.NewMergeStore(pool, logger)
	chunkRepo := repositories.NewRAGChunkRepository(pool, logger)

	modelSvc := tmservice.NewService(repo, cache, logger)
	mergeSvc := merge.NewService(mergeStore, notifier, metrics, logger)
	ingestSvc := ragingest.NewService(repo, chunkRepo, cfg.RAG.ChunkSize, logger)

	// Optional threat search index.
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

	// Optional report artifact store.
	var artifacts reporting.ArtifactStore
	if cfg.MinIO.Enabled {
		minioClient, err := miniostore.NewClient(ctx, cfg.MinIO, logger)
		if err != nil {
			return fmt.Errorf("connect minio: %w", err)
		}
		artifacts = miniostore.NewReportStore(minioClient, cfg.MinIO.Bucket, cfg.MinIO.PresignExpiry, logger)
	}
	reportSvc := reporting.NewService(modelSvc, artifacts, logger)

	// LLM assistant.  Missing provider credentials disable the assistant
	// routes (503) rather than failing startup.
	var assistantSvc assistant.Service
	if provider, err := assistant.NewProvider(cfg.Assistant); err != nil {
		logger.Warn("assistant disabled", logging.Err(err))
	} else {
		assistantSvc = assistant.NewService(provider, modelSvc, metrics, cfg.Assistant.RequestTimeout, logger)
	}

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Registry:     registry,
		ThreatModels: handlers.NewThreatModelHandler(modelSvc),
		Merge:        handlers.NewMergeHandler(mergeSvc, modelSvc),
		Assistant:    handlers.NewAssistantHandler(assistantSvc),
		Reports:      handlers.NewReportHandler(reportSvc, ingestSvc),
		Search:       handlers.NewSearchHandler(indexer),
		Health:       handlers.NewHealthHandler(health),
	})

	srv := httpserver.NewServer(cfg.Server, router, logger)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// loadConfig prefers the config file but falls back to environment variables
// when the default file is absent, which is the containerised path.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if path != defaultConfigPath {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return config.LoadFromEnv()
	}
	return config.Load(path)
}
