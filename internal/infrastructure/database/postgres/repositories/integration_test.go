//go:build integration

// Integration tests for the PostgreSQL repositories.  They require Docker
// and are gated behind the "integration" build tag:
//
//	go test -tags integration ./internal/infrastructure/database/postgres/repositories/
package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/ThreatCanvas/internal/application/merge"
	"github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// startPostgres launches a PostgreSQL 16 container, applies the real
// migrations and returns a connected pool.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "threatcanvas_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/threatcanvas_test?sslmode=disable", host, port.Port())
	require.NoError(t, postgres.RunMigrations(dsn, "../../../../../migrations"))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func createModel(t *testing.T, repo *repositories.ThreatModelRepository, name, responseText string, threats []threatmodel.Threat) *threatmodel.ThreatModel {
	t.Helper()
	ctx := context.Background()

	m := &threatmodel.ThreatModel{Name: name, ResponseText: responseText, CreatedBy: "it"}
	require.NoError(t, repo.Create(ctx, m))
	for i := range threats {
		threats[i].ModelID = m.ID
	}
	require.NoError(t, repo.ReplaceThreats(ctx, m.ID, threats))
	return m
}

func TestThreatModelRepositoryLifecycle(t *testing.T) {
	pool := startPostgres(t)
	logger := logging.NewNopLogger()
	repo := repositories.NewThreatModelRepository(pool, logger)
	ctx := context.Background()

	m := createModel(t, repo, "web-app", "## SQL Injection\n\nInput is not sanitized.", []threatmodel.Threat{
		{Title: "SQL Injection", Description: "Input is not sanitized.", RiskScore: 70},
		{Title: "Session Fixation", Description: "Session ID survives login.", RiskScore: 45},
	})
	assert.Equal(t, threatmodel.StatusDraft, m.Status)
	assert.Equal(t, "1.0", m.ModelVersion)

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "web-app", got.Name)

	// Unique name constraint.
	err = repo.Create(ctx, &threatmodel.ThreatModel{Name: "web-app"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeModelAlreadyExists, apperrors.GetCode(err))

	summaries, total, err := repo.List(ctx, threatmodel.ListFilter{Search: "web"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].ThreatCount)
	assert.InDelta(t, 57.5, summaries[0].AvgRiskScore, 0.01)

	got.Description = "updated"
	require.NoError(t, repo.Update(ctx, got))

	require.NoError(t, repo.Delete(ctx, m.ID))
	_, err = repo.GetByID(ctx, m.ID)
	assert.True(t, apperrors.IsNotFound(err))

	// Threats are removed with the model.
	threats, err := repo.ListThreats(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, threats)
}

func TestMergeEndToEnd(t *testing.T) {
	pool := startPostgres(t)
	logger := logging.NewNopLogger()
	repo := repositories.NewThreatModelRepository(pool, logger)
	store := repositories.NewMergeStore(pool, logger)
	svc := merge.NewService(store, nil, nil, logger)
	ctx := context.Background()

	primary := createModel(t, repo, "primary", "", []threatmodel.Threat{
		{Title: "SQL Injection", Description: "Unsanitized query input.", RiskScore: 70},
	})
	source := createModel(t, repo, "source", "", []threatmodel.Threat{
		{Title: "sql injection", Description: "Unsanitized query input.", RiskScore: 80}, // dup by title
		{Title: "SSRF", Description: "Server fetches attacker-controlled URLs.", RiskScore: 65},
	})

	result, err := svc.Merge(ctx, &merge.MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{source.ID.String()},
		MergedBy:  "it",
	})
	require.NoError(t, err)

	assert.Equal(t, "1.1", result.ModelVersion)
	assert.Equal(t, 2, result.Metrics.TotalSourceThreats)
	assert.Equal(t, 1, result.Metrics.ThreatsAdded)
	assert.Equal(t, 1, result.Metrics.DuplicatesSkipped)

	merged, err := repo.GetByID(ctx, primary.ID)
	require.NoError(t, err)
	assert.Equal(t, threatmodel.StatusDraft, merged.Status)
	require.NotNil(t, merged.MergeMetadata)
	assert.Equal(t, []string{source.ID.String()}, merged.MergeMetadata.MergedFrom)
	assert.Equal(t, []string{"source"}, merged.MergeMetadata.SourceModels)
	assert.Equal(t, "it", merged.MergeMetadata.MergedBy)
	assert.Equal(t, threatmodel.MergeStrategyAutomatic, merged.MergeMetadata.MergeStrategy)

	threats, err := repo.ListThreats(ctx, primary.ID)
	require.NoError(t, err)
	require.Len(t, threats, 2)

	var ssrf *threatmodel.Threat
	for i := range threats {
		if threats[i].Title == "SSRF" {
			ssrf = &threats[i]
		}
	}
	require.NotNil(t, ssrf)
	assert.Equal(t, 65, ssrf.RiskScore)
	assert.Equal(t, "source", ssrf.Source)

	// A second merge with the same source only skips duplicates and bumps
	// the version again.
	result, err = svc.Merge(ctx, &merge.MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{source.ID.String()},
		MergedBy:  "it",
	})
	require.NoError(t, err)
	assert.Equal(t, "1.2", result.ModelVersion)
	assert.Equal(t, 0, result.Metrics.ThreatsAdded)
	assert.Equal(t, 2, result.Metrics.DuplicatesSkipped)
}

func TestMergeMissingSourceSkipped(t *testing.T) {
	pool := startPostgres(t)
	logger := logging.NewNopLogger()
	repo := repositories.NewThreatModelRepository(pool, logger)
	store := repositories.NewMergeStore(pool, logger)
	svc := merge.NewService(store, nil, nil, logger)
	ctx := context.Background()

	primary := createModel(t, repo, "primary", "", nil)
	missing := uuid.New()

	result, err := svc.Merge(ctx, &merge.MergeInput{
		PrimaryID: primary.ID.String(),
		SourceIDs: []string{missing.String()},
		MergedBy:  "it",
	})
	require.NoError(t, err)
	require.Len(t, result.SkippedSources, 1)
	assert.Equal(t, missing.String(), result.SkippedSources[0].ID)
	assert.Equal(t, 0, result.Metrics.TotalSourceThreats)
}

func TestRAGChunkRepositoryUpsert(t *testing.T) {
	pool := startPostgres(t)
	logger := logging.NewNopLogger()
	repo := repositories.NewThreatModelRepository(pool, logger)
	chunks := repositories.NewRAGChunkRepository(pool, logger)
	ctx := context.Background()

	m := createModel(t, repo, "rag-model", "## A\n\nBody.", nil)

	inserted, err := chunks.Upsert(ctx, &repositories.RAGChunk{
		ModelID:     m.ID,
		ChunkIndex:  0,
		Content:     "## A\n\nBody.",
		ContentHash: "abc123",
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same hash is a no-op.
	inserted, err = chunks.Upsert(ctx, &repositories.RAGChunk{
		ModelID:     m.ID,
		ChunkIndex:  0,
		Content:     "## A\n\nBody.",
		ContentHash: "abc123",
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := chunks.ListByModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	require.NoError(t, chunks.DeleteByModel(ctx, m.ID))
	rows, err = chunks.ListByModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
