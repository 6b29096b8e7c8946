package ragingest

import (
	"context"

	"github.com/google/uuid"

	domain "github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// ChunkStore is the persistence port for retrieval chunks, implemented by
// the postgres RAGChunkRepository.
type ChunkStore interface {
	Upsert(ctx context.Context, c *repositories.RAGChunk) (bool, error)
	ListByModel(ctx context.Context, modelID uuid.UUID) ([]repositories.RAGChunk, error)
	DeleteByModel(ctx context.Context, modelID uuid.UUID) error
}

// Service ingests threat model content into the retrieval store.
type Service interface {
	IngestModel(ctx context.Context, modelID string, full bool) (*IngestResult, error)
	ModelChunks(ctx context.Context, modelID string) ([]repositories.RAGChunk, error)
}

// IngestResult reports one ingestion run.
type IngestResult struct {
	ModelID  string `json:"model_id"`
	Chunks   int    `json:"chunks"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
}

type serviceImpl struct {
	repo      domain.Repository
	chunks    ChunkStore
	chunkSize int
	logger    logging.Logger
}

// NewService builds the ingestion service.  chunkSize caps one retrieval
// chunk in runes; zero or negative falls back to the chunker default.
func NewService(repo domain.Repository, chunks ChunkStore, chunkSize int, logger logging.Logger) Service {
	return &serviceImpl{repo: repo, chunks: chunks, chunkSize: chunkSize, logger: logger}
}

// IngestModel chunks the model's Markdown and upserts the chunks.  With
// full set, existing chunks are dropped first; otherwise only chunks whose
// hash is new are written.
func (s *serviceImpl) IngestModel(ctx context.Context, modelID string, full bool) (*IngestResult, error) {
	id, err := uuid.Parse(modelID)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeMalformedModelID, "malformed threat model id").WithDetail(modelID)
	}
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if full {
		if err := s.chunks.DeleteByModel(ctx, id); err != nil {
			return nil, err
		}
	}

	result := &IngestResult{ModelID: modelID}
	for _, chunk := range SplitChunks(m.ResponseText, s.chunkSize) {
		inserted, err := s.chunks.Upsert(ctx, &repositories.RAGChunk{
			ModelID:     id,
			ChunkIndex:  chunk.Index,
			Content:     chunk.Text,
			ContentHash: chunk.Hash,
		})
		if err != nil {
			return nil, err
		}
		result.Chunks++
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	s.logger.Info("model content ingested",
		logging.String("model_id", modelID),
		logging.Int("chunks", result.Chunks),
		logging.Int("inserted", result.Inserted),
	)
	return result, nil
}

func (s *serviceImpl) ModelChunks(ctx context.Context, modelID string) ([]repositories.RAGChunk, error) {
	id, err := uuid.Parse(modelID)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeMalformedModelID, "malformed threat model id").WithDetail(modelID)
	}
	return s.chunks.ListByModel(ctx, id)
}
