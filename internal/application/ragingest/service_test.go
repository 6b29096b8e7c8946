package ragingest

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

type stubRepo struct {
	domain.Repository
	model *domain.ThreatModel
}

func (r *stubRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.ThreatModel, error) {
	if r.model == nil || r.model.ID != id {
		return nil, apperrors.New(apperrors.ErrCodeModelNotFound, "threat model not found")
	}
	return r.model, nil
}

type memChunkStore struct {
	byHash  map[string]repositories.RAGChunk
	deletes int
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{byHash: make(map[string]repositories.RAGChunk)}
}

func (s *memChunkStore) Upsert(_ context.Context, c *repositories.RAGChunk) (bool, error) {
	if _, ok := s.byHash[c.ContentHash]; ok {
		return false, nil
	}
	s.byHash[c.ContentHash] = *c
	return true, nil
}

func (s *memChunkStore) ListByModel(_ context.Context, modelID uuid.UUID) ([]repositories.RAGChunk, error) {
	var out []repositories.RAGChunk
	for _, c := range s.byHash {
		if c.ModelID == modelID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memChunkStore) DeleteByModel(_ context.Context, _ uuid.UUID) error {
	s.byHash = make(map[string]repositories.RAGChunk)
	s.deletes++
	return nil
}

func threeParagraphModel() *domain.ThreatModel {
	paras := []string{
		strings.Repeat("alpha ", 10),
		strings.Repeat("bravo ", 10),
		strings.Repeat("delta ", 10),
	}
	return &domain.ThreatModel{
		ID:           uuid.New(),
		Name:         "Payments",
		ResponseText: strings.Join(paras, "\n\n"),
	}
}

func TestIngestModelHonorsChunkSize(t *testing.T) {
	model := threeParagraphModel()
	repo := &stubRepo{model: model}

	small := NewService(repo, newMemChunkStore(), 70, logging.NewNopLogger())
	res, err := small.IngestModel(context.Background(), model.ID.String(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Chunks, "a 70-rune cap keeps each paragraph in its own chunk")
	assert.Equal(t, 3, res.Inserted)

	wide := NewService(repo, newMemChunkStore(), 0, logging.NewNopLogger())
	res, err = wide.IngestModel(context.Background(), model.ID.String(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks, "the default cap fits all three paragraphs")
}

func TestIngestModelSkipsUnchangedChunks(t *testing.T) {
	model := threeParagraphModel()
	store := newMemChunkStore()
	svc := NewService(&stubRepo{model: model}, store, 70, logging.NewNopLogger())

	_, err := svc.IngestModel(context.Background(), model.ID.String(), false)
	require.NoError(t, err)

	res, err := svc.IngestModel(context.Background(), model.ID.String(), false)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, 3, res.Skipped)
	assert.Zero(t, store.deletes)
}

func TestIngestModelFullReplacesChunks(t *testing.T) {
	model := threeParagraphModel()
	store := newMemChunkStore()
	svc := NewService(&stubRepo{model: model}, store, 70, logging.NewNopLogger())

	_, err := svc.IngestModel(context.Background(), model.ID.String(), false)
	require.NoError(t, err)

	res, err := svc.IngestModel(context.Background(), model.ID.String(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, store.deletes)
	assert.Equal(t, 3, res.Inserted, "a full ingest rewrites every chunk")
}

func TestIngestModelMalformedID(t *testing.T) {
	svc := NewService(&stubRepo{}, newMemChunkStore(), 0, logging.NewNopLogger())

	_, err := svc.IngestModel(context.Background(), "not-a-uuid", false)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMalformedModelID, apperrors.GetCode(err))
}
