package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// RAGChunk is one content chunk of a threat model, addressed by its SHA-256
// hash so re-ingesting unchanged content is a no-op.
type RAGChunk struct {
	ID          uuid.UUID `json:"id"`
	ModelID     uuid.UUID `json:"model_id"`
	ChunkIndex  int       `json:"chunk_index"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// RAGChunkRepository stores the chunked threat-model content that backs
// retrieval for the chat assistant.
type RAGChunkRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

func NewRAGChunkRepository(pool *pgxpool.Pool, logger logging.Logger) *RAGChunkRepository {
	return &RAGChunkRepository{pool: pool, logger: logger}
}

// Upsert inserts the chunk unless an identical chunk (same model, same
// content hash) already exists.  It reports whether a row was written.
func (r *RAGChunkRepository) Upsert(ctx context.Context, c *RAGChunk) (bool, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO rag_chunks (id, model_id, chunk_index, content, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (model_id, content_hash) DO NOTHING`,
		c.ID, c.ModelID, c.ChunkIndex, c.Content, c.ContentHash, c.CreatedAt)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to upsert rag chunk")
	}
	return tag.RowsAffected() > 0, nil
}

// ListByModel returns the chunks of one model in chunk order.
func (r *RAGChunkRepository) ListByModel(ctx context.Context, modelID uuid.UUID) ([]RAGChunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, model_id, chunk_index, content, content_hash, created_at
		FROM rag_chunks WHERE model_id = $1 ORDER BY chunk_index`, modelID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list rag chunks")
	}
	defer rows.Close()

	var out []RAGChunk
	for rows.Next() {
		var c RAGChunk
		err := rows.Scan(&c.ID, &c.ModelID, &c.ChunkIndex, &c.Content, &c.ContentHash, &c.CreatedAt)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to scan rag chunk")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteByModel drops all chunks of a model, used before a full re-ingest.
func (r *RAGChunkRepository) DeleteByModel(ctx context.Context, modelID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM rag_chunks WHERE model_id = $1`, modelID); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete rag chunks")
	}
	return nil
}
