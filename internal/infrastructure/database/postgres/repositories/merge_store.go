package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// MergeStore implements threatmodel.MergeStore: one pgx transaction per
// merge, rolled back in full on any error.
type MergeStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

func NewMergeStore(pool *pgxpool.Pool, logger logging.Logger) *MergeStore {
	return &MergeStore{pool: pool, logger: logger}
}

var _ threatmodel.MergeStore = (*MergeStore)(nil)

func (s *MergeStore) WithTx(ctx context.Context, fn func(threatmodel.MergeTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to begin merge transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&mergeTx{tx: tx}); err != nil {
		s.logger.Warn("merge transaction rolled back", logging.Err(err))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to commit merge transaction")
	}
	return nil
}

type mergeTx struct {
	tx pgx.Tx
}

func (m *mergeTx) GetModelForUpdate(ctx context.Context, id uuid.UUID) (*threatmodel.ThreatModel, error) {
	row := m.tx.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM threat_models WHERE id = $1 FOR UPDATE`, id)
	tm, err := scanModel(row)
	if err != nil {
		return nil, mapModelError(err, "primary threat model not found")
	}
	return tm, nil
}

func (m *mergeTx) GetModel(ctx context.Context, id uuid.UUID) (*threatmodel.ThreatModel, error) {
	row := m.tx.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM threat_models WHERE id = $1`, id)
	tm, err := scanModel(row)
	if err != nil {
		return nil, mapModelError(err, "threat model not found")
	}
	return tm, nil
}

func (m *mergeTx) ListThreats(ctx context.Context, modelID uuid.UUID) ([]threatmodel.Threat, error) {
	rows, err := m.tx.Query(ctx,
		`SELECT `+threatColumns+` FROM threats WHERE model_id = $1 ORDER BY created_at, id`, modelID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list threats")
	}
	defer rows.Close()

	var out []threatmodel.Threat
	for rows.Next() {
		t, err := scanThreat(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to scan threat row")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (m *mergeTx) InsertThreat(ctx context.Context, t *threatmodel.Threat) error {
	_, err := m.tx.Exec(ctx, `
		INSERT INTO threats (`+threatColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.ModelID, t.Title, t.Description, t.Mitigation,
		t.Impact, t.Likelihood, t.RiskScore, t.Source, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to insert threat")
	}
	return nil
}

func (m *mergeTx) DeleteThreats(ctx context.Context, modelID uuid.UUID) error {
	if _, err := m.tx.Exec(ctx, `DELETE FROM threats WHERE model_id = $1`, modelID); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete threats")
	}
	return nil
}

func (m *mergeTx) ListThreatSafeguards(ctx context.Context, threatID uuid.UUID) ([]threatmodel.SafeguardLink, error) {
	rows, err := m.tx.Query(ctx, `
		SELECT s.id, s.model_id, s.title, s.description, s.created_at, ts.effectiveness
		FROM threat_safeguards ts
		JOIN safeguards s ON s.id = ts.safeguard_id
		WHERE ts.threat_id = $1
		ORDER BY s.title`, threatID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list threat safeguards")
	}
	defer rows.Close()

	var out []threatmodel.SafeguardLink
	for rows.Next() {
		var link threatmodel.SafeguardLink
		err := rows.Scan(&link.ID, &link.ModelID, &link.Title, &link.Description,
			&link.CreatedAt, &link.Effectiveness)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to scan safeguard row")
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func (m *mergeTx) FindSafeguardByTitle(ctx context.Context, modelID uuid.UUID, title string) (*threatmodel.Safeguard, error) {
	var s threatmodel.Safeguard
	err := m.tx.QueryRow(ctx, `
		SELECT id, model_id, title, description, created_at
		FROM safeguards
		WHERE model_id = $1 AND lower(title) = lower($2)`, modelID, title).
		Scan(&s.ID, &s.ModelID, &s.Title, &s.Description, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeNotFound, "safeguard not found").WithDetail(title)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to find safeguard")
	}
	return &s, nil
}

func (m *mergeTx) InsertSafeguard(ctx context.Context, s *threatmodel.Safeguard) error {
	_, err := m.tx.Exec(ctx, `
		INSERT INTO safeguards (id, model_id, title, description, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.ModelID, s.Title, s.Description, s.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to insert safeguard")
	}
	return nil
}

func (m *mergeTx) LinkSafeguard(ctx context.Context, threatID, safeguardID uuid.UUID, effectiveness int) error {
	_, err := m.tx.Exec(ctx, `
		INSERT INTO threat_safeguards (threat_id, safeguard_id, effectiveness)
		VALUES ($1, $2, $3)
		ON CONFLICT (threat_id, safeguard_id) DO NOTHING`,
		threatID, safeguardID, effectiveness)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to link safeguard")
	}
	return nil
}

func (m *mergeTx) UpdateModelContent(ctx context.Context, id uuid.UUID, responseText string) error {
	tag, err := m.tx.Exec(ctx, `
		UPDATE threat_models SET response_text = $2, updated_at = now() WHERE id = $1`,
		id, responseText)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to update model content")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.ErrCodeModelNotFound, "threat model not found").WithDetail(id.String())
	}
	return nil
}

func (m *mergeTx) FinalizeMerge(ctx context.Context, id uuid.UUID, newVersion string, md *threatmodel.MergeMetadata) error {
	mdBytes, err := marshalMetadata(md)
	if err != nil {
		return err
	}
	tag, err := m.tx.Exec(ctx, `
		UPDATE threat_models
		SET model_version = $2, status = $3, merge_metadata = $4, updated_at = now()
		WHERE id = $1`,
		id, newVersion, threatmodel.StatusDraft, mdBytes)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to finalize merge")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.ErrCodeModelNotFound, "primary threat model disappeared during merge")
	}
	return nil
}
