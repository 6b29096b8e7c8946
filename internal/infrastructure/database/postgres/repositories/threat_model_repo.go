package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// ThreatModelRepository implements threatmodel.Repository on pgx.
type ThreatModelRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

func NewThreatModelRepository(pool *pgxpool.Pool, logger logging.Logger) *ThreatModelRepository {
	return &ThreatModelRepository{pool: pool, logger: logger}
}

var _ threatmodel.Repository = (*ThreatModelRepository)(nil)

func (r *ThreatModelRepository) Create(ctx context.Context, m *threatmodel.ThreatModel) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = threatmodel.StatusDraft
	}
	if m.ModelVersion == "" {
		m.ModelVersion = "1.0"
	}

	mdBytes, err := marshalMetadata(m.MergeMetadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO threat_models (`+modelColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.Name, m.Description, m.Status, m.ModelVersion,
		m.ResponseText, mdBytes, m.CreatedBy, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.New(apperrors.ErrCodeModelAlreadyExists, "threat model already exists").WithDetail(m.Name)
		}
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to create threat model")
	}
	return nil
}

func (r *ThreatModelRepository) GetByID(ctx context.Context, id uuid.UUID) (*threatmodel.ThreatModel, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+modelColumns+` FROM threat_models WHERE id = $1`, id)
	m, err := scanModel(row)
	if err != nil {
		return nil, mapModelError(err, "threat model not found")
	}
	return m, nil
}

func (r *ThreatModelRepository) GetDetail(ctx context.Context, id uuid.UUID) (*threatmodel.ModelDetail, error) {
	m, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	threats, err := r.ListThreats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &threatmodel.ModelDetail{ThreatModel: *m, Threats: threats}, nil
}

func (r *ThreatModelRepository) List(ctx context.Context, f threatmodel.ListFilter) ([]threatmodel.ModelSummary, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("tm.status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("tm.name ILIKE $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM threat_models tm`+cond, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to count threat models")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query := `
		SELECT tm.id, tm.name, tm.description, tm.status, tm.model_version,
		       tm.response_text, tm.merge_metadata, tm.created_by, tm.created_at, tm.updated_at,
		       COUNT(t.id) AS threat_count,
		       COALESCE(AVG(t.risk_score), 0) AS avg_risk_score
		FROM threat_models tm
		LEFT JOIN threats t ON t.model_id = tm.id` + cond + `
		GROUP BY tm.id
		ORDER BY tm.updated_at DESC
		LIMIT $` + fmt.Sprint(len(args)-1) + ` OFFSET $` + fmt.Sprint(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list threat models")
	}
	defer rows.Close()

	var out []threatmodel.ModelSummary
	for rows.Next() {
		var (
			s       threatmodel.ModelSummary
			mdBytes []byte
		)
		err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Status, &s.ModelVersion,
			&s.ResponseText, &mdBytes, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
			&s.ThreatCount, &s.AvgRiskScore)
		if err != nil {
			return nil, 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to scan threat model row")
		}
		if len(mdBytes) > 0 {
			md := &threatmodel.MergeMetadata{}
			if err := json.Unmarshal(mdBytes, md); err == nil {
				s.MergeMetadata = md
			}
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *ThreatModelRepository) Update(ctx context.Context, m *threatmodel.ThreatModel) error {
	m.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE threat_models
		SET name = $2, description = $3, status = $4, response_text = $5, updated_at = $6
		WHERE id = $1`,
		m.ID, m.Name, m.Description, m.Status, m.ResponseText, m.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to update threat model")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.ErrCodeModelNotFound, "threat model not found").WithDetail(m.ID.String())
	}
	return nil
}

func (r *ThreatModelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM threat_models WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to delete threat model")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.ErrCodeModelNotFound, "threat model not found").WithDetail(id.String())
	}
	return nil
}

func (r *ThreatModelRepository) ListThreats(ctx context.Context, modelID uuid.UUID) ([]threatmodel.Threat, error) {
	rows, err := r.pool.Query(ctx,
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

func (r *ThreatModelRepository) ReplaceThreats(ctx context.Context, modelID uuid.UUID, threats []threatmodel.Threat) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM threats WHERE model_id = $1`, modelID); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to clear threats")
	}
	now := time.Now().UTC()
	for i := range threats {
		t := &threats[i]
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.ModelID = modelID
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		if t.Impact == "" {
			t.Impact = threatmodel.RatingMedium
		}
		if t.Likelihood == "" {
			t.Likelihood = threatmodel.RatingMedium
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO threats (`+threatColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			t.ID, t.ModelID, t.Title, t.Description, t.Mitigation,
			t.Impact, t.Likelihood, t.RiskScore, t.Source, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to insert threat")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to commit threat replacement")
	}
	return nil
}

func marshalMetadata(md *threatmodel.MergeMetadata) ([]byte, error) {
	if md == nil {
		return nil, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode merge metadata")
	}
	return b, nil
}
