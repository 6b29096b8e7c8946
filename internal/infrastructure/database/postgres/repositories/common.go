// Package repositories provides the PostgreSQL-backed implementations of
// the threatmodel domain ports.
package repositories

import (
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// modelColumns is the canonical column list for threat_models selects; keep
// in sync with scanModel.
const modelColumns = "id, name, description, status, model_version, response_text, merge_metadata, created_by, created_at, updated_at"

const threatColumns = "id, model_id, title, description, mitigation, impact, likelihood, risk_score, source, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*threatmodel.ThreatModel, error) {
	var (
		m       threatmodel.ThreatModel
		mdBytes []byte
	)
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Status, &m.ModelVersion,
		&m.ResponseText, &mdBytes, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(mdBytes) > 0 {
		md := &threatmodel.MergeMetadata{}
		if err := json.Unmarshal(mdBytes, md); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "corrupt merge_metadata")
		}
		m.MergeMetadata = md
	}
	return &m, nil
}

func scanThreat(row rowScanner) (threatmodel.Threat, error) {
	var t threatmodel.Threat
	err := row.Scan(&t.ID, &t.ModelID, &t.Title, &t.Description, &t.Mitigation,
		&t.Impact, &t.Likelihood, &t.RiskScore, &t.Source, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// invalidTextRepresentation is the PostgreSQL error class raised when a
// value cannot be cast, most commonly a malformed UUID literal reaching a
// uuid column.
const invalidTextRepresentation = "22P02"

// mapModelError normalizes driver errors for threat_models lookups: missing
// rows and malformed identifiers both surface as not-found class errors.
func mapModelError(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.New(apperrors.ErrCodeModelNotFound, msg)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation {
		return apperrors.Wrap(err, apperrors.ErrCodeMalformedModelID, msg)
	}
	return apperrors.Wrap(err, apperrors.CodeDatabaseError, msg)
}
