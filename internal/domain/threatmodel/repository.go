package threatmodel

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows and pages List results.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// Repository is the CRUD port for threat models, implemented against
// PostgreSQL.  GetByID and GetDetail return a not-found application error
// when no row matches.
type Repository interface {
	Create(ctx context.Context, m *ThreatModel) error
	GetByID(ctx context.Context, id uuid.UUID) (*ThreatModel, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*ModelDetail, error)
	List(ctx context.Context, f ListFilter) ([]ModelSummary, int, error)
	Update(ctx context.Context, m *ThreatModel) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListThreats(ctx context.Context, modelID uuid.UUID) ([]Threat, error)
	// ReplaceThreats swaps the full threat set of a model atomically,
	// used when a model's Markdown is (re)extracted outside a merge.
	ReplaceThreats(ctx context.Context, modelID uuid.UUID, threats []Threat) error
}

// MergeStore opens a single transaction covering an entire merge.  The
// callback either commits as a whole or rolls back as a whole; a merge
// never leaves partial state behind.
type MergeStore interface {
	WithTx(ctx context.Context, fn func(tx MergeTx) error) error
}

// MergeTx is the set of row operations a merge performs inside its
// transaction.  GetModelForUpdate takes a row lock on the primary model so
// concurrent merges against the same primary serialize.
type MergeTx interface {
	GetModelForUpdate(ctx context.Context, id uuid.UUID) (*ThreatModel, error)
	GetModel(ctx context.Context, id uuid.UUID) (*ThreatModel, error)
	ListThreats(ctx context.Context, modelID uuid.UUID) ([]Threat, error)
	InsertThreat(ctx context.Context, t *Threat) error
	DeleteThreats(ctx context.Context, modelID uuid.UUID) error
	ListThreatSafeguards(ctx context.Context, threatID uuid.UUID) ([]SafeguardLink, error)
	FindSafeguardByTitle(ctx context.Context, modelID uuid.UUID, title string) (*Safeguard, error)
	InsertSafeguard(ctx context.Context, s *Safeguard) error
	LinkSafeguard(ctx context.Context, threatID, safeguardID uuid.UUID, effectiveness int) error
	UpdateModelContent(ctx context.Context, id uuid.UUID, responseText string) error
	FinalizeMerge(ctx context.Context, id uuid.UUID, newVersion string, md *MergeMetadata) error
}
