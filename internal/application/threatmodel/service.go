// Package threatmodel provides the application service for threat model
// CRUD.  Reads of a single model go through the Redis cache; writes
// invalidate it.
package threatmodel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ThreatCanvas/internal/domain/threat"
	domain "github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/database/redis"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

const detailCacheTTL = 5 * time.Minute

// Service is the CRUD boundary for threat models.
type Service interface {
	Create(ctx context.Context, input *CreateInput) (*domain.ModelDetail, error)
	Get(ctx context.Context, id string) (*domain.ThreatModel, error)
	GetDetail(ctx context.Context, id string) (*domain.ModelDetail, error)
	List(ctx context.Context, input *ListInput) (*ListResult, error)
	Update(ctx context.Context, input *UpdateInput) (*domain.ModelDetail, error)
	Delete(ctx context.Context, id string) error
	// InvalidateCache drops the cached detail for one model.  The merge
	// handler calls it after a merge commits.
	InvalidateCache(ctx context.Context, id string)
}

// CreateInput carries a new model.  Threat rows are extracted from
// ResponseText at creation time.
type CreateInput struct {
	Name         string
	Description  string
	ResponseText string
	CreatedBy    string
}

// UpdateInput carries a partial update; nil fields are left unchanged.
// Changing ResponseText re-extracts the model's threats.
type UpdateInput struct {
	ID           string
	Name         *string
	Description  *string
	Status       *string
	ResponseText *string
}

// ListInput pages and filters the model listing.
type ListInput struct {
	Status string
	Search string
	Page   int
	Size   int
}

// ListResult is one page of model summaries.
type ListResult struct {
	Models     []domain.ModelSummary `json:"models"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	Size       int                   `json:"size"`
	TotalPages int                   `json:"total_pages"`
}

type serviceImpl struct {
	repo   domain.Repository
	cache  redis.Cache
	logger logging.Logger
}

// NewService creates the threat model service.  cache may be nil.
func NewService(repo domain.Repository, cache redis.Cache, logger logging.Logger) Service {
	return &serviceImpl{repo: repo, cache: cache, logger: logger}
}

func detailCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("model:detail:%s", id)
}

func (s *serviceImpl) Create(ctx context.Context, input *CreateInput) (*domain.ModelDetail, error) {
	if input.Name == "" {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "name is required")
	}

	now := time.Now().UTC()
	m := &domain.ThreatModel{
		ID:           uuid.New(),
		Name:         input.Name,
		Description:  input.Description,
		Status:       domain.StatusDraft,
		ModelVersion: "1.0",
		ResponseText: input.ResponseText,
		CreatedBy:    input.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}

	threats := extractThreatRows(m.ID, input.ResponseText)
	if len(threats) > 0 {
		if err := s.repo.ReplaceThreats(ctx, m.ID, threats); err != nil {
			return nil, err
		}
	}

	s.logger.Info("threat model created",
		logging.String("model_id", m.ID.String()),
		logging.String("name", m.Name),
		logging.Int("threats", len(threats)),
	)
	return &domain.ModelDetail{ThreatModel: *m, Threats: threats}, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (*domain.ThreatModel, error) {
	modelID, err := parseModelID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, modelID)
}

func (s *serviceImpl) GetDetail(ctx context.Context, id string) (*domain.ModelDetail, error) {
	modelID, err := parseModelID(id)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		return s.repo.GetDetail(ctx, modelID)
	}

	var detail domain.ModelDetail
	err = s.cache.GetOrSet(ctx, detailCacheKey(modelID), &detail, detailCacheTTL,
		func(ctx context.Context) (any, error) {
			return s.repo.GetDetail(ctx, modelID)
		})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func (s *serviceImpl) List(ctx context.Context, input *ListInput) (*ListResult, error) {
	page := input.Page
	if page <= 0 {
		page = 1
	}
	size := input.Size
	if size <= 0 || size > 100 {
		size = 20
	}

	models, total, err := s.repo.List(ctx, domain.ListFilter{
		Status: input.Status,
		Search: input.Search,
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Models:     models,
		Total:      total,
		Page:       page,
		Size:       size,
		TotalPages: (total + size - 1) / size,
	}, nil
}

func (s *serviceImpl) Update(ctx context.Context, input *UpdateInput) (*domain.ModelDetail, error) {
	modelID, err := parseModelID(input.ID)
	if err != nil {
		return nil, err
	}
	m, err := s.repo.GetByID(ctx, modelID)
	if err != nil {
		return nil, err
	}

	reextract := false
	if input.Name != nil {
		m.Name = *input.Name
	}
	if input.Description != nil {
		m.Description = *input.Description
	}
	if input.Status != nil {
		m.Status = *input.Status
	}
	if input.ResponseText != nil && *input.ResponseText != m.ResponseText {
		m.ResponseText = *input.ResponseText
		reextract = true
	}

	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	if reextract {
		if err := s.repo.ReplaceThreats(ctx, modelID, extractThreatRows(modelID, m.ResponseText)); err != nil {
			return nil, err
		}
	}
	s.InvalidateCache(ctx, input.ID)

	threats, err := s.repo.ListThreats(ctx, modelID)
	if err != nil {
		return nil, err
	}
	return &domain.ModelDetail{ThreatModel: *m, Threats: threats}, nil
}

func (s *serviceImpl) Delete(ctx context.Context, id string) error {
	modelID, err := parseModelID(id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, modelID); err != nil {
		return err
	}
	s.InvalidateCache(ctx, id)
	s.logger.Info("threat model deleted", logging.String("model_id", id))
	return nil
}

func (s *serviceImpl) InvalidateCache(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	modelID, err := uuid.Parse(id)
	if err != nil {
		return
	}
	if err := s.cache.Delete(ctx, detailCacheKey(modelID)); err != nil {
		s.logger.Warn("cache invalidation failed",
			logging.String("model_id", id), logging.Err(err))
	}
}

func parseModelID(id string) (uuid.UUID, error) {
	modelID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperrors.New(apperrors.ErrCodeMalformedModelID, "malformed threat model id").WithDetail(id)
	}
	return modelID, nil
}

// extractThreatRows turns a model's Markdown into scored threat rows.
func extractThreatRows(modelID uuid.UUID, responseText string) []domain.Threat {
	recs := threat.Extract(responseText)
	rows := make([]domain.Threat, len(recs))
	for i, rec := range recs {
		rows[i] = domain.Threat{
			ID:          uuid.New(),
			ModelID:     modelID,
			Title:       rec.Title,
			Description: rec.Description,
			Mitigation:  rec.Mitigation,
			RiskScore:   threat.ScoreRisk(rec.Description),
		}
	}
	return rows
}
