package threatmodel

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

type mockRepo struct {
	models  map[uuid.UUID]*domain.ThreatModel
	threats map[uuid.UUID][]domain.Threat
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		models:  map[uuid.UUID]*domain.ThreatModel{},
		threats: map[uuid.UUID][]domain.Threat{},
	}
}

func (r *mockRepo) Create(_ context.Context, m *domain.ThreatModel) error {
	for _, existing := range r.models {
		if existing.Name == m.Name {
			return apperrors.New(apperrors.ErrCodeModelAlreadyExists, "threat model already exists")
		}
	}
	r.models[m.ID] = m
	return nil
}

func (r *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.ThreatModel, error) {
	m, ok := r.models[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeModelNotFound, "threat model not found")
	}
	return m, nil
}

func (r *mockRepo) GetDetail(ctx context.Context, id uuid.UUID) (*domain.ModelDetail, error) {
	m, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.ModelDetail{ThreatModel: *m, Threats: r.threats[id]}, nil
}

func (r *mockRepo) List(_ context.Context, f domain.ListFilter) ([]domain.ModelSummary, int, error) {
	var out []domain.ModelSummary
	for _, m := range r.models {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		out = append(out, domain.ModelSummary{ThreatModel: *m, ThreatCount: len(r.threats[m.ID])})
	}
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (r *mockRepo) Update(_ context.Context, m *domain.ThreatModel) error {
	if _, ok := r.models[m.ID]; !ok {
		return apperrors.New(apperrors.ErrCodeModelNotFound, "threat model not found")
	}
	r.models[m.ID] = m
	return nil
}

func (r *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.models[id]; !ok {
		return apperrors.New(apperrors.ErrCodeModelNotFound, "threat model not found")
	}
	delete(r.models, id)
	delete(r.threats, id)
	return nil
}

func (r *mockRepo) ListThreats(_ context.Context, modelID uuid.UUID) ([]domain.Threat, error) {
	return r.threats[modelID], nil
}

func (r *mockRepo) ReplaceThreats(_ context.Context, modelID uuid.UUID, threats []domain.Threat) error {
	r.threats[modelID] = threats
	return nil
}

func newTestService(repo *mockRepo) Service {
	return NewService(repo, nil, logging.NewNopLogger())
}

func TestCreateExtractsThreats(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	detail, err := svc.Create(context.Background(), &CreateInput{
		Name:      "Payment Service",
		CreatedBy: "analyst@example.com",
		ResponseText: `## Threat: Card Skimming

**Description:** Malicious script exfiltrates card numbers from the checkout page.

**Mitigation:** Subresource integrity and CSP.
`,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusDraft, detail.Status)
	assert.Equal(t, "1.0", detail.ModelVersion)
	require.Len(t, detail.Threats, 1)
	assert.Equal(t, "Card Skimming", detail.Threats[0].Title)
	assert.GreaterOrEqual(t, detail.Threats[0].RiskScore, 1)
	assert.LessOrEqual(t, detail.Threats[0].RiskScore, 100)
}

func TestCreateRequiresName(t *testing.T) {
	svc := newTestService(newMockRepo())
	_, err := svc.Create(context.Background(), &CreateInput{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
}

func TestGetMalformedID(t *testing.T) {
	svc := newTestService(newMockRepo())
	_, err := svc.Get(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMalformedModelID, apperrors.GetCode(err))
}

func TestUpdateReextractsOnContentChange(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	detail, err := svc.Create(context.Background(), &CreateInput{
		Name:         "API Gateway",
		ResponseText: "## Threat: Rate Limit Bypass\n\nHeaders spoofing defeats per-client limits.\n",
	})
	require.NoError(t, err)
	require.Len(t, detail.Threats, 1)

	newText := "## Threat: Header Injection\n\nUnvalidated headers reach the upstream request.\n"
	updated, err := svc.Update(context.Background(), &UpdateInput{
		ID:           detail.ID.String(),
		ResponseText: &newText,
	})
	require.NoError(t, err)
	require.Len(t, updated.Threats, 1)
	assert.Equal(t, "Header Injection", updated.Threats[0].Title)
}

func TestListPaging(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	for _, name := range []string{"Model A", "Model B", "Model C"} {
		_, err := svc.Create(context.Background(), &CreateInput{Name: name})
		require.NoError(t, err)
	}

	res, err := svc.List(context.Background(), &ListInput{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.TotalPages)
	assert.Len(t, res.Models, 2)
}

func TestDeleteMissingModel(t *testing.T) {
	svc := newTestService(newMockRepo())
	err := svc.Delete(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
