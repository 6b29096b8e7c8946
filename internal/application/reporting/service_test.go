package reporting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tmservice "github.com/turtacn/ThreatCanvas/internal/application/threatmodel"
	domain "github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

type stubModels struct {
	detail *domain.ModelDetail
}

func (s *stubModels) Create(context.Context, *tmservice.CreateInput) (*domain.ModelDetail, error) {
	return nil, nil
}
func (s *stubModels) Get(context.Context, string) (*domain.ThreatModel, error) { return nil, nil }
func (s *stubModels) GetDetail(context.Context, string) (*domain.ModelDetail, error) {
	if s.detail == nil {
		return nil, apperrors.New(apperrors.ErrCodeModelNotFound, "threat model not found")
	}
	return s.detail, nil
}
func (s *stubModels) List(context.Context, *tmservice.ListInput) (*tmservice.ListResult, error) {
	return nil, nil
}
func (s *stubModels) Update(context.Context, *tmservice.UpdateInput) (*domain.ModelDetail, error) {
	return nil, nil
}
func (s *stubModels) Delete(context.Context, string) error    { return nil }
func (s *stubModels) InvalidateCache(context.Context, string) {}

type stubStore struct {
	putCalls int
	lastKey  string
}

func (s *stubStore) Put(_ context.Context, modelID, reportID, format, _ string, _ []byte) (string, error) {
	s.putCalls++
	s.lastKey = fmt.Sprintf("reports/%s/%s.%s", modelID, reportID, format)
	return s.lastKey, nil
}

func (s *stubStore) PresignedURL(_ context.Context, key string) (string, error) {
	return "https://minio.local/" + key, nil
}

func reportDetail() *domain.ModelDetail {
	return &domain.ModelDetail{
		ThreatModel: domain.ThreatModel{
			ID:           uuid.New(),
			Name:         "Payments",
			Description:  "Payment processing platform.",
			Status:       domain.StatusDraft,
			ModelVersion: "2.0",
			MergeMetadata: &domain.MergeMetadata{
				SourceModels:  []string{"Legacy Payments"},
				MergedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
				MergedBy:      "analyst@example.com",
				MergeStrategy: domain.MergeStrategyAutomatic,
				Metrics:       domain.MergeMetrics{ThreatsAdded: 3, DuplicatesSkipped: 1},
			},
		},
		Threats: []domain.Threat{
			{Title: "Card Skimming", RiskScore: 85, Mitigation: "CSP and SRI."},
			{Title: "Replay | Attack", RiskScore: 55, Mitigation: "Nonce per request."},
		},
	}
}

func TestGenerateReport(t *testing.T) {
	svc := NewService(&stubModels{detail: reportDetail()}, nil, logging.NewNopLogger())

	report, err := svc.Generate(context.Background(), &GenerateInput{ModelID: uuid.NewString()})
	require.NoError(t, err)

	assert.Contains(t, report.Content, "# Threat Model Report: Payments")
	assert.Contains(t, report.Content, "| Card Skimming | 85 | Critical |")
	assert.Contains(t, report.Content, "Replay \\| Attack", "pipes in titles must not break the table")
	assert.Contains(t, report.Content, "## Merge History")
	assert.Contains(t, report.Content, "Legacy Payments")
	assert.NotContains(t, report.Content, "{{", "all template tokens must resolve")
	assert.Empty(t, report.DownloadURL)
}

func TestGenerateReportExport(t *testing.T) {
	store := &stubStore{}
	svc := NewService(&stubModels{detail: reportDetail()}, store, logging.NewNopLogger())

	report, err := svc.Generate(context.Background(), &GenerateInput{ModelID: uuid.NewString(), Export: true})
	require.NoError(t, err)
	assert.Equal(t, 1, store.putCalls)
	assert.Equal(t, store.lastKey, report.ObjectKey)
	assert.Equal(t, "https://minio.local/"+store.lastKey, report.DownloadURL)
}

func TestGenerateReportExportUnconfigured(t *testing.T) {
	svc := NewService(&stubModels{detail: reportDetail()}, nil, logging.NewNopLogger())
	_, err := svc.Generate(context.Background(), &GenerateInput{ModelID: uuid.NewString(), Export: true})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeReportExportFailed, apperrors.GetCode(err))
}

func TestGenerateReportModelNotFound(t *testing.T) {
	svc := NewService(&stubModels{}, nil, logging.NewNopLogger())
	_, err := svc.Generate(context.Background(), &GenerateInput{ModelID: uuid.NewString()})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
