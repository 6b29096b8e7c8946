package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	tmservice "github.com/turtacn/ThreatCanvas/internal/application/threatmodel"
	domain "github.com/turtacn/ThreatCanvas/internal/domain/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// defaultTemplate is the built-in Markdown report layout.
const defaultTemplate = `# Threat Model Report: {{MODEL_NAME}}

**Version:** {{MODEL_VERSION}}  |  **Status:** {{MODEL_STATUS}}  |  **Generated:** {{GENERATED_AT}}

{{MODEL_DESCRIPTION}}

## Summary

Total threats: {{THREAT_COUNT}}
Average risk score: {{AVG_RISK}}

## Threats

{{THREAT_TABLE}}
{{MERGE_SECTION}}`

// ArtifactStore persists rendered reports, implemented by the MinIO report
// store.
type ArtifactStore interface {
	Put(ctx context.Context, modelID, reportID, format, contentType string, data []byte) (string, error)
	PresignedURL(ctx context.Context, key string) (string, error)
}

// Service renders reports.
type Service interface {
	Generate(ctx context.Context, input *GenerateInput) (*Report, error)
}

// GenerateInput selects the model and whether to export the artifact.
type GenerateInput struct {
	ModelID string
	// Export stores the rendered report in object storage and returns a
	// presigned download link.
	Export bool
}

// Report is a rendered artifact.
type Report struct {
	ID          string    `json:"id"`
	ModelID     string    `json:"model_id"`
	Format      string    `json:"format"`
	Content     string    `json:"content"`
	ObjectKey   string    `json:"object_key,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

type serviceImpl struct {
	models tmservice.Service
	store  ArtifactStore
	logger logging.Logger
}

// NewService creates the reporting service.  store may be nil, in which
// case Export requests fail.
func NewService(models tmservice.Service, store ArtifactStore, logger logging.Logger) Service {
	return &serviceImpl{models: models, store: store, logger: logger}
}

func (s *serviceImpl) Generate(ctx context.Context, input *GenerateInput) (*Report, error) {
	detail, err := s.models.GetDetail(ctx, input.ModelID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ID:          uuid.NewString(),
		ModelID:     input.ModelID,
		Format:      "md",
		GeneratedAt: time.Now().UTC(),
	}
	report.Content = ResolveTokens(defaultTemplate, tokenValues(detail, report.GeneratedAt))

	if input.Export {
		if s.store == nil {
			return nil, apperrors.New(apperrors.ErrCodeReportExportFailed, "report storage is not configured")
		}
		key, err := s.store.Put(ctx, report.ModelID, report.ID, report.Format, "text/markdown", []byte(report.Content))
		if err != nil {
			return nil, err
		}
		url, err := s.store.PresignedURL(ctx, key)
		if err != nil {
			return nil, err
		}
		report.ObjectKey = key
		report.DownloadURL = url
	}

	s.logger.Info("report generated",
		logging.String("model_id", report.ModelID),
		logging.String("report_id", report.ID),
		logging.Bool("exported", input.Export),
	)
	return report, nil
}

func tokenValues(detail *domain.ModelDetail, generatedAt time.Time) map[string]string {
	avg := 0.0
	for _, t := range detail.Threats {
		avg += float64(t.RiskScore)
	}
	if len(detail.Threats) > 0 {
		avg /= float64(len(detail.Threats))
	}

	return map[string]string{
		"MODEL_NAME":        detail.Name,
		"MODEL_VERSION":     detail.ModelVersion,
		"MODEL_STATUS":      detail.Status,
		"MODEL_DESCRIPTION": detail.Description,
		"GENERATED_AT":      generatedAt.Format(time.RFC3339),
		"THREAT_COUNT":      fmt.Sprint(len(detail.Threats)),
		"AVG_RISK":          fmt.Sprintf("%.1f", avg),
		"THREAT_TABLE":      threatTable(detail.Threats),
		"MERGE_SECTION":     mergeSection(detail.MergeMetadata),
	}
}

func threatTable(threats []domain.Threat) string {
	if len(threats) == 0 {
		return "_No threats recorded._"
	}
	var b strings.Builder
	b.WriteString("| Threat | Risk | Severity | Mitigation |\n")
	b.WriteString("|--------|------|----------|------------|\n")
	for _, t := range threats {
		fmt.Fprintf(&b, "| %s | %d | %s | %s |\n",
			cell(t.Title), t.RiskScore, SeverityBadge(t.RiskScore), cell(t.Mitigation))
	}
	return b.String()
}

// cell escapes pipes and newlines so free-text fields cannot break the
// Markdown table.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

func mergeSection(md *domain.MergeMetadata) string {
	if md == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n## Merge History\n\n")
	fmt.Fprintf(&b, "Last merged %s by %s (%s strategy).\n\n",
		md.MergedAt.Format(time.RFC3339), md.MergedBy, md.MergeStrategy)
	if len(md.SourceModels) > 0 {
		fmt.Fprintf(&b, "Sources: %s\n\n", strings.Join(md.SourceModels, ", "))
	}
	fmt.Fprintf(&b, "Threats added: %d, duplicates skipped: %d, safeguards copied: %d.\n",
		md.Metrics.ThreatsAdded, md.Metrics.DuplicatesSkipped, md.Metrics.SafeguardsCopied)
	return b.String()
}
