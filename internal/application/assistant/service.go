package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	tmservice "github.com/turtacn/ThreatCanvas/internal/application/threatmodel"
	"github.com/turtacn/ThreatCanvas/internal/domain/threat"
	"github.com/turtacn/ThreatCanvas/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

const systemPrompt = "You are a security analyst assistant. Answer questions about the " +
	"threat model provided in the context. Be precise: cite threat titles when you " +
	"reference them, and say so when the context does not contain the answer."

const suggestPrompt = "Review the threat model below and propose additional threats it is " +
	"missing. Format each as:\n\n## Threat: <title>\n\n**Description:** <description>\n\n" +
	"**Mitigation:** <mitigation>\n"

// maxHistory bounds how many prior turns are forwarded to the provider.
const maxHistory = 20

// Instrumenter records completion telemetry.
type Instrumenter interface {
	ObserveLLM(provider string, duration time.Duration, err error)
}

// Service is the chat boundary.
type Service interface {
	Chat(ctx context.Context, input *ChatInput) (*ChatResult, error)
	SuggestThreats(ctx context.Context, modelID string) (*SuggestResult, error)
}

// ChatInput is one user turn, optionally scoped to a threat model whose
// content is injected as context.
type ChatInput struct {
	ModelID string    `json:"model_id,omitempty"`
	Message string    `json:"message"`
	History []Message `json:"history,omitempty"`
}

// ChatResult is the assistant's reply.
type ChatResult struct {
	Reply    string `json:"reply"`
	Provider string `json:"provider"`
}

// SuggestResult carries LLM-proposed threats, already extracted and scored.
type SuggestResult struct {
	Raw      string            `json:"raw"`
	Threats  []SuggestedThreat `json:"threats"`
	Provider string            `json:"provider"`
}

// SuggestedThreat is one proposed threat with its heuristic risk score.
type SuggestedThreat struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Mitigation  string `json:"mitigation"`
	RiskScore   int    `json:"risk_score"`
}

type serviceImpl struct {
	provider Provider
	models   tmservice.Service
	metrics  Instrumenter
	timeout  time.Duration
	logger   logging.Logger
}

// NewService creates the assistant service.  metrics may be nil.
func NewService(provider Provider, models tmservice.Service, metrics Instrumenter, timeout time.Duration, logger logging.Logger) Service {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &serviceImpl{provider: provider, models: models, metrics: metrics, timeout: timeout, logger: logger}
}

func (s *serviceImpl) Chat(ctx context.Context, input *ChatInput) (*ChatResult, error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "message is required")
	}

	messages := []Message{{Role: RoleSystem, Content: systemPrompt}}
	if input.ModelID != "" {
		contextBlock, err := s.modelContext(ctx, input.ModelID)
		if err != nil {
			return nil, err
		}
		messages = append(messages, Message{Role: RoleSystem, Content: contextBlock})
	}
	history := input.History
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: input.Message})

	reply, err := s.complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Reply: reply, Provider: s.provider.Name()}, nil
}

func (s *serviceImpl) SuggestThreats(ctx context.Context, modelID string) (*SuggestResult, error) {
	contextBlock, err := s.modelContext(ctx, modelID)
	if err != nil {
		return nil, err
	}

	raw, err := s.complete(ctx, []Message{
		{Role: RoleSystem, Content: suggestPrompt},
		{Role: RoleUser, Content: contextBlock},
	})
	if err != nil {
		return nil, err
	}

	recs := threat.Extract(raw)
	suggested := make([]SuggestedThreat, len(recs))
	for i, rec := range recs {
		suggested[i] = SuggestedThreat{
			Title:       rec.Title,
			Description: rec.Description,
			Mitigation:  rec.Mitigation,
			RiskScore:   threat.ScoreRisk(rec.Description),
		}
	}
	s.logger.Info("threat suggestions generated",
		logging.String("model_id", modelID),
		logging.Int("count", len(suggested)),
	)
	return &SuggestResult{Raw: raw, Threats: suggested, Provider: s.provider.Name()}, nil
}

func (s *serviceImpl) complete(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	reply, err := s.provider.Complete(ctx, messages)
	if s.metrics != nil {
		s.metrics.ObserveLLM(s.provider.Name(), time.Since(start), err)
	}
	return reply, err
}

// modelContext renders a threat model as a context block for the provider.
func (s *serviceImpl) modelContext(ctx context.Context, modelID string) (string, error) {
	detail, err := s.models.GetDetail(ctx, modelID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Threat model: %s (version %s, status %s)\n", detail.Name, detail.ModelVersion, detail.Status)
	if detail.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", detail.Description)
	}
	b.WriteString("\nThreats:\n")
	for _, t := range detail.Threats {
		fmt.Fprintf(&b, "- %s (risk %d): %s\n", t.Title, t.RiskScore, t.Description)
		if t.Mitigation != "" {
			fmt.Fprintf(&b, "  Mitigation: %s\n", t.Mitigation)
		}
	}
	if len(detail.Threats) == 0 && detail.ResponseText != "" {
		b.WriteString(detail.ResponseText)
	}
	return b.String(), nil
}
