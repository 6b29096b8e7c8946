// Package assistant provides the LLM-backed chat service for interrogating
// threat models.
package assistant

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/turtacn/ThreatCanvas/internal/config"
	apperrors "github.com/turtacn/ThreatCanvas/pkg/errors"
)

// Chat roles accepted by providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider completes a conversation.  Implementations wrap one LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, messages []Message) (string, error)
}

// openaiProvider speaks the OpenAI chat completion API.  Ollama exposes the
// same API surface, so both providers share this implementation and differ
// only in base URL and model.
type openaiProvider struct {
	name   string
	model  string
	client *openai.Client
}

func (p *openaiProvider) Name() string { return p.name }

func (p *openaiProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeCompletionFailed, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.ErrCodeCompletionFailed, "provider returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// NewProvider builds the provider selected by cfg.DefaultProvider.
func NewProvider(cfg config.AssistantConfig) (Provider, error) {
	switch cfg.DefaultProvider {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, apperrors.New(apperrors.ErrCodeProviderUnavailable, "assistant.openai.api_key is required")
		}
		return &openaiProvider{
			name:   "openai",
			model:  cfg.OpenAI.Model,
			client: openai.NewClient(cfg.OpenAI.APIKey),
		}, nil
	case "ollama":
		if cfg.Ollama.BaseURL == "" {
			return nil, apperrors.New(apperrors.ErrCodeProviderUnavailable, "assistant.ollama.base_url is required")
		}
		// Ollama ignores the API key but the client requires one.
		clientCfg := openai.DefaultConfig("ollama")
		clientCfg.BaseURL = cfg.Ollama.BaseURL
		return &openaiProvider{
			name:   "ollama",
			model:  cfg.Ollama.Model,
			client: openai.NewClientWithConfig(clientCfg),
		}, nil
	default:
		return nil, apperrors.New(apperrors.ErrCodeProviderUnsupported, "unsupported assistant provider").WithDetail(cfg.DefaultProvider)
	}
}
