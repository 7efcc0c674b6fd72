package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Default model IDs per backend. ARK has none; its model is an endpoint ID.
const (
	DefaultAnthropicModel = "claude-3-5-sonnet-20240620"
	DefaultOpenAIModel    = "gpt-4o"
)

// BackendConfig is what every backend needs to build a chat model.
// Empty fields fall back to the backend's environment variables.
type BackendConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// backend describes one supported completion service.
type backend struct {
	keyEnv   string
	modelEnv string
	urlEnv   string
	model    string
	build    func(ctx context.Context, c BackendConfig) (model.BaseChatModel, error)
}

var backends = map[string]backend{
	"anthropic": {
		keyEnv: "ANTHROPIC_API_KEY",
		model:  DefaultAnthropicModel,
		build: func(ctx context.Context, c BackendConfig) (model.BaseChatModel, error) {
			cfg := &claude.Config{APIKey: c.APIKey, Model: c.Model, MaxTokens: c.MaxTokens}
			if c.BaseURL != "" {
				cfg.BaseURL = &c.BaseURL
			}
			return claude.NewChatModel(ctx, cfg)
		},
	},
	"openai": {
		keyEnv: "OPENAI_API_KEY",
		model:  DefaultOpenAIModel,
		build: func(ctx context.Context, c BackendConfig) (model.BaseChatModel, error) {
			return openai.NewChatModel(ctx, &openai.ChatModelConfig{
				APIKey:              c.APIKey,
				BaseURL:             c.BaseURL,
				Model:               c.Model,
				MaxCompletionTokens: &c.MaxTokens,
			})
		},
	},
	"ark": {
		keyEnv:   "ARK_API_KEY",
		modelEnv: "ARK_MODEL_ID",
		urlEnv:   "ARK_BASE_URL",
		build: func(ctx context.Context, c BackendConfig) (model.BaseChatModel, error) {
			return ark.NewChatModel(ctx, &ark.ChatModelConfig{
				APIKey:    c.APIKey,
				BaseURL:   c.BaseURL,
				Model:     c.Model,
				MaxTokens: &c.MaxTokens,
			})
		},
	},
}

// NewBackend builds the chat model for providerID ("anthropic", "openai"
// or "ark").
func NewBackend(ctx context.Context, providerID string, c BackendConfig) (model.BaseChatModel, error) {
	b, ok := backends[providerID]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerID)
	}

	if c.APIKey == "" {
		c.APIKey = os.Getenv(b.keyEnv)
	}
	if c.APIKey == "" {
		return nil, fmt.Errorf("%s not set", b.keyEnv)
	}
	if c.Model == "" && b.modelEnv != "" {
		c.Model = os.Getenv(b.modelEnv)
	}
	if c.Model == "" {
		c.Model = b.model
	}
	if c.Model == "" {
		return nil, fmt.Errorf("%s not set", b.modelEnv)
	}
	if c.BaseURL == "" && b.urlEnv != "" {
		c.BaseURL = os.Getenv(b.urlEnv)
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}

	m, err := b.build(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", providerID, err)
	}
	return m, nil
}
