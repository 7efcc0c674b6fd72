package provider

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/localgpt/localgpt/internal/logging"
	"github.com/localgpt/localgpt/pkg/types"
)

// ParseModelString parses "provider/model" format. A bare model ID is
// returned with an empty provider.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// NewChatModel builds the chat model named by cfg.Model. An empty provider
// means anthropic; an empty model ID means the backend's default.
func NewChatModel(ctx context.Context, cfg *types.Config) (model.BaseChatModel, error) {
	providerID, modelID := ParseModelString(cfg.Model)
	if providerID == "" {
		providerID = "anthropic"
	}

	pc := cfg.Provider[providerID]
	return NewBackend(ctx, providerID, BackendConfig{
		APIKey:    pc.APIKey,
		BaseURL:   pc.BaseURL,
		Model:     modelID,
		MaxTokens: cfg.MaxTokens,
	})
}

// New builds the Completer described by cfg.
func New(ctx context.Context, cfg *types.Config) (*EinoCompleter, error) {
	chatModel, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithMaxTokens(cfg.MaxTokens)}
	if cfg.Timeouts != nil && cfg.Timeouts.Completion > 0 {
		opts = append(opts, WithTimeout(time.Duration(cfg.Timeouts.Completion)*time.Millisecond))
	}

	logging.Info().Str("model", cfg.Model).Int("maxTokens", cfg.MaxTokens).Msg("completion model ready")
	return NewEinoCompleter(chatModel, opts...), nil
}
