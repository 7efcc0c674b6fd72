package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/localgpt/localgpt/internal/logging"
	"github.com/localgpt/localgpt/pkg/types"
)

// ErrCompletionFailed wraps every error returned by Complete.
var ErrCompletionFailed = errors.New("completion failed")

const (
	// DefaultMaxTokens is the token ceiling for every completion.
	DefaultMaxTokens = 1024
	// MaxRetries is the maximum number of retries for API errors.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
)

// Completer produces the assistant's reply to a conversation.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []types.Message) (string, error)
}

// EinoCompleter adapts an Eino chat model to Completer.
type EinoCompleter struct {
	model     model.BaseChatModel
	maxTokens int
	timeout   time.Duration
	retries   uint64
	interval  time.Duration
}

// Option configures an EinoCompleter.
type Option func(*EinoCompleter)

// WithMaxTokens sets the token ceiling.
func WithMaxTokens(n int) Option {
	return func(c *EinoCompleter) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTimeout bounds each Complete call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(c *EinoCompleter) { c.timeout = d }
}

// WithRetry sets how many times a failed call is retried and the first
// backoff interval.
func WithRetry(retries uint64, initial time.Duration) Option {
	return func(c *EinoCompleter) {
		c.retries = retries
		c.interval = initial
	}
}

// NewEinoCompleter wraps m.
func NewEinoCompleter(m model.BaseChatModel, opts ...Option) *EinoCompleter {
	c := &EinoCompleter{
		model:     m,
		maxTokens: DefaultMaxTokens,
		retries:   MaxRetries,
		interval:  RetryInitialInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newRetryBackoff creates an exponential backoff with jitter that stops after
// the configured retries or when ctx is done.
func (c *EinoCompleter) newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, c.retries), ctx)
}

// Complete sends the system prompt and messages to the model and returns the
// text of its reply. Errors wrap ErrCompletionFailed.
func (c *EinoCompleter) Complete(ctx context.Context, systemPrompt string, messages []types.Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	input := ToEinoMessages(systemPrompt, messages)

	var reply string
	attempt := 0
	op := func() error {
		attempt++
		msg, err := c.model.Generate(ctx, input, model.WithMaxTokens(c.maxTokens))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			logging.Warn().Err(err).Int("attempt", attempt).Msg("completion attempt failed")
			return err
		}
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			return backoff.Permanent(errors.New("empty response"))
		}
		reply = msg.Content
		return nil
	}

	if err := backoff.Retry(op, c.newRetryBackoff(ctx)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	return reply, nil
}

// ToEinoMessages converts the conversation into Eino messages, system
// prompt first.
func ToEinoMessages(systemPrompt string, messages []types.Message) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		result = append(result, schema.SystemMessage(systemPrompt))
	}
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleAssistant:
			result = append(result, schema.AssistantMessage(msg.Content, nil))
		default:
			result = append(result, schema.UserMessage(msg.Content))
		}
	}
	return result
}
