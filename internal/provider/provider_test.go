package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localgpt/localgpt/pkg/types"
)

// fakeModel replays scripted results and records what it was sent.
type fakeModel struct {
	mu        sync.Mutex
	results   []fakeResult
	calls     int
	inputs    [][]*schema.Message
	maxTokens []int
}

type fakeResult struct {
	content string
	err     error
}

func (m *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inputs = append(m.inputs, input)
	common := model.GetCommonOptions(&model.Options{}, opts...)
	if common.MaxTokens != nil {
		m.maxTokens = append(m.maxTokens, *common.MaxTokens)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := m.results[min(m.calls, len(m.results)-1)]
	m.calls++
	if r.err != nil {
		return nil, r.err
	}
	return schema.AssistantMessage(r.content, nil), nil
}

func (m *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func fastRetry() Option { return WithRetry(2, time.Millisecond) }

func TestComplete_Success(t *testing.T) {
	m := &fakeModel{results: []fakeResult{{content: "Hello! How can I help?"}}}
	c := NewEinoCompleter(m)

	reply, err := c.Complete(context.Background(), "system text", []types.Message{
		types.UserMessage("hi"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", reply)

	require.Len(t, m.inputs, 1)
	input := m.inputs[0]
	require.Len(t, input, 2)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Equal(t, "system text", input[0].Content)
	assert.Equal(t, schema.User, input[1].Role)
	assert.Equal(t, []int{DefaultMaxTokens}, m.maxTokens)
}

func TestComplete_MaxTokensOption(t *testing.T) {
	m := &fakeModel{results: []fakeResult{{content: "ok"}}}
	c := NewEinoCompleter(m, WithMaxTokens(256))

	_, err := c.Complete(context.Background(), "", []types.Message{types.UserMessage("x")})
	require.NoError(t, err)
	assert.Equal(t, []int{256}, m.maxTokens)
}

func TestComplete_RetriesTransientErrors(t *testing.T) {
	m := &fakeModel{results: []fakeResult{
		{err: errors.New("overloaded")},
		{content: "second time lucky"},
	}}
	c := NewEinoCompleter(m, fastRetry())

	reply, err := c.Complete(context.Background(), "", []types.Message{types.UserMessage("x")})
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", reply)
	assert.Equal(t, 2, m.calls)
}

func TestComplete_GivesUpAfterRetries(t *testing.T) {
	m := &fakeModel{results: []fakeResult{{err: errors.New("unauthorized")}}}
	c := NewEinoCompleter(m, fastRetry())

	_, err := c.Complete(context.Background(), "", []types.Message{types.UserMessage("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Contains(t, err.Error(), "unauthorized")
	assert.Equal(t, 3, m.calls)
}

func TestComplete_EmptyReplyIsPermanent(t *testing.T) {
	m := &fakeModel{results: []fakeResult{{content: "  "}}}
	c := NewEinoCompleter(m, fastRetry())

	_, err := c.Complete(context.Background(), "", []types.Message{types.UserMessage("x")})
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Equal(t, 1, m.calls)
}

func TestComplete_CanceledContext(t *testing.T) {
	m := &fakeModel{results: []fakeResult{{content: "never"}}}
	c := NewEinoCompleter(m, fastRetry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "", []types.Message{types.UserMessage("x")})
	assert.ErrorIs(t, err, ErrCompletionFailed)
}

func TestToEinoMessages(t *testing.T) {
	msgs := ToEinoMessages("sys", []types.Message{
		types.UserMessage("u1"),
		types.AssistantMessage("a1"),
		types.UserMessage("u2"),
	})
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Equal(t, "a1", msgs[2].Content)
	assert.Equal(t, "u2", msgs[3].Content)

	assert.Len(t, ToEinoMessages("", []types.Message{types.UserMessage("u")}), 1)
}

func TestParseModelString(t *testing.T) {
	tests := []struct {
		input    string
		provider string
		model    string
	}{
		{"anthropic/claude-3-5-sonnet-20240620", "anthropic", "claude-3-5-sonnet-20240620"},
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"ark/ep-2024/v1", "ark", "ep-2024/v1"},
		{"claude-3-5-sonnet-20240620", "", "claude-3-5-sonnet-20240620"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, m := ParseModelString(tt.input)
			assert.Equal(t, tt.provider, p)
			assert.Equal(t, tt.model, m)
		})
	}
}

func TestNewChatModel_Errors(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewChatModel(context.Background(), &types.Config{Model: "mystery/model"})
	assert.ErrorContains(t, err, "unknown provider: mystery")

	_, err = NewChatModel(context.Background(), &types.Config{})
	assert.ErrorContains(t, err, "ANTHROPIC_API_KEY not set")

	_, err = NewChatModel(context.Background(), &types.Config{Model: "openai/gpt-4o"})
	assert.ErrorContains(t, err, "OPENAI_API_KEY not set")
}

func TestNewBackend_ArkNeedsEndpoint(t *testing.T) {
	t.Setenv("ARK_API_KEY", "ark-key")
	t.Setenv("ARK_MODEL_ID", "")

	_, err := NewBackend(context.Background(), "ark", BackendConfig{})
	assert.ErrorContains(t, err, "ARK_MODEL_ID not set")
}

func TestNewBackend_ArkFromEnv(t *testing.T) {
	t.Setenv("ARK_API_KEY", "ark-key")
	t.Setenv("ARK_MODEL_ID", "ep-20240101-abcde")
	t.Setenv("ARK_BASE_URL", "http://127.0.0.1:1/api/v3")

	m, err := NewChatModel(context.Background(), &types.Config{Model: "ark/"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestNew_ConfiguredKey(t *testing.T) {
	cfg := &types.Config{
		Model:     "openai/gpt-4o",
		MaxTokens: 512,
		Provider: map[string]types.ProviderConfig{
			"openai": {APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1"},
		},
		Timeouts: &types.TimeoutConfig{Completion: 5000},
	}
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 512, c.maxTokens)
	assert.Equal(t, 5*time.Second, c.timeout)
}
