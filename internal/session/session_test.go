package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localgpt/localgpt/internal/capability"
	"github.com/localgpt/localgpt/internal/conversation"
	"github.com/localgpt/localgpt/internal/dispatch"
	"github.com/localgpt/localgpt/internal/event"
	"github.com/localgpt/localgpt/internal/provider"
	"github.com/localgpt/localgpt/internal/storage"
	"github.com/localgpt/localgpt/pkg/types"
)

// fakeCompleter answers with fn and records every conversation it was sent.
type fakeCompleter struct {
	mu   sync.Mutex
	fn   func(messages []types.Message) (string, error)
	seen [][]types.Message
}

func (c *fakeCompleter) Complete(ctx context.Context, systemPrompt string, messages []types.Message) (string, error) {
	c.mu.Lock()
	c.seen = append(c.seen, messages)
	fn := c.fn
	c.mu.Unlock()
	if fn == nil {
		return "ok", nil
	}
	return fn(messages)
}

func (c *fakeCompleter) calls() [][]types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]types.Message(nil), c.seen...)
}

func replyWith(text string) func([]types.Message) (string, error) {
	return func([]types.Message) (string, error) { return text, nil }
}

// echo replies with the last message's content.
func echo(messages []types.Message) (string, error) {
	return "echo: " + messages[len(messages)-1].Content, nil
}

type launchCall struct{ program, arguments string }

type fakeLauncher struct {
	mu    sync.Mutex
	calls []launchCall
	err   error
}

func (l *fakeLauncher) LaunchProgram(ctx context.Context, program, arguments string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, launchCall{program, arguments})
	return l.err
}

type fakeExecutor struct {
	result   string
	commands []string
}

func (e *fakeExecutor) Execute(ctx context.Context, command string) string {
	e.commands = append(e.commands, command)
	return e.result
}

type fixture struct {
	session   *Session
	completer *fakeCompleter
	launcher  *fakeLauncher
	executor  *fakeExecutor
	bus       *event.Bus
}

func newFixture(t *testing.T, memory conversation.Memory, opts ...conversation.Option) *fixture {
	t.Helper()
	f := &fixture{
		completer: &fakeCompleter{},
		launcher:  &fakeLauncher{},
		executor:  &fakeExecutor{result: "stdout:\n1\n\nstderr:\n"},
		bus:       event.NewBus(),
	}
	t.Cleanup(func() { f.bus.Close() })

	store := conversation.New("system prompt", memory, opts...)
	f.session = New(store, f.completer, dispatch.New(f.launcher, f.executor), f.bus, "127.0.0.1:5555")
	t.Cleanup(f.session.Close)
	return f
}

func newMemory(t *testing.T) *capability.MemoryManager {
	t.Helper()
	return capability.NewMemoryManager(storage.New(t.TempDir()), 0)
}

func TestHandle_PlainDialogue(t *testing.T) {
	f := newFixture(t, nil)
	f.completer.fn = replyWith("General Kenobi!")

	reply, err := f.session.Handle(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, "General Kenobi!", reply)

	assert.Equal(t, []types.Message{
		types.UserMessage("hello there"),
		types.AssistantMessage("General Kenobi!"),
	}, f.session.Messages())
	assert.Empty(t, f.launcher.calls)
	assert.Empty(t, f.executor.commands)
	assert.Equal(t, StateIdle, f.session.State())

	calls := f.completer.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []types.Message{types.UserMessage("hello there")}, calls[0])
}

func TestHandle_LaunchProgram(t *testing.T) {
	f := newFixture(t, nil)
	f.completer.fn = replyWith("Notepad should now be open.")

	reply, err := f.session.Handle(context.Background(), "launch_program notepad file.txt")
	require.NoError(t, err)

	observation := "Launched program: notepad with arguments: file.txt"
	assert.Equal(t, observation+"\nNotepad should now be open.", reply)
	assert.Equal(t, []launchCall{{"notepad", "file.txt"}}, f.launcher.calls)
	assert.Equal(t, []types.Message{
		types.UserMessage(observation),
		types.AssistantMessage("Notepad should now be open."),
	}, f.session.Messages())
}

func TestHandle_LaunchWithoutArguments(t *testing.T) {
	f := newFixture(t, nil)

	reply, err := f.session.Handle(context.Background(), "launch_program notepad")
	require.NoError(t, err)
	assert.Equal(t, "Launched program: notepad\nok", reply)
}

func TestHandle_LaunchFailureThenDialogue(t *testing.T) {
	f := newFixture(t, nil)
	f.launcher.err = fmt.Errorf("%w: executable file not found in $PATH", capability.ErrLaunchFailed)
	f.completer.fn = echo

	reply, err := f.session.Handle(context.Background(), "launch_program badexe")
	require.NoError(t, err)
	assert.Contains(t, reply, "Failed to launch program: badexe.")
	assert.Contains(t, reply, "executable file not found")

	reply, err = f.session.Handle(context.Background(), "are you still there?")
	require.NoError(t, err)
	assert.Equal(t, "echo: are you still there?", reply)
	assert.Len(t, f.session.Messages(), 4)
}

func TestHandle_ProgramUpdate(t *testing.T) {
	f := newFixture(t, nil)

	reply, err := f.session.Handle(context.Background(), "file modified.")
	require.NoError(t, err)
	assert.Equal(t, "Program update received: file modified.\nok", reply)
	assert.Equal(t, "Program update received: file modified.", f.session.Messages()[0].Content)
}

func TestHandle_SandboxResultPrecedesCommentary(t *testing.T) {
	f := newFixture(t, nil)
	f.completer.fn = replyWith("The code printed 1.")

	reply, err := f.session.Handle(context.Background(), "run_code_in_virtual_env [] print(1)")
	require.NoError(t, err)

	result := "stdout:\n1\n\nstderr:\n"
	assert.Equal(t, "Command executed. Result:\n"+result+"\n\nAssistant response:\nThe code printed 1.", reply)
	assert.Less(t, strings.Index(reply, result), strings.Index(reply, "The code printed 1."))
	assert.Equal(t, []string{"run_code_in_virtual_env [] print(1)"}, f.executor.commands)

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Python command result: "+result, msgs[0].Content)
}

func TestHandle_CompletionFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.completer.fn = echo

	_, err := f.session.Handle(context.Background(), "first")
	require.NoError(t, err)
	before := f.session.Messages()

	f.completer.fn = func([]types.Message) (string, error) {
		return "", fmt.Errorf("%w: overloaded", provider.ErrCompletionFailed)
	}
	_, err = f.session.Handle(context.Background(), "launch_program notepad")
	require.ErrorIs(t, err, provider.ErrCompletionFailed)
	assert.Equal(t, before, f.session.Messages())
	assert.Equal(t, StateIdle, f.session.State())

	f.completer.fn = echo
	reply, err := f.session.Handle(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, "echo: second", reply)
	assert.Len(t, f.session.Messages(), 4)
}

func TestHandle_UnwrappedCompleterErrorIsWrapped(t *testing.T) {
	f := newFixture(t, nil)
	f.completer.fn = func([]types.Message) (string, error) { return "", errors.New("boom") }

	_, err := f.session.Handle(context.Background(), "hi")
	assert.ErrorIs(t, err, provider.ErrCompletionFailed)
	assert.Empty(t, f.session.Messages())
}

func TestHandle_TrimsBeforeTurn(t *testing.T) {
	f := newFixture(t, nil)
	f.completer.fn = echo
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		_, err := f.session.Handle(ctx, fmt.Sprintf("turn %d", i))
		require.NoError(t, err)
	}
	assert.Len(t, f.session.Messages(), 22)

	_, err := f.session.Handle(ctx, "turn 11")
	require.NoError(t, err)

	msgs := f.session.Messages()
	assert.Len(t, msgs, 12)
	assert.Equal(t, "turn 6", msgs[0].Content)
	assert.Equal(t, "echo: turn 11", msgs[11].Content)

	calls := f.completer.calls()
	assert.Len(t, calls[len(calls)-1], 11)
}

func TestHandle_PersistsInBackground(t *testing.T) {
	memory := newMemory(t)
	f := newFixture(t, memory)
	f.completer.fn = replyWith("Hi!")
	ctx := context.Background()

	_, err := f.session.Handle(ctx, "hello")
	require.NoError(t, err)
	f.session.Close()

	handle := f.session.Info().MemoryHandle
	require.NotEmpty(t, handle)

	content, err := memory.LoadChatMemory(ctx, handle)
	require.NoError(t, err)
	var persisted []types.Message
	require.NoError(t, json.Unmarshal([]byte(content), &persisted))
	assert.Equal(t, f.session.Messages(), persisted)

	overall, err := memory.LoadOverallMemory(ctx)
	require.NoError(t, err)
	require.Len(t, overall, 1)
	assert.Equal(t, "User: hello\nAssistant: Hi!", overall[0])
}

func TestHandle_SuggestedDirectivePublished(t *testing.T) {
	f := newFixture(t, nil)
	f.completer.fn = replyWith("You could type launch_program calc to open it.")

	got := make(chan event.DirectiveData, 1)
	f.bus.Subscribe(event.DirectiveSuggested, func(e event.Event) {
		got <- e.Data.(event.DirectiveData)
	})

	_, err := f.session.Handle(context.Background(), "how do I open the calculator?")
	require.NoError(t, err)

	select {
	case data := <-got:
		assert.Equal(t, "launch_program", data.Kind)
		assert.Equal(t, f.session.ID(), data.SessionID)
	case <-time.After(time.Second):
		t.Fatal("no suggestion published")
	}
	assert.Empty(t, f.launcher.calls, "suggestions are never executed")
}

func TestHandle_AfterClose(t *testing.T) {
	f := newFixture(t, nil)
	f.session.Close()
	f.session.Close()

	_, err := f.session.Handle(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestInfo(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.session.Handle(context.Background(), "hi")
	require.NoError(t, err)

	info := f.session.Info()
	assert.Equal(t, f.session.ID(), info.ID)
	assert.Equal(t, "127.0.0.1:5555", info.Remote)
	assert.Equal(t, 1, info.Turns)
	assert.Equal(t, 2, info.Messages)
	assert.GreaterOrEqual(t, info.Time.Updated, info.Time.Created)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "awaiting_directive_resolution", StateAwaitingDirectiveResolution.String())
	assert.Equal(t, "awaiting_completion", StateAwaitingCompletion.String())
	assert.Equal(t, "state(9)", State(9).String())
}
