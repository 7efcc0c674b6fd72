package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/localgpt/localgpt/internal/conversation"
	"github.com/localgpt/localgpt/internal/directive"
	"github.com/localgpt/localgpt/internal/dispatch"
	"github.com/localgpt/localgpt/internal/event"
	"github.com/localgpt/localgpt/internal/logging"
	"github.com/localgpt/localgpt/internal/provider"
	"github.com/localgpt/localgpt/pkg/types"
)

// ErrSessionClosed is returned by Handle after Close.
var ErrSessionClosed = errors.New("session closed")

// persistTimeout bounds background persistence of a single turn.
const persistTimeout = 30 * time.Second

// State is the turn state of a session.
type State int32

const (
	StateIdle State = iota
	StateAwaitingDirectiveResolution
	StateAwaitingCompletion
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingDirectiveResolution:
		return "awaiting_directive_resolution"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dispatcher performs directives. It never fails.
type Dispatcher interface {
	Dispatch(ctx context.Context, d directive.Directive) dispatch.Outcome
}

// Session is one conversation bound to one connection. Turns are handled
// one at a time; memory updates for a turn run in the background and are
// joined before the next turn starts.
type Session struct {
	id        string
	remote    string
	created   time.Time
	store     *conversation.Store
	completer provider.Completer
	dispatch  Dispatcher
	bus       *event.Bus

	state atomic.Int32

	// held for the whole of a turn
	turnMu  sync.Mutex
	closed  bool
	persist sync.WaitGroup

	infoMu  sync.Mutex
	turns   int
	updated time.Time
}

// New creates a session over store. bus may be nil to use the default bus.
func New(store *conversation.Store, completer provider.Completer, dispatcher Dispatcher, bus *event.Bus, remote string) *Session {
	if bus == nil {
		bus = event.Default()
	}
	now := time.Now()
	return &Session{
		id:        ulid.Make().String(),
		remote:    remote,
		created:   now,
		updated:   now,
		store:     store,
		completer: completer,
		dispatch:  dispatcher,
		bus:       bus,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current turn state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Messages returns a copy of the conversation log.
func (s *Session) Messages() []types.Message { return s.store.Snapshot() }

// Info returns a status summary of the session.
func (s *Session) Info() *types.SessionInfo {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	return &types.SessionInfo{
		ID:           s.id,
		Remote:       s.remote,
		MemoryHandle: s.store.Handle(),
		Turns:        s.turns,
		Messages:     s.store.Len(),
		Time: types.SessionTime{
			Created: s.created.UnixMilli(),
			Updated: s.updated.UnixMilli(),
		},
	}
}

// Restore loads the persisted conversation, keeping the current one on
// failure.
func (s *Session) Restore(ctx context.Context) error {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	return s.store.Restore(ctx)
}

// Handle runs one turn: it resolves a leading directive if there is one,
// asks the model for a reply and records the exchange. A completion failure
// rolls the turn back and is returned wrapped in provider.ErrCompletionFailed.
func (s *Session) Handle(ctx context.Context, raw string) (string, error) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if s.closed {
		return "", ErrSessionClosed
	}
	s.persist.Wait()

	s.store.TrimIfNeeded()
	mark := s.store.Len()

	kind := "dialogue"
	render := func(reply string) string { return reply }

	if d, ok := directive.ParseUser(raw); ok {
		s.setState(StateAwaitingDirectiveResolution)
		out := s.dispatch.Dispatch(ctx, d)
		kind = string(d.Kind)

		s.bus.Publish(event.Event{
			Type: event.DirectiveDispatched,
			Data: event.DirectiveData{
				SessionID: s.id,
				Kind:      kind,
				Preview:   logging.Preview(out.Observation, 200),
				IsError:   out.IsError,
			},
		})

		s.store.Append(types.UserMessage(out.Observation))
		render = out.Render
	} else {
		s.store.Append(types.UserMessage(raw))
	}

	s.setState(StateAwaitingCompletion)
	reply, err := s.completer.Complete(ctx, s.store.SystemPrompt(), s.store.Snapshot())
	if err != nil {
		s.store.Truncate(mark)
		s.setState(StateIdle)
		if !errors.Is(err, provider.ErrCompletionFailed) {
			err = fmt.Errorf("%w: %v", provider.ErrCompletionFailed, err)
		}

		logging.Error().Err(err).Str("session", s.id).Msg("turn aborted")
		s.bus.Publish(event.Event{
			Type: event.TurnFailed,
			Data: event.TurnFailedData{SessionID: s.id, Error: err.Error()},
		})
		return "", err
	}

	s.store.Append(types.AssistantMessage(reply))
	s.setState(StateIdle)

	s.infoMu.Lock()
	s.turns++
	s.updated = time.Now()
	s.infoMu.Unlock()

	s.suggest(reply)
	s.bus.Publish(event.Event{
		Type: event.TurnCompleted,
		Data: event.TurnData{SessionID: s.id, Kind: kind, Messages: s.store.Len()},
	})

	s.remember(ctx, raw, reply)
	return render(reply), nil
}

// suggest reports a directive embedded in the model's reply. It is not
// executed; the user confirms by sending it.
func (s *Session) suggest(reply string) {
	d, ok := directive.ParseAssistant(reply)
	if !ok {
		return
	}
	logging.Info().
		Str("session", s.id).
		Str("kind", string(d.Kind)).
		Str("directive", logging.Preview(d.Raw, 60)).
		Msg("assistant suggested directive")
	s.bus.Publish(event.Event{
		Type: event.DirectiveSuggested,
		Data: event.DirectiveData{SessionID: s.id, Kind: string(d.Kind), Preview: logging.Preview(d.Raw, 200)},
	})
}

// remember persists the conversation and the exchange in the background.
// Failures are logged and never reach the caller.
func (s *Session) remember(ctx context.Context, user, reply string) {
	s.persist.Add(1)
	go func() {
		defer s.persist.Done()

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()

		if err := s.store.Persist(pctx); err != nil {
			logging.Warn().Err(err).Str("session", s.id).Msg("chat memory persistence failed")
		}
		if err := s.store.RecordExchange(pctx, user, reply); err != nil {
			logging.Warn().Err(err).Str("session", s.id).Msg("overall memory update failed")
		}
	}()
}

// Close waits for the in-flight turn and its background persistence, then
// rejects further turns.
func (s *Session) Close() {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.persist.Wait()
}
