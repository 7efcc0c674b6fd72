// Package conversation holds the per-connection message log: the fixed
// system prompt, the ordered user/assistant messages and the chat memory
// handle they are persisted under.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/localgpt/localgpt/internal/logging"
	"github.com/localgpt/localgpt/pkg/types"
)

const (
	// DefaultSoftCap is the message count above which the log is trimmed.
	DefaultSoftCap = 20
	// DefaultKeepRecent is how many messages survive a trim.
	DefaultKeepRecent = 10
)

// Memory is the part of the capability provider the store persists through.
type Memory interface {
	CreateChatMemory(ctx context.Context) (string, error)
	UpdateChatMemory(ctx context.Context, handle, content string) error
	LoadChatMemory(ctx context.Context, handle string) (string, error)
	UpdateOverallMemory(ctx context.Context, text string) error
}

// Store is a single conversation. It is owned by one session and is safe
// for use by that session's turn and its background persistence.
type Store struct {
	mu           sync.Mutex
	systemPrompt string
	messages     []types.Message
	handle       string
	source       string
	memory       Memory
	softCap      int
	keepRecent   int
}

// Option configures a Store.
type Option func(*Store)

// WithWindow sets the trim thresholds. Non-positive values keep the defaults.
func WithWindow(softCap, keepRecent int) Option {
	return func(s *Store) {
		if softCap > 0 {
			s.softCap = softCap
		}
		if keepRecent > 0 {
			s.keepRecent = keepRecent
		}
	}
}

// WithRestoreSource makes Restore read an existing chat memory without
// binding to it. The first Persist then creates a handle of its own.
func WithRestoreSource(handle string) Option {
	return func(s *Store) { s.source = handle }
}

// New creates an empty conversation. memory may be nil, in which case
// persistence is disabled.
func New(systemPrompt string, memory Memory, opts ...Option) *Store {
	s := &Store{
		systemPrompt: systemPrompt,
		memory:       memory,
		softCap:      DefaultSoftCap,
		keepRecent:   DefaultKeepRecent,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.keepRecent > s.softCap {
		s.keepRecent = s.softCap
	}
	return s
}

// SystemPrompt returns the prompt fixed at construction.
func (s *Store) SystemPrompt() string {
	return s.systemPrompt
}

// Handle returns the chat memory handle, empty until first persisted.
func (s *Store) Handle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Append adds msg to the end of the log.
func (s *Store) Append(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Len returns the number of messages in the log.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Truncate drops every message after the first n. It is used to roll back
// a turn that could not complete.
func (s *Store) Truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= 0 && n < len(s.messages) {
		s.messages = s.messages[:n:n]
	}
}

// TrimIfNeeded keeps only the most recent messages once the log has grown
// past the soft cap. It reports whether anything was dropped.
func (s *Store) TrimIfNeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) <= s.softCap {
		return false
	}
	dropped := len(s.messages) - s.keepRecent
	kept := make([]types.Message, s.keepRecent)
	copy(kept, s.messages[dropped:])
	s.messages = kept

	logging.Debug().Int("dropped", dropped).Int("kept", len(kept)).Msg("conversation trimmed")
	return true
}

// Snapshot returns a copy of the log.
func (s *Store) Snapshot() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Persist writes the whole log to the chat memory, creating the memory on
// first use.
func (s *Store) Persist(ctx context.Context) error {
	if s.memory == nil {
		return nil
	}

	s.mu.Lock()
	handle := s.handle
	data, err := json.Marshal(s.messages)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}

	if handle == "" {
		handle, err = s.memory.CreateChatMemory(ctx)
		if err != nil {
			return fmt.Errorf("failed to create chat memory: %w", err)
		}
		s.mu.Lock()
		s.handle = handle
		s.mu.Unlock()
	}

	if err := s.memory.UpdateChatMemory(ctx, handle, string(data)); err != nil {
		return fmt.Errorf("failed to update chat memory %s: %w", handle, err)
	}
	return nil
}

// Restore replaces the log with the persisted one: the store's own chat
// memory once it has one, the restore source before that. On failure the
// current log is kept.
func (s *Store) Restore(ctx context.Context) error {
	s.mu.Lock()
	handle := s.handle
	if handle == "" {
		handle = s.source
	}
	s.mu.Unlock()
	if s.memory == nil || handle == "" {
		return nil
	}

	content, err := s.memory.LoadChatMemory(ctx, handle)
	if err != nil {
		return fmt.Errorf("failed to load chat memory %s: %w", handle, err)
	}

	var messages []types.Message
	if content != "" {
		if err := json.Unmarshal([]byte(content), &messages); err != nil {
			return fmt.Errorf("failed to decode chat memory %s: %w", handle, err)
		}
	}

	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()
	return nil
}

// RecordExchange appends one user/assistant exchange to the overall memory.
func (s *Store) RecordExchange(ctx context.Context, user, assistant string) error {
	if s.memory == nil {
		return nil
	}
	text := fmt.Sprintf("User: %s\nAssistant: %s", user, assistant)
	if err := s.memory.UpdateOverallMemory(ctx, text); err != nil {
		return fmt.Errorf("failed to update overall memory: %w", err)
	}
	return nil
}
