package session

import (
	"context"
	"sort"
	"sync"

	"github.com/localgpt/localgpt/internal/capability"
	"github.com/localgpt/localgpt/internal/conversation"
	"github.com/localgpt/localgpt/internal/event"
	"github.com/localgpt/localgpt/internal/logging"
	"github.com/localgpt/localgpt/internal/provider"
	"github.com/localgpt/localgpt/pkg/types"
)

// memoryLister finds previously persisted chat memories.
type memoryLister interface {
	ListChatMemories(ctx context.Context) ([]capability.ChatMemoryInfo, error)
}

// Config holds the shared collaborators every session is built from.
type Config struct {
	SystemPrompt string
	Completer    provider.Completer
	Dispatcher   Dispatcher
	// Memory may be nil to disable persistence.
	Memory conversation.Memory
	Bus    *event.Bus

	SoftCap    int
	KeepRecent int
	// Restore seeds each new session with a copy of the most recently
	// updated chat memory. Each session persists under its own handle.
	Restore bool
}

// Service creates sessions and tracks the active ones.
type Service struct {
	cfg Config

	mu     sync.RWMutex
	active map[string]*Session
}

// NewService creates a session service.
func NewService(cfg Config) *Service {
	if cfg.Bus == nil {
		cfg.Bus = event.Default()
	}
	return &Service{
		cfg:    cfg,
		active: make(map[string]*Session),
	}
}

// Create starts a session for a connection from remote. When restoring is
// enabled the latest chat memory is copied in; failures leave the session
// empty.
func (s *Service) Create(ctx context.Context, remote string) *Session {
	opts := []conversation.Option{conversation.WithWindow(s.cfg.SoftCap, s.cfg.KeepRecent)}

	handle := ""
	if s.cfg.Restore {
		handle = s.latestHandle(ctx)
		if handle != "" {
			opts = append(opts, conversation.WithRestoreSource(handle))
		}
	}

	store := conversation.New(s.cfg.SystemPrompt, s.cfg.Memory, opts...)
	sess := New(store, s.cfg.Completer, s.cfg.Dispatcher, s.cfg.Bus, remote)

	if handle != "" {
		if err := sess.Restore(ctx); err != nil {
			logging.Warn().Err(err).Str("session", sess.ID()).Str("source", handle).Msg("failed to restore chat memory")
		} else {
			logging.Info().Str("session", sess.ID()).Str("source", handle).Int("messages", store.Len()).Msg("chat memory restored")
		}
	}

	s.mu.Lock()
	s.active[sess.ID()] = sess
	s.mu.Unlock()

	logging.Info().Str("session", sess.ID()).Str("remote", remote).Msg("session created")
	s.cfg.Bus.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionData{Info: sess.Info()}})
	return sess
}

func (s *Service) latestHandle(ctx context.Context) string {
	lister, ok := s.cfg.Memory.(memoryLister)
	if !ok {
		return ""
	}
	infos, err := lister.ListChatMemories(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to list chat memories")
		return ""
	}

	var latest capability.ChatMemoryInfo
	for _, info := range infos {
		if info.Updated >= latest.Updated {
			latest = info
		}
	}
	return latest.Handle
}

// Get returns an active session.
func (s *Service) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.active[id]
	return sess, ok
}

// List returns the active sessions, oldest first.
func (s *Service) List() []*types.SessionInfo {
	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.active))
	for _, sess := range s.active {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	infos := make([]*types.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Time.Created != infos[j].Time.Created {
			return infos[i].Time.Created < infos[j].Time.Created
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Close ends a session and waits for its pending persistence.
func (s *Service) Close(id string) {
	s.mu.Lock()
	sess, ok := s.active[id]
	delete(s.active, id)
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.Close()
	logging.Info().Str("session", id).Msg("session closed")
	s.cfg.Bus.Publish(event.Event{Type: event.SessionClosed, Data: event.SessionData{Info: sess.Info()}})
}

// CloseAll ends every active session.
func (s *Service) CloseAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.Close(id)
	}
}
