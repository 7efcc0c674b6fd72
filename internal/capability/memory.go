package capability

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/localgpt/localgpt/internal/storage"
	"github.com/oklog/ulid/v2"
)

const (
	chatMemoryPrefix    = "chat_memory_"
	overallMemoryPrefix = "overall_memory_"
	overallSeparator    = "\n\n"
	// Sortable segment timestamp.
	segmentTimeFormat = "20060102150405.000000000"
)

// DefaultMaxMemorySize is the byte limit of one overall memory segment.
const DefaultMaxMemorySize = 5000

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type chatMemory struct {
	Handle  string `json:"handle"`
	Content string `json:"content"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
}

type overallSegment struct {
	Content string `json:"content"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
}

// ChatMemoryInfo summarizes a stored chat memory.
type ChatMemoryInfo struct {
	Handle  string `json:"handle"`
	Size    int    `json:"size"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
}

// MemoryManager persists chat memories (one opaque blob per handle) and the
// overall memory, a log of exchanges rolled into fixed-size segments.
//
// Layout under the storage root:
//
//	chat/chat_memory_<ulid>.json
//	overall/overall_memory_<timestamp>.json
type MemoryManager struct {
	store   *storage.Storage
	maxSize int
	// 0 means chat memories are unbounded
	chatLimit int
	now       func() time.Time

	// serialises segment rollover
	overallMu sync.Mutex
}

// MemoryOption configures a MemoryManager.
type MemoryOption func(*MemoryManager)

// WithChatLimit caps the size of a single chat memory. Chat memories are
// unbounded by default.
func WithChatLimit(n int) MemoryOption {
	return func(m *MemoryManager) {
		if n > 0 {
			m.chatLimit = n
		}
	}
}

// NewMemoryManager creates a manager over store. maxSize is the overall
// segment size; maxSize <= 0 uses DefaultMaxMemorySize.
func NewMemoryManager(store *storage.Storage, maxSize int, opts ...MemoryOption) *MemoryManager {
	if maxSize <= 0 {
		maxSize = DefaultMaxMemorySize
	}
	m := &MemoryManager{
		store:   store,
		maxSize: maxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func chatPath(handle string) []string {
	return []string{"chat", handle}
}

func validHandle(handle string) error {
	if !handlePattern.MatchString(handle) {
		return fmt.Errorf("%w: invalid handle %q", ErrMemoryNotFound, handle)
	}
	return nil
}

// CreateChatMemory allocates a new empty chat memory and returns its handle.
func (m *MemoryManager) CreateChatMemory(ctx context.Context) (string, error) {
	handle := chatMemoryPrefix + ulid.Make().String()
	now := m.now().UnixMilli()

	err := m.store.Put(ctx, chatPath(handle), chatMemory{
		Handle:  handle,
		Created: now,
		Updated: now,
	})
	if err != nil {
		return "", fmt.Errorf("create chat memory: %w", err)
	}
	return handle, nil
}

// UpdateChatMemory replaces the content stored under handle. The handle must
// have been created first.
func (m *MemoryManager) UpdateChatMemory(ctx context.Context, handle, content string) error {
	if err := validHandle(handle); err != nil {
		return err
	}
	if m.chatLimit > 0 && len(content) > m.chatLimit {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrMemoryTooLarge, len(content), m.chatLimit)
	}

	var mem chatMemory
	err := m.store.Update(ctx, chatPath(handle), &mem, func() error {
		if mem.Handle == "" {
			return fmt.Errorf("%w: %s", ErrMemoryNotFound, handle)
		}
		mem.Content = content
		mem.Updated = m.now().UnixMilli()
		return nil
	})
	if err != nil {
		return fmt.Errorf("update chat memory: %w", err)
	}
	return nil
}

// LoadChatMemory returns the content stored under handle.
func (m *MemoryManager) LoadChatMemory(ctx context.Context, handle string) (string, error) {
	if err := validHandle(handle); err != nil {
		return "", err
	}

	var mem chatMemory
	if err := m.store.Get(ctx, chatPath(handle), &mem); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrMemoryNotFound, handle)
		}
		return "", fmt.Errorf("load chat memory: %w", err)
	}
	return mem.Content, nil
}

// DeleteChatMemory removes the chat memory stored under handle.
func (m *MemoryManager) DeleteChatMemory(ctx context.Context, handle string) error {
	if err := validHandle(handle); err != nil {
		return err
	}
	if !m.store.Exists(ctx, chatPath(handle)) {
		return fmt.Errorf("%w: %s", ErrMemoryNotFound, handle)
	}
	if err := m.store.Delete(ctx, chatPath(handle)); err != nil {
		return fmt.Errorf("delete chat memory: %w", err)
	}
	return nil
}

// Dir returns the directory memories are stored under.
func (m *MemoryManager) Dir() string {
	return m.store.BasePath()
}

// ListChatMemories returns every stored chat memory, oldest handle first.
func (m *MemoryManager) ListChatMemories(ctx context.Context) ([]ChatMemoryInfo, error) {
	handles, err := m.store.List(ctx, []string{"chat"})
	if err != nil {
		return nil, err
	}

	infos := make([]ChatMemoryInfo, 0, len(handles))
	for _, handle := range handles {
		var mem chatMemory
		if err := m.store.Get(ctx, chatPath(handle), &mem); err != nil {
			continue
		}
		infos = append(infos, ChatMemoryInfo{
			Handle:  handle,
			Size:    len(mem.Content),
			Created: mem.Created,
			Updated: mem.Updated,
		})
	}
	return infos, nil
}

// UpdateOverallMemory appends text to the newest overall segment, starting a
// new segment when the text would push it past the size limit.
func (m *MemoryManager) UpdateOverallMemory(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	m.overallMu.Lock()
	defer m.overallMu.Unlock()

	keys, err := m.store.List(ctx, []string{"overall"})
	if err != nil {
		return fmt.Errorf("update overall memory: %w", err)
	}

	now := m.now()
	if len(keys) > 0 {
		last := keys[len(keys)-1]
		var seg overallSegment
		errFull := errors.New("segment full")
		err := m.store.Update(ctx, []string{"overall", last}, &seg, func() error {
			if len(seg.Content)+len(overallSeparator)+len(text) > m.maxSize {
				return errFull
			}
			if seg.Content != "" {
				seg.Content += overallSeparator
			}
			seg.Content += text
			seg.Updated = now.UnixMilli()
			return nil
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, errFull) {
			return fmt.Errorf("update overall memory: %w", err)
		}
	}

	key := overallMemoryPrefix + now.UTC().Format(segmentTimeFormat)
	for n := 1; m.store.Exists(ctx, []string{"overall", key}); n++ {
		key = fmt.Sprintf("%s%s_%d", overallMemoryPrefix, now.UTC().Format(segmentTimeFormat), n)
	}
	seg := overallSegment{Content: text, Created: now.UnixMilli(), Updated: now.UnixMilli()}
	if err := m.store.Put(ctx, []string{"overall", key}, seg); err != nil {
		return fmt.Errorf("update overall memory: %w", err)
	}
	return nil
}

// LoadOverallMemory returns the content of every overall segment, oldest first.
func (m *MemoryManager) LoadOverallMemory(ctx context.Context) ([]string, error) {
	keys, err := m.store.List(ctx, []string{"overall"})
	if err != nil {
		return nil, fmt.Errorf("load overall memory: %w", err)
	}

	segments := make([]string, 0, len(keys))
	for _, key := range keys {
		var seg overallSegment
		if err := m.store.Get(ctx, []string{"overall", key}, &seg); err != nil {
			return nil, fmt.Errorf("load overall memory %s: %w", key, err)
		}
		segments = append(segments, seg.Content)
	}
	return segments, nil
}
