// Package capability provides the native side of the session engine: launching
// local programs and persisting chat and overall memory.
package capability

import (
	"context"
	"errors"
)

var (
	// ErrLaunchFailed wraps every error returned by LaunchProgram.
	ErrLaunchFailed = errors.New("launch failed")
	// ErrMemoryNotFound is returned for unknown or malformed memory handles.
	ErrMemoryNotFound = errors.New("memory not found")
	// ErrMemoryTooLarge is returned when content exceeds the per-file limit.
	ErrMemoryTooLarge = errors.New("memory content too large")
)

// Provider is the capability surface the session engine depends on.
// Implementations must be safe for concurrent use by many sessions.
type Provider interface {
	// LaunchProgram starts program with the given argument string and
	// returns once it has started. The process keeps running afterwards.
	LaunchProgram(ctx context.Context, program, arguments string) error

	CreateChatMemory(ctx context.Context) (string, error)
	UpdateChatMemory(ctx context.Context, handle, content string) error
	LoadChatMemory(ctx context.Context, handle string) (string, error)

	// UpdateOverallMemory appends text to the rolling cross-session memory.
	UpdateOverallMemory(ctx context.Context, text string) error
}

// Native is the Provider backed by local processes and file storage.
type Native struct {
	*Launcher
	*MemoryManager
}

// NewNative combines a launcher and a memory manager into a Provider.
func NewNative(launcher *Launcher, memory *MemoryManager) *Native {
	return &Native{Launcher: launcher, MemoryManager: memory}
}

var _ Provider = (*Native)(nil)
