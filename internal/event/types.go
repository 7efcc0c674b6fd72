package event

import "github.com/localgpt/localgpt/pkg/types"

// SessionData is the data for session.created and session.closed events.
type SessionData struct {
	Info *types.SessionInfo `json:"info"`
}

// TurnData is the data for turn.completed events.
type TurnData struct {
	SessionID string `json:"sessionID"`
	// Kind is "dialogue" for plain turns, otherwise the directive kind.
	Kind     string `json:"kind"`
	Messages int    `json:"messages"`
}

// TurnFailedData is the data for turn.failed events.
type TurnFailedData struct {
	SessionID string `json:"sessionID"`
	Error     string `json:"error"`
}

// DirectiveData is the data for directive.dispatched and directive.suggested events.
type DirectiveData struct {
	SessionID string `json:"sessionID,omitempty"`
	Kind      string `json:"kind"`
	Preview   string `json:"preview"`
	IsError   bool   `json:"isError,omitempty"`
}

// ProgramData is the data for program.* events.
type ProgramData struct {
	PID     int    `json:"pid"`
	Program string `json:"program"`
	Stream  string `json:"stream,omitempty"` // "stdout" | "stderr"
	Line    string `json:"line,omitempty"`
	// ExitCode is set on program.terminated; -1 when killed by a signal.
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}
