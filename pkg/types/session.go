// Package types provides the core data types for the LocalGPT session engine.
package types

// SessionInfo describes a live session for status reporting.
type SessionInfo struct {
	ID           string      `json:"id"`
	Remote       string      `json:"remote"`
	MemoryHandle string      `json:"memoryHandle,omitempty"`
	Turns        int         `json:"turns"`
	Messages     int         `json:"messages"`
	Time         SessionTime `json:"time"`
}

// SessionTime contains timestamps for a session in unix milliseconds.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}
