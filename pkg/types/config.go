package types

// Config represents the LocalGPT configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Model selection, "provider/model" (e.g. "anthropic/claude-3-5-sonnet-20240620")
	Model string `json:"model,omitempty"`

	// Token ceiling for every completion
	MaxTokens int `json:"maxTokens,omitempty"`

	// Provider configs keyed by provider ID
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Session server transport
	Server *ServerConfig `json:"server,omitempty"`

	// Conversation window and persistence
	Session *SessionConfig `json:"session,omitempty"`

	// Chat and overall memory storage
	Memory *MemoryConfig `json:"memory,omitempty"`

	// Sandboxed code execution and scraping
	Executor *ExecutorConfig `json:"executor,omitempty"`

	// Static capability and purpose descriptors
	Descriptors *DescriptorConfig `json:"descriptors,omitempty"`

	// Timeouts in milliseconds; zero disables
	Timeouts *TimeoutConfig `json:"timeouts,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey  string           `json:"apiKey,omitempty"`
	BaseURL string           `json:"baseURL,omitempty"`
	Options *ProviderOptions `json:"options,omitempty"`
}

// ProviderOptions is the nested options form of provider settings.
// Options take precedence over the direct fields once normalized.
type ProviderOptions struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
}

// ServerConfig configures the session server.
type ServerConfig struct {
	Host       string `json:"host,omitempty"`
	Port       int    `json:"port,omitempty"`
	Framing    string `json:"framing,omitempty"` // "raw" | "length"
	BufferSize int    `json:"bufferSize,omitempty"`
	Admin      string `json:"admin,omitempty"` // admin HTTP listen address, empty disables
}

// SessionConfig configures the per-connection conversation window.
type SessionConfig struct {
	SoftCap    int  `json:"softCap,omitempty"`
	KeepRecent int  `json:"keepRecent,omitempty"`
	Restore    bool `json:"restore,omitempty"`
}

// MemoryConfig configures chat and overall memory storage.
type MemoryConfig struct {
	Dir         string `json:"dir,omitempty"`
	MaxFileSize int    `json:"maxFileSize,omitempty"`
	// MaxChatSize caps one chat memory; 0 leaves chat memories unbounded.
	MaxChatSize int `json:"maxChatSize,omitempty"`
}

// ExecutorConfig configures the command executor.
type ExecutorConfig struct {
	VenvDir      string `json:"venvDir,omitempty"`
	Python       string `json:"python,omitempty"`
	KnowledgeDir string `json:"knowledgeDir,omitempty"`
	Browser      bool   `json:"browser,omitempty"` // render pages with a headless browser
}

// DescriptorConfig points at the capability and purpose JSON documents.
type DescriptorConfig struct {
	Capabilities string `json:"capabilities,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
}

// TimeoutConfig holds optional timeouts in milliseconds.
type TimeoutConfig struct {
	Completion int `json:"completion,omitempty"`
	Launch     int `json:"launch,omitempty"`
	Executor   int `json:"executor,omitempty"`
}
