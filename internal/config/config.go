package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/localgpt/localgpt/pkg/types"
	"github.com/tidwall/jsonc"
)

// Defaults applied by Load when no source sets a value.
const (
	DefaultModel       = "anthropic/claude-3-5-sonnet-20240620"
	DefaultMaxTokens   = 1024
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 9999
	DefaultFraming     = "raw"
	DefaultBufferSize  = 4096
	DefaultSoftCap     = 20
	DefaultKeepRecent  = 10
	DefaultMaxFileSize = 5000
	DefaultPython      = "python3"
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/localgpt/)
// 2. Project config (localgpt.json[c] in directory)
// 3. LOCALGPT_CONFIG file
// 4. LOCALGPT_CONFIG_CONTENT inline JSON
// 5. Environment variables
//
// Defaults fill whatever is still unset afterwards.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if err == nil {
			loaded[absPath] = true
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// 1. Global config
	globalPath := GetPaths().Config
	for _, name := range []string{"localgpt.json", "localgpt.jsonc"} {
		if err := loadOnce(filepath.Join(globalPath, name), globalPath); err != nil {
			return nil, err
		}
	}

	// 2. Project config
	if directory != "" {
		for _, name := range []string{"localgpt.json", "localgpt.jsonc"} {
			if err := loadOnce(filepath.Join(directory, name), directory); err != nil {
				return nil, err
			}
		}
	}

	// 3. LOCALGPT_CONFIG file override
	if configPath := os.Getenv("LOCALGPT_CONFIG"); configPath != "" {
		if err := loadOnce(configPath, filepath.Dir(configPath)); err != nil {
			return nil, err
		}
	}

	// 4. LOCALGPT_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("LOCALGPT_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal([]byte(configContent), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	normalizeProviderConfig(config)
	applyDefaults(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for a JSON string body
		quoted, _ := json.Marshal(string(content))
		return string(quoted[1 : len(quoted)-1])
	})

	return []byte(str)
}

// normalizeProviderConfig merges Options fields into direct fields.
func normalizeProviderConfig(config *types.Config) {
	for name, provider := range config.Provider {
		if provider.Options != nil {
			if provider.Options.APIKey != "" {
				provider.APIKey = provider.Options.APIKey
			}
			if provider.Options.BaseURL != "" {
				provider.BaseURL = provider.Options.BaseURL
			}
		}
		config.Provider[name] = provider
	}
}

// mergeConfig merges source config into target. Scalars overwrite, maps
// combine by key, and section structs are merged field by field.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.MaxTokens > 0 {
		target.MaxTokens = source.MaxTokens
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if s := source.Server; s != nil {
		if target.Server == nil {
			target.Server = &types.ServerConfig{}
		}
		t := target.Server
		if s.Host != "" {
			t.Host = s.Host
		}
		if s.Port > 0 {
			t.Port = s.Port
		}
		if s.Framing != "" {
			t.Framing = s.Framing
		}
		if s.BufferSize > 0 {
			t.BufferSize = s.BufferSize
		}
		if s.Admin != "" {
			t.Admin = s.Admin
		}
	}

	if s := source.Session; s != nil {
		if target.Session == nil {
			target.Session = &types.SessionConfig{}
		}
		t := target.Session
		if s.SoftCap > 0 {
			t.SoftCap = s.SoftCap
		}
		if s.KeepRecent > 0 {
			t.KeepRecent = s.KeepRecent
		}
		if s.Restore {
			t.Restore = true
		}
	}

	if s := source.Memory; s != nil {
		if target.Memory == nil {
			target.Memory = &types.MemoryConfig{}
		}
		if s.Dir != "" {
			target.Memory.Dir = s.Dir
		}
		if s.MaxFileSize > 0 {
			target.Memory.MaxFileSize = s.MaxFileSize
		}
		if s.MaxChatSize > 0 {
			target.Memory.MaxChatSize = s.MaxChatSize
		}
	}

	if s := source.Executor; s != nil {
		if target.Executor == nil {
			target.Executor = &types.ExecutorConfig{}
		}
		t := target.Executor
		if s.VenvDir != "" {
			t.VenvDir = s.VenvDir
		}
		if s.Python != "" {
			t.Python = s.Python
		}
		if s.KnowledgeDir != "" {
			t.KnowledgeDir = s.KnowledgeDir
		}
		if s.Browser {
			t.Browser = true
		}
	}

	if s := source.Descriptors; s != nil {
		if target.Descriptors == nil {
			target.Descriptors = &types.DescriptorConfig{}
		}
		if s.Capabilities != "" {
			target.Descriptors.Capabilities = s.Capabilities
		}
		if s.Purpose != "" {
			target.Descriptors.Purpose = s.Purpose
		}
	}

	if source.Timeouts != nil {
		target.Timeouts = source.Timeouts
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	// Provider API keys
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	if model := os.Getenv("LOCALGPT_MODEL"); model != "" {
		config.Model = model
	}

	if port, err := strconv.Atoi(os.Getenv("LOCALGPT_PORT")); err == nil && port > 0 {
		if config.Server == nil {
			config.Server = &types.ServerConfig{}
		}
		config.Server.Port = port
	}
}

// applyDefaults fills unset values.
func applyDefaults(config *types.Config) {
	paths := GetPaths()

	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}

	if config.Server == nil {
		config.Server = &types.ServerConfig{}
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if config.Server.Port == 0 {
		config.Server.Port = DefaultPort
	}
	if config.Server.Framing == "" {
		config.Server.Framing = DefaultFraming
	}
	if config.Server.BufferSize == 0 {
		config.Server.BufferSize = DefaultBufferSize
	}

	if config.Session == nil {
		config.Session = &types.SessionConfig{}
	}
	if config.Session.SoftCap == 0 {
		config.Session.SoftCap = DefaultSoftCap
	}
	if config.Session.KeepRecent == 0 {
		config.Session.KeepRecent = DefaultKeepRecent
	}

	if config.Memory == nil {
		config.Memory = &types.MemoryConfig{}
	}
	if config.Memory.Dir == "" {
		config.Memory.Dir = paths.MemoryPath()
	}
	if config.Memory.MaxFileSize == 0 {
		config.Memory.MaxFileSize = DefaultMaxFileSize
	}

	if config.Executor == nil {
		config.Executor = &types.ExecutorConfig{}
	}
	if config.Executor.VenvDir == "" {
		config.Executor.VenvDir = paths.VenvPath()
	}
	if config.Executor.Python == "" {
		config.Executor.Python = DefaultPython
	}
	if config.Executor.KnowledgeDir == "" {
		config.Executor.KnowledgeDir = paths.KnowledgePath()
	}

	if config.Descriptors == nil {
		config.Descriptors = &types.DescriptorConfig{}
	}
	if config.Descriptors.Capabilities == "" {
		config.Descriptors.Capabilities = "capabilities.json"
	}
	if config.Descriptors.Purpose == "" {
		config.Descriptors.Purpose = "purpose.json"
	}

	if config.Timeouts == nil {
		config.Timeouts = &types.TimeoutConfig{}
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
