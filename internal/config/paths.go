package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for LocalGPT data.
type Paths struct {
	Data   string // ~/.local/share/localgpt
	Config string // ~/.config/localgpt
	Cache  string // ~/.cache/localgpt
	State  string // ~/.local/state/localgpt
}

// GetPaths returns the standard paths for LocalGPT data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "localgpt"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "localgpt"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "localgpt"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "localgpt"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State, p.MemoryPath(), p.KnowledgePath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// MemoryPath returns the root of the chat and overall memory store.
func (p *Paths) MemoryPath() string {
	return filepath.Join(p.Data, "memory")
}

// KnowledgePath returns the directory scraped link lists are written to.
func (p *Paths) KnowledgePath() string {
	return filepath.Join(p.Data, "knowledge")
}

// VenvPath returns the sandbox virtual environment directory.
func (p *Paths) VenvPath() string {
	return filepath.Join(p.Cache, "venv")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "localgpt.json")
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, "localgpt.json")
}
