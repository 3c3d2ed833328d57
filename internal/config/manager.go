package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the user's persistent configuration preferences.
type Config struct {
	LLMProvider    string `json:"llm_provider,omitempty"`   // openai, anthropic, deepseek, etc.
	APIKey         string `json:"api_key,omitempty"`        // The API key for the selected provider
	Model          string `json:"model,omitempty"`          // Default model name
	BaseURL        string `json:"base_url,omitempty"`       // Optional override for API base URL
	DataDir        string `json:"data_dir,omitempty"`       // Where sessions and the search index live
	Store          string `json:"store,omitempty"`          // json or sqlite
	Tone           string `json:"tone,omitempty"`           // neutral or casual
	UserRole       string `json:"user_role,omitempty"`      // Default role the user plays
	ProbePolicy    string `json:"probe_policy,omitempty"`   // first or random
	ParallelRounds bool   `json:"parallel_rounds"`          // Issue a round's model calls concurrently
	ContextTokens  int    `json:"context_tokens,omitempty"` // Token ceiling for history windows, 0 = off
}

// Defaults fills unset fields.
func (c *Config) Defaults(configDir string) {
	if c.DataDir == "" {
		c.DataDir = configDir
	}
	if c.Store == "" {
		c.Store = "json"
	}
	if c.Tone == "" {
		c.Tone = "neutral"
	}
	if c.ProbePolicy == "" {
		c.ProbePolicy = "first"
	}
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return NewManagerAt(filepath.Join(configDir, "ensemble")), nil
}

// NewManagerAt creates a manager rooted at dir.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// Dir returns the configuration directory.
func (m *Manager) Dir() string {
	return m.configDir
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the configuration from disk.
// If the file does not exist, it returns a default Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	var cfg Config
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.Defaults(m.configDir)
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	cfg.Defaults(m.configDir)
	return &cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// read/write only by owner, the file may hold an API key
	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}
