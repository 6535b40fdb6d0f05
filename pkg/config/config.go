// Package config loads and saves the OpsAI configuration document (spec
// §6.1). Grounded on original_source/src/config/manager.go's schema
// (llm/safety/audit). Defaults come from Default() in this file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LLMConfig configures the LLM client.
type LLMConfig struct {
	BaseURL     string `json:"base_url"`
	Model       string `json:"model"`
	APIKey      string `json:"api_key"`
	TimeoutSec  int    `json:"timeout"`
	MaxTokens   int    `json:"max_tokens"`
}

// SafetyConfig configures the orchestrator's risk policy.
type SafetyConfig struct {
	AutoApproveSafe        bool   `json:"auto_approve_safe"`
	CLIMaxRisk             string `json:"cli_max_risk"`
	TUIMaxRisk             string `json:"tui_max_risk"`
	RequireDryRunForHighRisk bool `json:"require_dry_run_for_high_risk"`
}

// AuditConfig configures the append-only audit trail.
type AuditConfig struct {
	LogPath      string `json:"log_path"`
	MaxLogSizeMB int    `json:"max_log_size_mb"`
	RetainDays   int    `json:"retain_days"`
}

// OpsAIConfig is the full configuration document.
type OpsAIConfig struct {
	LLM    LLMConfig    `json:"llm"`
	Safety SafetyConfig `json:"safety"`
	Audit  AuditConfig  `json:"audit"`
}

// Default returns the zero-value-free default configuration.
func Default() OpsAIConfig {
	return OpsAIConfig{
		LLM: LLMConfig{
			BaseURL:    "http://localhost:11434/v1",
			Model:      "qwen2.5:7b",
			TimeoutSec: 30,
			MaxTokens:  2048,
		},
		Safety: SafetyConfig{
			AutoApproveSafe: true,
			CLIMaxRisk:      "safe",
			TUIMaxRisk:      "high",
		},
		Audit: AuditConfig{
			LogPath:      "~/.opsai/audit.log",
			MaxLogSizeMB: 100,
			RetainDays:   90,
		},
	}
}

// Manager loads and persists the configuration document at a fixed path.
type Manager struct {
	path string
}

// NewManager builds a manager over the given path. An empty path defaults
// to ~/.opsai/config.json.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config: resolving home dir: %w", err)
		}
		path = filepath.Join(home, ".opsai", "config.json")
	}
	return &Manager{path: path}, nil
}

// Path returns the resolved config file path.
func (m *Manager) Path() string { return m.path }

// Load reads the config document, creating it with defaults if absent.
func (m *Manager) Load() (OpsAIConfig, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := m.Save(cfg); err != nil {
			return OpsAIConfig{}, err
		}
		return cfg, nil
	}
	if err != nil {
		return OpsAIConfig{}, fmt.Errorf("config: reading %s: %w", m.path, err)
	}

	var cfg OpsAIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return OpsAIConfig{}, fmt.Errorf("config: parsing %s: %w", m.path, err)
	}
	return cfg, nil
}

// Save writes cfg to the config path, creating parent directories as needed.
func (m *Manager) Save(cfg OpsAIConfig) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("config: creating dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(m.path, data, 0o644)
}
