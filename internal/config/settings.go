package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	settingsFile = "settings.json"
	aiConfigFile = "ai_config.json"

	// KeepForever disables the retention sweep.
	KeepForever = -1

	defaultAIProvider = "gemini"
	maskedKey         = "***"
)

// SettingsData is the serializable form of settings.json.
type SettingsData struct {
	ScreenshotInterval int  `json:"screenshot_interval,omitempty"`
	RetentionDays      *int `json:"retention_days,omitempty"`
	ServerPort         int  `json:"server_port,omitempty"`
}

// AIConfig is the serializable form of ai_config.json.
type AIConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// Masked hides the key, keeping only whether one is set.
func (c AIConfig) Masked() AIConfig {
	if c.APIKey != "" {
		c.APIKey = maskedKey
	}
	return c
}

// Settings holds the values the user can change while the process runs.
// Every write is persisted immediately.
type Settings struct {
	mu   sync.RWMutex
	dir  string
	data SettingsData
	ai   AIConfig
}

// NewSettings loads settings from dataDir. Missing or corrupt files fall back
// to defaults.
func NewSettings(dataDir string) *Settings {
	s := &Settings{dir: dataDir, ai: AIConfig{Provider: defaultAIProvider}}
	s.read(settingsFile, &s.data)
	s.read(aiConfigFile, &s.ai)
	if s.ai.Provider == "" {
		s.ai.Provider = defaultAIProvider
	}
	return s
}

func (s *Settings) read(name string, v any) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return
	}
	if len(data) == 0 {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("ignoring unreadable settings file", "file", name, "error", err)
	}
}

// write persists v atomically. Callers hold s.mu.
func (s *Settings) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ScreenshotInterval is the saved capture interval in seconds; 0 when unset.
func (s *Settings) ScreenshotInterval() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ScreenshotInterval
}

func (s *Settings) SetScreenshotInterval(seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ScreenshotInterval = max(1, seconds)
	return s.write(settingsFile, s.data)
}

// RetentionDays defaults to KeepForever.
func (s *Settings) RetentionDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.RetentionDays == nil {
		return KeepForever
	}
	return *s.data.RetentionDays
}

func (s *Settings) SetRetentionDays(days int) error {
	if days < KeepForever {
		days = KeepForever
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.RetentionDays = &days
	return s.write(settingsFile, s.data)
}

// ServerPort is the saved listen port; 0 when unset.
func (s *Settings) ServerPort() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ServerPort
}

func (s *Settings) AIConfig() AIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ai
}

func (s *Settings) SetAIConfig(c AIConfig) error {
	if c.Provider == "" {
		c.Provider = defaultAIProvider
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ai = c
	return s.write(aiConfigFile, s.ai)
}
