package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Settings holds user-configurable query defaults.
type Settings struct {
	TimeoutSeconds int  `json:"timeoutSeconds"`
	VerifyTLS      bool `json:"verifyTls"`
	Discover       bool `json:"discover"` // merge mDNS results into the printer list
}

// DefaultSettings returns the default query settings.
func DefaultSettings() Settings {
	return Settings{
		TimeoutSeconds: 10,
		VerifyTLS:      false,
		Discover:       false,
	}
}

// Timeout returns the per-printer timeout, falling back to the default
// when TimeoutSeconds is not positive.
func (s Settings) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return time.Duration(DefaultSettings().TimeoutSeconds) * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Store provides thread-safe settings persistence backed by a JSON file.
type Store struct {
	mu       sync.RWMutex
	settings Settings
	path     string
}

// NewStore creates a Store that persists settings to dataDir/settings.json.
// If the file does not exist or is invalid, defaults are used.
func NewStore(dataDir string, defaults Settings) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	s := &Store{
		path:     filepath.Join(dataDir, "settings.json"),
		settings: defaults,
	}
	s.load()
	return s, nil
}

// NewMemoryStore creates a Store that keeps settings in memory only.
func NewMemoryStore(defaults Settings) *Store {
	return &Store{settings: defaults}
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update replaces the settings and persists to disk.
func (s *Store) Update(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.save()
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return // missing file keeps defaults
	}
	settings := s.settings
	if err := json.Unmarshal(data, &settings); err != nil {
		slog.Warn("invalid settings file, using defaults", "path", s.path, "err", err)
		return
	}
	s.settings = settings
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
