// omp-launcher/config/settings.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"omp-launcher/logs"
)

// SampVersion is the client DLL variant the player launches with.
type SampVersion string

var SampVersions = []SampVersion{
	"custom", "037R1", "037R2", "03DL", "037R3", "037R3_1", "037R4", "037R4_2", "037R5",
}

const DefaultSampVersion SampVersion = "custom"

// Settings is the persisted client state shared by every launcher window.
type Settings struct {
	NickName    string      `json:"nickName"`
	GamePath    string      `json:"gtasaPath"`
	SampVersion SampVersion `json:"sampVersion"`
	DataMerged  bool        `json:"dataMerged"`
	Language    string      `json:"language"`
}

func DefaultSettings() Settings {
	return Settings{SampVersion: DefaultSampVersion, Language: "en"}
}

// Change describes a settings write other windows should react to.
type Change struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// NotifyDelay is how long a change waits before subscribers hear about it,
// so the write is on disk before other windows rehydrate.
var NotifyDelay = 200 * time.Millisecond

var logger = logs.L("config")

// Store persists Settings as JSON.
type Store struct {
	path string

	mu   sync.RWMutex
	data Settings

	subMu sync.RWMutex
	subs  []func(Change)
}

// DefaultSettingsPath returns <user config dir>/omp-launcher/settings.json.
func DefaultSettingsPath() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(userConfigDir, "omp-launcher", "settings.json"), nil
}

// OpenStore loads the settings at path. A missing or unparsable file yields defaults.
func OpenStore(path string) (*Store, error) {
	s := &Store{path: path, data: DefaultSettings()}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rehydrates the in-memory copy from disk.
func (s *Store) Reload() error {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open settings: %w", err)
	}
	defer file.Close()

	data := DefaultSettings()
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		logger.Warn("settings file unreadable, using defaults", "path", s.path, "error", err)
		data = DefaultSettings()
	}
	if !ValidSampVersion(data.SampVersion) {
		data.SampVersion = DefaultSampVersion
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// Save replaces the settings and writes them to disk.
func (s *Store) Save(data Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(data)
}

func (s *Store) writeLocked(data Settings) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "settings_*.tmp")
	if err != nil {
		return fmt.Errorf("create settings temp file: %w", err)
	}
	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close settings temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace settings file: %w", err)
	}
	s.data = data
	return nil
}

func (s *Store) update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.data
	fn(&data)
	return s.writeLocked(data)
}

// SetNickName saves the nickname and notifies other windows.
func (s *Store) SetNickName(name string) error {
	if err := s.update(func(d *Settings) { d.NickName = name }); err != nil {
		return err
	}
	s.emitWithDelay(Change{Key: "nickName", Value: name})
	return nil
}

func (s *Store) SetGamePath(path string) error {
	return s.update(func(d *Settings) { d.GamePath = path })
}

func (s *Store) SetSampVersion(v SampVersion) error {
	if !ValidSampVersion(v) {
		return fmt.Errorf("unknown samp version %q", v)
	}
	return s.update(func(d *Settings) { d.SampVersion = v })
}

func (s *Store) SetLanguage(lang string) error {
	if lang == "" {
		return fmt.Errorf("language must not be empty")
	}
	return s.update(func(d *Settings) { d.Language = lang })
}

func (s *Store) SetDataMerged(merged bool) error {
	return s.update(func(d *Settings) { d.DataMerged = merged })
}

// Subscribe registers fn for cross-window change notifications.
func (s *Store) Subscribe(fn func(Change)) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

func (s *Store) emitWithDelay(c Change) {
	s.subMu.RLock()
	subs := slices.Clone(s.subs)
	s.subMu.RUnlock()
	if len(subs) == 0 {
		return
	}
	time.AfterFunc(NotifyDelay, func() {
		for _, fn := range subs {
			fn(c)
		}
	})
}

func ValidSampVersion(v SampVersion) bool {
	for _, known := range SampVersions {
		if v == known {
			return true
		}
	}
	return false
}
