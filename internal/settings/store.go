package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	applog "spendbook/internal/log"
)

// FileStore keeps Settings in a JSON file and caches the last loaded value.
type FileStore struct {
	path string
	log  *applog.Logger

	mu      sync.RWMutex
	current Settings
}

// NewFileStore returns a store for the file at path. Until Load is called
// Current returns Defaults.
func NewFileStore(path string, logger *applog.Logger) *FileStore {
	if logger == nil {
		logger = applog.Nop()
	}
	return &FileStore{
		path:    path,
		log:     logger.WithComponent(applog.ComponentSettings),
		current: Defaults(),
	}
}

// Path returns the settings file path.
func (fs *FileStore) Path() string {
	return fs.path
}

// Current returns the cached settings.
func (fs *FileStore) Current() Settings {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.current
}

// Load reads the file. A missing file yields Defaults; fields absent from the
// file keep their default values.
func (fs *FileStore) Load() (Settings, error) {
	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		s := Defaults()
		fs.set(s)
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	s := Defaults()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", fs.path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	fs.set(s)
	fs.log.Debug("Settings loaded", applog.FieldPath, fs.path, "currency", s.Currency)
	return s, nil
}

// Save validates s and writes it atomically.
func (fs *FileStore) Save(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp settings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}

	fs.set(s)
	fs.log.Info("Settings saved", applog.FieldPath, fs.path)
	return nil
}

// Update applies p on top of the cached settings and saves the result.
func (fs *FileStore) Update(p Patch) (Settings, error) {
	next := p.Apply(fs.Current())
	if err := fs.Save(next); err != nil {
		return Settings{}, err
	}
	return next, nil
}

func (fs *FileStore) set(s Settings) {
	fs.mu.Lock()
	fs.current = s
	fs.mu.Unlock()
}
