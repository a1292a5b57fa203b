package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/leandrodaf/voicemidi/sdk/contracts"
	"github.com/natefinch/atomic"
)

// Error definitions for loading the configuration file.
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigCorrupt  = errors.New("config file is corrupt")
)

// DefaultPath returns the per-user config location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(dir, "voicemidi", "config.json"), nil
}

// Store loads and saves a Config file. Saves replace the file atomically, so a
// crash mid-write leaves either the old or the new contents.
type Store struct {
	path   string
	logger contracts.Logger
}

// NewStore returns a store for the file at path.
func NewStore(path string, logger contracts.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Exists reports whether the file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the configuration. A missing file yields the defaults and
// ErrConfigNotFound; an unreadable or invalid one yields the defaults and
// ErrConfigCorrupt.
func (s *Store) Load() (Config, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), ErrConfigNotFound
	}
	if err != nil {
		return Default(), fmt.Errorf("reading config %s: %w", s.path, err)
	}

	cfg, migrated, err := Decode(data)
	if err != nil {
		s.logger.Warn("Ignoring corrupt config file",
			s.logger.Field().String("path", s.path),
			s.logger.Field().Error("error", err))
		return Default(), fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}
	if migrated {
		s.logger.Info("Migrated legacy config file", s.logger.Field().String("path", s.path))
	}
	return cfg, nil
}

// Save validates cfg and writes it.
func (s *Store) Save(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}
	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing config %s: %w", s.path, err)
	}
	s.logger.Debug("Config saved", s.logger.Field().String("path", s.path))
	return nil
}

// Reset deletes the file. Deleting a missing file is not an error.
func (s *Store) Reset() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing config %s: %w", s.path, err)
	}
	return nil
}

// Encode renders cfg as indented JSON.
func Encode(cfg Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a config document, converting the legacy layout when present.
// Fields absent from the document keep their defaults. migrated reports a
// legacy conversion.
func Decode(data []byte) (cfg Config, migrated bool, err error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return Config{}, false, fmt.Errorf("parsing config: %w", err)
	}

	if isLegacy(keys) {
		var legacy legacyConfig
		if err := json.Unmarshal(data, &legacy); err != nil {
			return Config{}, false, fmt.Errorf("parsing legacy config: %w", err)
		}
		cfg = legacy.convert()
		migrated = true
	} else {
		cfg = Default()
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, false, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, migrated, nil
}
