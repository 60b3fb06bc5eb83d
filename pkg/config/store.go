package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

// ChangeHandler is called with a copy of the configuration after it changes.
type ChangeHandler func(config *Config)

// FileStore keeps the configuration in a YAML file next to a backup copy
// of the previous version. A missing file is replaced by the default
// configuration; a corrupt or invalid one falls back to the backup.
type FileStore struct {
	path       string
	backupPath string
	logger     logging.Logger

	mutex    sync.Mutex
	current  *Config
	handlers []ChangeHandler
}

var _ watcher.ConfigStore = (*FileStore)(nil)

func NewFileStore(path string, logger logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FileStore{
		path:       path,
		backupPath: backupPathFor(path),
		logger:     logger,
	}
}

// backupPathFor derives "<dir>/<name>.backup<ext>" from the config path.
func backupPathFor(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".backup" + ext
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) BackupPath() string {
	return s.backupPath
}

// Exists reports whether the configuration file is present.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// OnChanged registers a handler called after Save, Reload and restore.
func (s *FileStore) OnChanged(handler ChangeHandler) {
	if handler == nil {
		return
	}
	s.mutex.Lock()
	s.handlers = append(s.handlers, handler)
	s.mutex.Unlock()
}

// Current returns a copy of the last loaded or saved configuration, or nil.
func (s *FileStore) Current() *Config {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.Clone()
}

// Validate checks a configuration without touching the file.
func (s *FileStore) Validate(config *Config) error {
	return ValidateConfig(config)
}

// Load reads the configuration file. A missing file is replaced by the
// default configuration; an unreadable one is an error; a corrupt or invalid
// one is recovered from the backup or, failing that, the default.
func (s *FileStore) Load() (*Config, error) {
	s.logger.Infof("Loading configuration, path: %s", s.path)

	config, err := LoadConfigFromFile(s.path)
	if err != nil {
		switch {
		case errors.IsNotFoundError(err):
			s.logger.Infof("Configuration file not found, creating default")
			return s.CreateDefault()
		case errors.IsIOError(err):
			s.logger.Errorf("Failed to read configuration file: %v", err)
			return nil, err
		default:
			s.logger.Errorf("Failed to parse configuration: %v", err)
			return s.TryLoadBackup()
		}
	}

	if err := ValidateConfig(config); err != nil {
		s.logger.Errorf("Configuration validation failed: %s", strings.Join(Problems(err), "; "))
		return s.TryLoadBackup()
	}

	s.setCurrent(config)
	s.logger.Infof("Configuration loaded, services: %d", len(config.Services))
	return config.Clone(), nil
}

// Reload reads the file again and notifies change handlers.
func (s *FileStore) Reload() (*Config, error) {
	s.logger.Infof("Reloading configuration from disk")
	config, err := s.Load()
	if err != nil {
		return nil, err
	}
	s.notify(config)
	return config, nil
}

// Save validates config, copies the current file to the backup and writes
// the new version atomically.
func (s *FileStore) Save(config *Config) error {
	if err := ValidateConfig(config); err != nil {
		s.logger.Errorf("Refusing to save invalid configuration: %s", strings.Join(Problems(err), "; "))
		return err
	}

	data, err := MarshalConfig(config)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.NewIOError("failed to create configuration directory", err).WithContext("path", s.path)
	}

	if s.Exists() {
		if err := copyFile(s.path, s.backupPath); err != nil {
			return err
		}
		s.logger.Debugf("Created configuration backup, path: %s", s.backupPath)
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}

	s.setCurrent(config)
	s.logger.Infof("Configuration saved, path: %s", s.path)
	s.notify(config)
	return nil
}

// CreateDefault writes and returns the default configuration.
func (s *FileStore) CreateDefault() (*Config, error) {
	s.logger.Infof("Creating default configuration, path: %s", s.path)
	config := DefaultConfig()
	if err := s.Save(config); err != nil {
		return nil, err
	}
	return config.Clone(), nil
}

// TryLoadBackup returns the backup configuration when it is valid and the
// default configuration otherwise.
func (s *FileStore) TryLoadBackup() (*Config, error) {
	s.logger.Infof("Attempting to load backup configuration, path: %s", s.backupPath)

	config, err := s.loadBackup()
	if err != nil {
		s.logger.Warnf("Backup configuration unusable, creating default: %v", err)
		return s.CreateDefault()
	}

	s.setCurrent(config)
	s.logger.Infof("Loaded configuration from backup")
	return config.Clone(), nil
}

// RestoreFromBackup replaces the configuration file with the backup. The
// backup must exist and be valid.
func (s *FileStore) RestoreFromBackup() error {
	s.logger.Infof("Restoring configuration from backup")

	config, err := s.loadBackup()
	if err != nil {
		s.logger.Errorf("Failed to restore from backup: %v", err)
		return err
	}

	if err := copyFile(s.backupPath, s.path); err != nil {
		return err
	}

	s.setCurrent(config)
	s.logger.Infof("Configuration restored from backup")
	s.notify(config)
	return nil
}

// LoadWatchConfig loads the file and returns the part the engine consumes.
func (s *FileStore) LoadWatchConfig(ctx context.Context) (watcher.WatchConfig, error) {
	if err := ctx.Err(); err != nil {
		return watcher.WatchConfig{}, errors.NewCancelledError("configuration load cancelled", err)
	}
	config, err := s.Load()
	if err != nil {
		return watcher.WatchConfig{}, err
	}
	return config.WatchConfig(), nil
}

func (s *FileStore) loadBackup() (*Config, error) {
	config, err := LoadConfigFromFile(s.backupPath)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func (s *FileStore) setCurrent(config *Config) {
	s.mutex.Lock()
	s.current = config.Clone()
	s.mutex.Unlock()
}

func (s *FileStore) notify(config *Config) {
	s.mutex.Lock()
	handlers := make([]ChangeHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mutex.Unlock()

	for _, handler := range handlers {
		handler(config.Clone())
	}
}

func copyFile(from, to string) error {
	data, err := os.ReadFile(from)
	if err != nil {
		return errors.NewIOError("failed to read file for copy", err).WithContext("path", from)
	}
	return writeFileAtomic(to, data)
}

// writeFileAtomic writes through a temporary file in the same directory so a
// crash never leaves a half-written configuration behind.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.NewIOError("failed to create temporary file", err).WithContext("path", path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIOError("failed to write temporary file", err).WithContext("path", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("failed to close temporary file", err).WithContext("path", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("failed to replace file", err).WithContext("path", path)
	}
	return nil
}
