package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/notification"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

const (
	DefaultFileName = "config.yaml"
	appDirName      = "hsu-watcher"
)

// Config represents the configuration file
type Config struct {
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
	History       HistoryConfig       `yaml:"history,omitempty"`
	Control       ControlConfig       `yaml:"control,omitempty"`
	Services      []ServiceConfig     `yaml:"services"`
}

type MonitoringConfig struct {
	IntervalSeconds      int           `yaml:"interval_seconds"`
	QueryTimeout         time.Duration `yaml:"query_timeout,omitempty"`
	MaxConcurrentQueries int           `yaml:"max_concurrent_queries,omitempty"`
	AutoStart            bool          `yaml:"auto_start"`
}

type NotificationsConfig struct {
	// Pointer to distinguish unset from 0, which means manual close
	DisplayTimeSeconds *int `yaml:"display_time_seconds,omitempty"`
	Desktop            bool `yaml:"desktop"`
}

// DisplaySeconds returns the configured display time or the default.
func (n NotificationsConfig) DisplaySeconds() int {
	if n.DisplayTimeSeconds == nil {
		return notification.DefaultDisplaySeconds
	}
	return *n.DisplayTimeSeconds
}

type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	Output string `yaml:"output,omitempty"`
}

// HistoryConfig enables the SQLite event journal when Path is set.
type HistoryConfig struct {
	Path      string        `yaml:"path,omitempty"`
	Retention time.Duration `yaml:"retention,omitempty"`
}

// ControlConfig enables the gRPC health endpoint when GRPCPort is set.
type ControlConfig struct {
	GRPCPort int `yaml:"grpc_port,omitempty"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name,omitempty"`
	// Pointer to distinguish unset from false
	NotificationEnabled *bool `yaml:"notification_enabled,omitempty"`
}

// NotificationsOn reports whether stop notifications are enabled for the
// service. Unset means enabled.
func (s ServiceConfig) NotificationsOn() bool {
	return s.NotificationEnabled == nil || *s.NotificationEnabled
}

// WatchConfig converts the file representation into what the engine consumes.
func (c *Config) WatchConfig() watcher.WatchConfig {
	services := make([]watcher.WatchedService, 0, len(c.Services))
	for _, svc := range c.Services {
		services = append(services, watcher.NewWatchedService(svc.Name, svc.DisplayName, svc.NotificationsOn()))
	}
	return watcher.WatchConfig{
		IntervalSeconds: c.Monitoring.IntervalSeconds,
		Services:        services,
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Notifications.DisplayTimeSeconds != nil {
		seconds := *c.Notifications.DisplayTimeSeconds
		clone.Notifications.DisplayTimeSeconds = &seconds
	}
	clone.Services = make([]ServiceConfig, len(c.Services))
	for i, svc := range c.Services {
		if svc.NotificationEnabled != nil {
			enabled := *svc.NotificationEnabled
			svc.NotificationEnabled = &enabled
		}
		clone.Services[i] = svc
	}
	return &clone
}

// DefaultConfig returns the configuration written on first run: one
// well-known service for the current platform.
func DefaultConfig() *Config {
	name, displayName := "cron", "Cron Daemon"
	switch runtime.GOOS {
	case "windows":
		name, displayName = "wuauserv", "Windows Update"
	case "darwin":
		name, displayName = "com.vix.cron", "Cron Daemon"
	}

	enabled := true
	config := &Config{
		Services: []ServiceConfig{
			{Name: name, DisplayName: displayName, NotificationEnabled: &enabled},
		},
	}
	_ = setConfigDefaults(config)
	return config
}

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.NewIOError("failed to determine user configuration directory", err)
	}
	return filepath.Join(dir, appDirName, DefaultFileName), nil
}

// LoadConfigFromFile loads the configuration from a YAML file and applies
// defaults. It does not validate.
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("configuration file does not exist", err).WithContext("filename", filename)
		}
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := ParseConfig(data)
	if err != nil {
		if domainErr, ok := err.(*errors.DomainError); ok {
			return nil, domainErr.WithContext("filename", filename)
		}
		return nil, err
	}
	return config, nil
}

// ParseConfig decodes YAML and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}
	if err := setConfigDefaults(&config); err != nil {
		return nil, errors.NewValidationError("failed to apply configuration defaults", err)
	}
	return &config, nil
}

// MarshalConfig encodes the configuration as YAML.
func MarshalConfig(config *Config) ([]byte, error) {
	data, err := yaml.Marshal(config)
	if err != nil {
		return nil, errors.NewInternalError("failed to encode configuration", err)
	}
	return data, nil
}

func setConfigDefaults(config *Config) error {
	if config.Monitoring.IntervalSeconds == 0 {
		config.Monitoring.IntervalSeconds = watcher.DefaultIntervalSeconds
	}
	if config.Monitoring.QueryTimeout == 0 {
		config.Monitoring.QueryTimeout = watcher.DefaultQueryTimeout
	}
	if config.Monitoring.MaxConcurrentQueries == 0 {
		config.Monitoring.MaxConcurrentQueries = watcher.DefaultMaxConcurrentQueries
	}
	if config.Notifications.DisplayTimeSeconds == nil {
		seconds := notification.DefaultDisplaySeconds
		config.Notifications.DisplayTimeSeconds = &seconds
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "console"
	}
	if config.Logging.Output == "" {
		config.Logging.Output = "stdout"
	}

	for i := range config.Services {
		if config.Services[i].DisplayName == "" {
			config.Services[i].DisplayName = config.Services[i].Name
		}
	}
	return nil
}
