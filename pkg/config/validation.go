package config

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/notification"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

const MaxServices = 100

// ValidateConfig checks the whole configuration and reports every problem
// found, not only the first.
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	var err error
	err = multierr.Append(err, validateMonitoringConfig(config.Monitoring))
	err = multierr.Append(err, validateNotificationsConfig(config.Notifications))
	err = multierr.Append(err, validateLoggingConfig(config.Logging))
	err = multierr.Append(err, validateControlConfig(config.Control))
	err = multierr.Append(err, validateServicesConfig(config.Services))
	if err != nil {
		return errors.NewValidationError("invalid configuration", err)
	}
	return nil
}

// Problems flattens a ValidateConfig error into individual messages.
func Problems(err error) []string {
	if err == nil {
		return nil
	}
	if domainErr, ok := err.(*errors.DomainError); ok && domainErr.Cause != nil {
		err = domainErr.Cause
	}
	var problems []string
	for _, e := range multierr.Errors(err) {
		problems = append(problems, e.Error())
	}
	return problems
}

func validateMonitoringConfig(config MonitoringConfig) error {
	var err error
	err = multierr.Append(err, watcher.ValidateInterval(config.IntervalSeconds))
	if config.QueryTimeout < 0 {
		err = multierr.Append(err, errors.NewValidationError("query timeout cannot be negative", nil))
	}
	if config.MaxConcurrentQueries < 0 {
		err = multierr.Append(err, errors.NewValidationError("max concurrent queries cannot be negative", nil))
	}
	return err
}

func validateNotificationsConfig(config NotificationsConfig) error {
	seconds := config.DisplaySeconds()
	if seconds < notification.MinDisplaySeconds || seconds > notification.MaxDisplaySeconds {
		return errors.NewOutOfRangeError(fmt.Sprintf("notification display time must be between %d and %d seconds",
			notification.MinDisplaySeconds, notification.MaxDisplaySeconds)).WithContext("display_time_seconds", seconds)
	}
	return nil
}

func validateLoggingConfig(config LoggingConfig) error {
	var err error
	if config.Level != "" {
		if _, levelErr := logging.ParseLevel(config.Level); levelErr != nil {
			err = multierr.Append(err, errors.NewValidationError("invalid log level: "+config.Level, levelErr))
		}
	}
	switch config.Format {
	case "", "console", "json":
	default:
		err = multierr.Append(err, errors.NewValidationError("log format must be console or json", nil).WithContext("format", config.Format))
	}
	return err
}

func validateControlConfig(config ControlConfig) error {
	if config.GRPCPort < 0 || config.GRPCPort > 65535 {
		return errors.NewValidationError("grpc port must be between 0 and 65535", nil).WithContext("grpc_port", config.GRPCPort)
	}
	return nil
}

func validateServicesConfig(services []ServiceConfig) error {
	var err error
	if len(services) > MaxServices {
		err = multierr.Append(err, errors.NewValidationError(fmt.Sprintf("cannot monitor more than %d services", MaxServices), nil))
	}

	seen := make(map[string]int, len(services))
	for i, svc := range services {
		if strings.TrimSpace(svc.Name) == "" {
			err = multierr.Append(err, errors.NewValidationError(fmt.Sprintf("service at index %d has no name", i), nil))
			continue
		}
		displayName := svc.DisplayName
		if displayName == "" {
			displayName = svc.Name
		}
		if identityErr := watcher.ValidateServiceIdentity(watcher.WatchedService{ID: svc.Name, DisplayName: displayName}); identityErr != nil {
			err = multierr.Append(err, identityErr)
			continue
		}

		key := strings.ToLower(strings.TrimSpace(svc.Name))
		if first, duplicate := seen[key]; duplicate {
			err = multierr.Append(err, errors.NewDuplicateServiceError(
				fmt.Sprintf("service %q at index %d duplicates index %d", svc.Name, i, first),
			))
			continue
		}
		seen[key] = i
	}
	return err
}
