package watcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/core-tools/hsu-watcher/pkg/errors"
)

const (
	DefaultIntervalSeconds = 5
	MinIntervalSeconds     = 1
	MaxIntervalSeconds     = 3600

	MaxServiceNameLength = 256
)

// ValidateInterval checks the polling interval bounds.
func ValidateInterval(seconds int) error {
	if seconds < MinIntervalSeconds || seconds > MaxIntervalSeconds {
		return errors.NewOutOfRangeError(
			fmt.Sprintf("monitoring interval must be between %d and %d seconds", MinIntervalSeconds, MaxIntervalSeconds),
		).WithContext("interval_seconds", seconds)
	}
	return nil
}

// ValidateWatchedService checks the identity fields and the runtime invariants.
func ValidateWatchedService(svc WatchedService) error {
	if err := ValidateServiceIdentity(svc); err != nil {
		return err
	}
	if svc.LastCheckedAt.After(time.Now()) {
		return errors.NewInvalidServiceError("last check time cannot be in the future", nil).WithContext("service_id", svc.ID)
	}
	if !svc.IsAvailable && strings.TrimSpace(svc.ErrorMessage) == "" {
		return errors.NewInvalidServiceError("unavailable service must carry an error message", nil).WithContext("service_id", svc.ID)
	}
	if svc.LastKnownStatus != "" && !svc.LastKnownStatus.IsValid() {
		return errors.NewInvalidServiceError("unknown status: "+string(svc.LastKnownStatus), nil).WithContext("service_id", svc.ID)
	}
	return nil
}

// ValidateServiceIdentity checks only the fields a caller supplies when adding
// a service; runtime fields are owned by the engine.
func ValidateServiceIdentity(svc WatchedService) error {
	if strings.TrimSpace(svc.ID) == "" {
		return errors.NewInvalidServiceError("service id cannot be empty", nil)
	}
	if len(svc.ID) > MaxServiceNameLength {
		return errors.NewInvalidServiceError(
			fmt.Sprintf("service id cannot exceed %d characters", MaxServiceNameLength), nil,
		).WithContext("service_id", svc.ID)
	}
	if strings.TrimSpace(svc.DisplayName) == "" {
		return errors.NewInvalidServiceError("display name cannot be empty", nil).WithContext("service_id", svc.ID)
	}
	if len(svc.DisplayName) > MaxServiceNameLength {
		return errors.NewInvalidServiceError(
			fmt.Sprintf("display name cannot exceed %d characters", MaxServiceNameLength), nil,
		).WithContext("service_id", svc.ID)
	}
	return nil
}

// serviceKey is the case-insensitive identity of a service id.
func serviceKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
