// Package statusprovider asks the operating system for the run state of a
// named service. Each platform has its own backend: the service control
// manager on Windows, systemd on Linux and launchd on macOS.
package statusprovider

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

// New returns the provider for the current platform.
func New(logger logging.Logger) watcher.StatusProvider {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return newPlatformProvider(logger)
}

// commandRunner executes a program and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// commandError turns a failed command into a domain error, preferring the
// context error when the command was cut short.
func commandError(ctx context.Context, command string, output []byte, err error) *errors.DomainError {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if ctxErr == context.DeadlineExceeded {
			return errors.NewTimeoutError(command+" timed out", ctxErr)
		}
		return errors.NewCancelledError(command+" cancelled", ctxErr)
	}
	message := strings.TrimSpace(string(output))
	if message == "" {
		message = command + " failed"
	}
	if strings.Contains(strings.ToLower(message), "access denied") ||
		strings.Contains(strings.ToLower(message), "permission denied") {
		return errors.NewPermissionError(message, err)
	}
	return errors.NewUnexpectedError(message, err)
}

// Static answers from a fixed table. Unknown services are reported as not
// found. Safe for concurrent use.
type Static struct {
	mutex    sync.RWMutex
	statuses map[string]watcher.Status
	failures map[string]error
}

func NewStatic(statuses map[string]watcher.Status) *Static {
	s := &Static{
		statuses: make(map[string]watcher.Status),
		failures: make(map[string]error),
	}
	for id, status := range statuses {
		s.statuses[strings.ToLower(id)] = status
	}
	return s
}

// Set records the status returned for id and clears any failure.
func (s *Static) Set(id string, status watcher.Status) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	key := strings.ToLower(id)
	s.statuses[key] = status
	delete(s.failures, key)
}

// Fail makes every query for id return err.
func (s *Static) Fail(id string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failures[strings.ToLower(id)] = err
}

func (s *Static) Query(ctx context.Context, serviceID string) (watcher.Status, error) {
	if err := ctx.Err(); err != nil {
		return watcher.StatusUnknown, errors.NewCancelledError("status query cancelled", err)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	key := strings.ToLower(serviceID)
	if err, failed := s.failures[key]; failed {
		return watcher.StatusUnknown, err
	}
	status, exists := s.statuses[key]
	if !exists {
		return watcher.StatusUnknown, errors.NewNotFoundError("service does not exist", nil).WithContext("service_id", serviceID)
	}
	return status, nil
}
