package statusprovider

import (
	"bufio"
	"context"
	"strings"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

// SystemdProvider reads unit state with systemctl show.
type SystemdProvider struct {
	run    commandRunner
	logger logging.Logger
}

func NewSystemdProvider(logger logging.Logger) *SystemdProvider {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SystemdProvider{run: runCommand, logger: logger}
}

func (p *SystemdProvider) Query(ctx context.Context, serviceID string) (watcher.Status, error) {
	output, err := p.run(ctx, "systemctl", "show", serviceID, "--property=LoadState,ActiveState,SubState")
	if err != nil {
		return watcher.StatusUnknown, commandError(ctx, "systemctl show", output, err).WithContext("service_id", serviceID)
	}

	properties := parseProperties(string(output))
	status, stateErr := systemdStatus(properties)
	if stateErr != nil {
		return watcher.StatusUnknown, stateErr.WithContext("service_id", serviceID)
	}
	p.logger.Debugf("systemd unit state, unit: %s, active: %s, sub: %s, status: %s",
		serviceID, properties["ActiveState"], properties["SubState"], status)
	return status, nil
}

// parseProperties reads systemctl show output: one Key=Value per line.
func parseProperties(output string) map[string]string {
	properties := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		key, value, found := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !found || key == "" {
			continue
		}
		properties[key] = value
	}
	return properties
}

func systemdStatus(properties map[string]string) (watcher.Status, *errors.DomainError) {
	switch properties["LoadState"] {
	case "not-found":
		return watcher.StatusUnknown, errors.NewNotFoundError("unit does not exist", nil)
	case "":
		return watcher.StatusUnknown, errors.NewUnexpectedError("systemctl returned no unit state", nil)
	}

	switch properties["ActiveState"] {
	case "active", "reloading", "refreshing":
		return watcher.StatusRunning, nil
	case "activating":
		return watcher.StatusStartPending, nil
	case "deactivating":
		return watcher.StatusStopPending, nil
	case "inactive", "failed", "maintenance":
		return watcher.StatusStopped, nil
	}
	return watcher.StatusUnknown, nil
}
