package statusprovider

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

var launchdPIDPattern = regexp.MustCompile(`"PID"\s*=\s*(\d+);`)

// LaunchdProvider reads job state with launchctl list <label>.
type LaunchdProvider struct {
	run        commandRunner
	pidRunning func(pid int) (bool, error)
	logger     logging.Logger
}

func NewLaunchdProvider(logger logging.Logger) *LaunchdProvider {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LaunchdProvider{run: runCommand, pidRunning: isProcessRunning, logger: logger}
}

func (p *LaunchdProvider) Query(ctx context.Context, serviceID string) (watcher.Status, error) {
	output, err := p.run(ctx, "launchctl", "list", serviceID)
	if err != nil {
		if ctx.Err() == nil && strings.Contains(string(output), "Could not find service") {
			return watcher.StatusUnknown, errors.NewNotFoundError("launchd job does not exist", err).WithContext("service_id", serviceID)
		}
		return watcher.StatusUnknown, commandError(ctx, "launchctl list", output, err).WithContext("service_id", serviceID)
	}

	pid, hasPID := launchdPID(string(output))
	if !hasPID {
		return watcher.StatusStopped, nil
	}

	// launchctl can report the PID of a job that is exiting.
	running, err := p.pidRunning(pid)
	if err != nil {
		p.logger.Debugf("Cannot verify launchd pid, label: %s, pid: %d, error: %v", serviceID, pid, err)
		return watcher.StatusRunning, nil
	}
	if !running {
		return watcher.StatusStopPending, nil
	}
	return watcher.StatusRunning, nil
}

func launchdPID(output string) (int, bool) {
	match := launchdPIDPattern.FindStringSubmatch(output)
	if match == nil {
		return 0, false
	}
	pid, err := strconv.Atoi(match[1])
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
