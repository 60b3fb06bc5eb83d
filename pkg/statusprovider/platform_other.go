//go:build !windows && !linux && !darwin

package statusprovider

import (
	"context"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

func newPlatformProvider(logger logging.Logger) watcher.StatusProvider {
	return watcher.StatusProviderFunc(func(ctx context.Context, serviceID string) (watcher.Status, error) {
		return watcher.StatusUnknown, errors.NewInternalError("service status is not supported on this platform", nil)
	})
}
