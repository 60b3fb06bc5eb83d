//go:build windows

package statusprovider

import (
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

func newPlatformProvider(logger logging.Logger) watcher.StatusProvider {
	return NewSCMProvider(logger)
}
