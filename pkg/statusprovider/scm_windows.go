//go:build windows

package statusprovider

import (
	"context"
	stderrors "errors"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

// SCMProvider queries the Windows service control manager. It opens the
// manager and the service with query rights only, so no elevation is needed.
type SCMProvider struct {
	logger logging.Logger
}

func NewSCMProvider(logger logging.Logger) *SCMProvider {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SCMProvider{logger: logger}
}

func (p *SCMProvider) Query(ctx context.Context, serviceID string) (watcher.Status, error) {
	if err := ctx.Err(); err != nil {
		return watcher.StatusUnknown, errors.NewCancelledError("status query cancelled", err)
	}

	handle, err := windows.OpenSCManager(nil, nil, windows.SC_MANAGER_CONNECT)
	if err != nil {
		return watcher.StatusUnknown, classifyWindowsError("connect to service control manager", serviceID, err)
	}
	m := &mgr.Mgr{Handle: handle}
	defer m.Disconnect()

	name, err := windows.UTF16PtrFromString(serviceID)
	if err != nil {
		return watcher.StatusUnknown, errors.NewInvalidServiceError("invalid service name", err).WithContext("service_id", serviceID)
	}
	serviceHandle, err := windows.OpenService(m.Handle, name, windows.SERVICE_QUERY_STATUS)
	if err != nil {
		return watcher.StatusUnknown, classifyWindowsError("open service", serviceID, err)
	}
	s := &mgr.Service{Name: serviceID, Handle: serviceHandle}
	defer s.Close()

	status, err := s.Query()
	if err != nil {
		return watcher.StatusUnknown, classifyWindowsError("query service", serviceID, err)
	}
	return mapWindowsState(status.State), nil
}

func mapWindowsState(state svc.State) watcher.Status {
	switch state {
	case svc.Stopped:
		return watcher.StatusStopped
	case svc.StartPending:
		return watcher.StatusStartPending
	case svc.StopPending:
		return watcher.StatusStopPending
	case svc.Running:
		return watcher.StatusRunning
	case svc.ContinuePending:
		return watcher.StatusContinuePending
	case svc.PausePending:
		return watcher.StatusPausePending
	case svc.Paused:
		return watcher.StatusPaused
	}
	return watcher.StatusUnknown
}

func classifyWindowsError(operation, serviceID string, err error) error {
	switch {
	case stderrors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST):
		return errors.NewNotFoundError("service does not exist", err).WithContext("service_id", serviceID)
	case stderrors.Is(err, windows.ERROR_ACCESS_DENIED):
		return errors.NewPermissionError("access denied: "+operation, err).WithContext("service_id", serviceID)
	}
	return errors.NewUnexpectedError(operation+" failed", err).WithContext("service_id", serviceID)
}
