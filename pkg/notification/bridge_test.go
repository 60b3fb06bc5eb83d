package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

func TestBridge_IgnoresNonStopTransitions(t *testing.T) {
	presenter := newMockPresenter()
	dispatcher, _ := newTestDispatcher(t, presenter)
	bridge := NewBridge(dispatcher, 30, nil)

	bridge.OnStatusChanged(watcher.StatusTransition{
		ServiceID: "svc", DisplayName: "Svc", NotificationEnabled: true,
		PreviousStatus: watcher.StatusStopped, CurrentStatus: watcher.StatusRunning,
	})
	bridge.OnStatusChanged(watcher.StatusTransition{
		ServiceID: "svc", DisplayName: "Svc", NotificationEnabled: false,
		PreviousStatus: watcher.StatusRunning, CurrentStatus: watcher.StatusStopped,
	})
	bridge.OnMonitoringError(watcher.MonitoringError{ServiceID: "svc", Message: "Access denied: nope"})

	assert.Equal(t, 0, dispatcher.ActiveCount())
	presenter.AssertNotCalled(t, "Present", mock.Anything, mock.Anything)
}

func TestBridge_ShowsStopTransition(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, newMockPresenter())
	bridge := NewBridge(dispatcher, 30, nil)

	bridge.OnStatusChanged(*stopTransition("svc"))

	active := dispatcher.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, 30, active[0].DisplayDurationSeconds)
}

func TestBridge_SetDisplaySeconds(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, newMockPresenter())
	bridge := NewBridge(dispatcher, 30, nil)

	bridge.SetDisplaySeconds(0)
	bridge.OnStatusChanged(*stopTransition("svc"))

	active := dispatcher.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, 0, active[0].DisplayDurationSeconds)
	assert.False(t, active[0].AutoCloseEligible)
}

// flippingProvider reports the same status for every service; the test
// flips it between polls.
type flippingProvider struct {
	mutex  sync.Mutex
	status watcher.Status
}

func (p *flippingProvider) set(status watcher.Status) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.status = status
}

func (p *flippingProvider) Query(ctx context.Context, serviceID string) (watcher.Status, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.status, nil
}

func TestWindowsUpdateStopScenario(t *testing.T) {
	provider := &flippingProvider{status: watcher.StatusRunning}
	engine, err := watcher.NewEngine(provider, watcher.EngineOptions{IntervalSeconds: 1})
	require.NoError(t, err)
	defer engine.Close()

	presenter := newMockPresenter()
	dispatcher, acks := newTestDispatcher(t, presenter)
	engine.Subscribe(NewBridge(dispatcher, 0, nil))

	var mutex sync.Mutex
	var transitions []watcher.StatusTransition
	engine.Subscribe(watcher.SubscriberFuncs{StatusChanged: func(tr watcher.StatusTransition) {
		mutex.Lock()
		defer mutex.Unlock()
		transitions = append(transitions, tr)
	}})

	require.NoError(t, engine.AddService(watcher.NewWatchedService("wuauserv", "Windows Update", true)))
	require.NoError(t, engine.Start(context.Background()))

	svc, err := engine.Service("wuauserv")
	require.NoError(t, err)
	assert.Equal(t, watcher.StatusRunning, svc.LastKnownStatus)
	assert.Equal(t, 0, dispatcher.ActiveCount(), "baseline poll raises nothing")

	provider.set(watcher.StatusStopped)

	require.Eventually(t, func() bool { return dispatcher.ActiveCount() == 1 }, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, engine.Stop())

	mutex.Lock()
	require.Len(t, transitions, 1)
	assert.Equal(t, watcher.StatusRunning, transitions[0].PreviousStatus)
	assert.Equal(t, watcher.StatusStopped, transitions[0].CurrentStatus)
	assert.True(t, transitions[0].IsStopEvent())
	mutex.Unlock()

	presenter.AssertNumberOfCalls(t, "Present", 1)

	assert.True(t, dispatcher.Acknowledge("wuauserv", false))
	assert.Equal(t, 0, dispatcher.ActiveCount())

	require.Eventually(t, func() bool { return len(acks.Acks()) == 1 }, time.Second, 5*time.Millisecond)
	ack := acks.Acks()[0]
	assert.Equal(t, "wuauserv", ack.ServiceID)
	assert.False(t, ack.WasAutoClosed)
}
