package notification

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

func TestEscapeAppleScript(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: `plain`, want: `plain`},
		{input: `say "hi"`, want: `say \"hi\"`},
		{input: `back\slash`, want: `back\\slash`},
		{input: "line\nbreak\ttab", want: `line\nbreak\ttab`},
		{input: "bell\x07", want: "bell"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeAppleScript(tt.input))
	}
}

func TestXMLEscape(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt; &amp; &#34;c&#34;", xmlEscape(`a <b> & "c"`))
}

func TestCommandArguments(t *testing.T) {
	args := notifySendArgs("HSU Watcher", "Title", "Body", 5)
	assert.Equal(t, []string{"-u", "critical", "-a", "HSU Watcher", "-t", "5000", "Title", "Body"}, args)

	args = notifySendArgs("", "Title", "Body", 0)
	assert.Equal(t, []string{"-u", "critical", "Title", "Body"}, args)

	args = osascriptArgs("", `Stop "x"`, "Body")
	require.Len(t, args, 2)
	assert.Equal(t, `display notification "Body" with title "Stop \"x\""`, args[1])

	args = powershellToastArgs("", "<Title>", "Body & more")
	assert.Contains(t, args, "HSU Watcher")
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "&lt;Title&gt;")
	assert.Contains(t, joined, "Body &amp; more")
}

func TestNotificationText(t *testing.T) {
	transition := watcher.StatusTransition{
		ServiceID:      "wuauserv",
		DisplayName:    "Windows Update",
		PreviousStatus: watcher.StatusRunning,
		CurrentStatus:  watcher.StatusStopped,
		DetectedAt:     time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC),
	}

	assert.Equal(t, "Service stopped: Windows Update", Title(transition))
	body := Body(transition)
	assert.Contains(t, body, "'Windows Update' (wuauserv)")
	assert.Contains(t, body, "Previous status: running")
	assert.Contains(t, body, "Current status: stopped")
	assert.Contains(t, body, "2024-03-01 08:30:00")
}

func TestDesktopPresenter_RunsPlatformCommand(t *testing.T) {
	presenter := NewDesktopPresenter("HSU Watcher", nil)

	var gotName string
	presenter.run = func(ctx context.Context, name string, args ...string) error {
		gotName = name
		return nil
	}

	err := presenter.Present(ActiveNotification{ServiceID: "svc"}, *stopTransition("svc"))
	expected, _ := desktopCommand("HSU Watcher", "t", "b", 0)
	if expected == "" {
		assert.Error(t, err)
		return
	}
	require.NoError(t, err)
	assert.Equal(t, expected, gotName)
	assert.NoError(t, presenter.Dismiss(ActiveNotification{ServiceID: "svc"}))

	presenter.run = func(ctx context.Context, name string, args ...string) error {
		return fmt.Errorf("not installed")
	}
	assert.Error(t, presenter.Present(ActiveNotification{ServiceID: "svc"}, *stopTransition("svc")))
}

func TestMultiPresenter(t *testing.T) {
	failing := &MockPresenter{}
	failing.On("Present", mock.Anything, mock.Anything).Return(fmt.Errorf("broken"))
	failing.On("Dismiss", mock.Anything).Return(nil)
	ok := newMockPresenter()

	multi := MultiPresenter{failing, ok}
	err := multi.Present(ActiveNotification{}, watcher.StatusTransition{})
	assert.EqualError(t, err, "broken")
	ok.AssertNumberOfCalls(t, "Present", 1)

	assert.NoError(t, multi.Dismiss(ActiveNotification{}))
}
