package notification

import (
	"context"
	"encoding/xml"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-watcher/pkg/errors"
	"github.com/core-tools/hsu-watcher/pkg/logging"
	"github.com/core-tools/hsu-watcher/pkg/watcher"
)

const desktopCommandTimeout = 10 * time.Second

// commandRunner runs an external program; replaced in tests.
type commandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return errors.NewIOError(name+" failed: "+strings.TrimSpace(string(output)), err)
	}
	return nil
}

// DesktopPresenter raises a native desktop notification through the
// platform's command line tooling. Dismissal is left to the desktop.
type DesktopPresenter struct {
	appName string
	run     commandRunner
	logger  logging.Logger
}

func NewDesktopPresenter(appName string, logger logging.Logger) *DesktopPresenter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DesktopPresenter{
		appName: appName,
		run:     runCommand,
		logger:  logger,
	}
}

func (p *DesktopPresenter) Present(notification ActiveNotification, transition watcher.StatusTransition) error {
	ctx, cancel := context.WithTimeout(context.Background(), desktopCommandTimeout)
	defer cancel()

	name, args := desktopCommand(p.appName, Title(transition), Body(transition), notification.DisplayDurationSeconds)
	if name == "" {
		return errors.NewInternalError("desktop notifications are not supported on this platform", nil)
	}
	if err := p.run(ctx, name, args...); err != nil {
		return err
	}
	p.logger.Debugf("Desktop notification raised, service: %s, command: %s", transition.ServiceID, name)
	return nil
}

func (p *DesktopPresenter) Dismiss(notification ActiveNotification) error {
	return nil
}

// escapeAppleScript makes s safe inside an AppleScript double-quoted string.
func escapeAppleScript(s string) string {
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"':
			result = append(result, '\\', '"')
		case ch == '\\':
			result = append(result, '\\', '\\')
		case ch == '\n':
			result = append(result, '\\', 'n')
		case ch == '\r':
			result = append(result, '\\', 'r')
		case ch == '\t':
			result = append(result, '\\', 't')
		case ch < 0x20 || ch == 0x7f:
			continue
		default:
			result = append(result, ch)
		}
	}
	return string(result)
}

func xmlEscape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return ""
	}
	return b.String()
}

func notifySendArgs(appName, title, body string, displaySeconds int) []string {
	args := []string{"-u", "critical"}
	if appName != "" {
		args = append(args, "-a", appName)
	}
	if displaySeconds > 0 {
		args = append(args, "-t", strconv.Itoa(displaySeconds*1000))
	}
	return append(args, title, body)
}

func osascriptArgs(appName, title, body string) []string {
	script := `display notification "` + escapeAppleScript(body) + `" with title "` + escapeAppleScript(title) + `"`
	if appName != "" {
		script += ` subtitle "` + escapeAppleScript(appName) + `"`
	}
	return []string{"-e", script}
}

// The toast XML is handed to PowerShell as a parameter so that nothing in
// the notification text is ever interpreted as script.
const toastScript = `param([string]$xml, [string]$app)
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
$doc.LoadXml($xml)
$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier($app).Show($toast)`

func powershellToastArgs(appName, title, body string) []string {
	toastXML := `<toast scenario="reminder"><visual><binding template="ToastText02">` +
		`<text id="1">` + xmlEscape(title) + `</text>` +
		`<text id="2">` + xmlEscape(body) + `</text>` +
		`</binding></visual></toast>`
	if appName == "" {
		appName = "HSU Watcher"
	}
	return []string{"-NoProfile", "-NonInteractive", "-Command", toastScript, "-xml", toastXML, "-app", appName}
}
