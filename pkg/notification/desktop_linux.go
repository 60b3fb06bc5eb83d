//go:build linux

package notification

func desktopCommand(appName, title, body string, displaySeconds int) (string, []string) {
	return "notify-send", notifySendArgs(appName, title, body, displaySeconds)
}
