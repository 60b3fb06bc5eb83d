//go:build darwin

package notification

func desktopCommand(appName, title, body string, displaySeconds int) (string, []string) {
	return "osascript", osascriptArgs(appName, title, body)
}
