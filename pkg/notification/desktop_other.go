//go:build !linux && !darwin && !windows

package notification

func desktopCommand(appName, title, body string, displaySeconds int) (string, []string) {
	return "", nil
}
