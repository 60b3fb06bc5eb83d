//go:build windows

package notification

func desktopCommand(appName, title, body string, displaySeconds int) (string, []string) {
	return "powershell", powershellToastArgs(appName, title, body)
}
