package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
)

// Sender delivers a desktop notification
type Sender func(title, message string) error

// desktopSender returns the platform's notification command, or nil when
// the platform has none we know how to drive.
func desktopSender(goos string) Sender {
	switch goos {
	case "linux":
		return func(title, message string) error {
			return exec.Command("notify-send", "--app-name=heliodata", title, message).Run()
		}
	case "darwin":
		return func(title, message string) error {
			script := fmt.Sprintf(`display notification %q with title %q`, message, title)
			return exec.Command("osascript", "-e", script).Run()
		}
	case "windows":
		return func(title, message string) error {
			script := fmt.Sprintf(`New-BurntToastNotification -Text %q, %q`, title, message)
			return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
		}
	}
	return nil
}

// Notifier reports how a download run ended, on the console and
// optionally as a desktop notification
type Notifier struct {
	out  io.Writer
	send Sender
}

// NewNotifier creates a Notifier writing to stdout. Desktop notifications
// are sent only when desktop is true.
func NewNotifier(desktop bool) *Notifier {
	n := &Notifier{out: os.Stdout}
	if desktop {
		n.send = desktopSender(runtime.GOOS)
	}
	return n
}

// NewNotifierTo creates a Notifier with an explicit output and sender
func NewNotifierTo(out io.Writer, send Sender) *Notifier {
	return &Notifier{out: out, send: send}
}

// RunFinished reports the outcome of a mission download. A non-nil err
// means the run stopped early.
func (n *Notifier) RunFinished(mission string, done, failed int, err error) {
	title := "heliodata: " + mission
	var message string
	var color func(string) string

	switch {
	case err != nil:
		message = fmt.Sprintf("download stopped: %v", err)
		color = Red
	case failed > 0:
		message = fmt.Sprintf("%d samples stored, %d failed", done, failed)
		color = Yellow
	default:
		message = fmt.Sprintf("%d samples stored", done)
		color = Green
	}

	fmt.Fprintf(n.out, "\n%s: %s\n", Cyan(title), color(message))
	if n.send != nil {
		// Notification failures never affect the run
		_ = n.send(title, message)
	}
}
