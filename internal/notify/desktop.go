package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier shows a native notification: osascript on macOS,
// notify-send elsewhere
type DesktopNotifier struct {
	sound  bool
	goos   string
	logger *slog.Logger

	lookPath func(file string) (string, error)
	run      func(ctx context.Context, name string, args ...string) error
}

// NewDesktopNotifier creates a notifier for the current platform
func NewDesktopNotifier(sound bool, logger *slog.Logger) *DesktopNotifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DesktopNotifier{
		sound:    sound,
		goos:     runtime.GOOS,
		logger:   logger,
		lookPath: exec.LookPath,
		run: func(ctx context.Context, name string, args ...string) error {
			out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
			}
			return nil
		},
	}
}

// appleScriptString quotes s as an AppleScript string literal
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func (d *DesktopNotifier) command(n Notification) (string, []string) {
	if d.goos == "darwin" {
		args := []string{"-e", fmt.Sprintf("display notification %s with title %s",
			appleScriptString(n.Message), appleScriptString(n.Title))}
		if d.sound {
			args = append(args, "-e", "beep")
		}
		return "osascript", args
	}
	return "notify-send", []string{"--app-name=casalert", n.Title, n.Message}
}

// Notify runs the platform notification command. A missing binary is an error.
func (d *DesktopNotifier) Notify(ctx context.Context, n Notification) error {
	name, args := d.command(n)
	if _, err := d.lookPath(name); err != nil {
		return fmt.Errorf("desktop notifications unavailable: %s not found: %w", name, err)
	}
	if err := d.run(ctx, name, args...); err != nil {
		return fmt.Errorf("failed to send desktop notification: %w", err)
	}
	d.logger.Info("sent desktop notification", "title", n.Title, "message", n.Message)
	return nil
}
