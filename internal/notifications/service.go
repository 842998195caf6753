package notifications

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

const appName = "vframe"

// Service is the notification surface used by the app layer.
type Service interface {
	NotifyRenderCompleted(ctx context.Context, output string) error
	NotifyQueueCompleted(ctx context.Context, completed, failed int, duration time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
}

// Options selects the notifier.
type Options struct {
	Enabled bool
	Sound   bool
	// GOOS overrides runtime.GOOS; used by tests.
	GOOS string
}

// Runner executes a notifier command.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// NewService returns a desktop notifier, or a no-op when notifications are
// disabled or the platform has no supported notifier.
func NewService(opts Options, logger *zap.Logger) Service {
	return newService(opts, execRunner, logger)
}

func newService(opts Options, run Runner, logger *zap.Logger) Service {
	if !opts.Enabled {
		return noopService{}
	}
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos != "linux" && goos != "darwin" {
		return noopService{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &desktopService{goos: goos, sound: opts.Sound, run: run, logger: logger}
}

type payload struct {
	title   string
	message string
	urgent  bool
}

type desktopService struct {
	goos   string
	sound  bool
	run    Runner
	logger *zap.Logger
}

func (d *desktopService) NotifyRenderCompleted(ctx context.Context, output string) error {
	return d.send(ctx, payload{
		title:   appName + " - Render Complete",
		message: fmt.Sprintf("Saved %s", strings.TrimSpace(output)),
	})
}

func (d *desktopService) NotifyQueueCompleted(ctx context.Context, completed, failed int, duration time.Duration) error {
	msg := fmt.Sprintf("%d completed, %d failed", completed, failed)
	if duration > 0 {
		msg += fmt.Sprintf(" in %s", duration.Round(time.Second))
	}
	return d.send(ctx, payload{
		title:   appName + " - Queue Finished",
		message: msg,
		urgent:  failed > 0,
	})
}

func (d *desktopService) NotifyError(ctx context.Context, err error, context string) error {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if context = strings.TrimSpace(context); context != "" {
		msg = context + ": " + msg
	}
	return d.send(ctx, payload{title: appName + " - Error", message: msg, urgent: true})
}

func (d *desktopService) send(ctx context.Context, p payload) error {
	name, args := d.command(p)
	if err := d.run(ctx, name, args...); err != nil {
		d.logger.Debug("notification failed", zap.String("title", p.title), zap.Error(err))
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

func (d *desktopService) command(p payload) (string, []string) {
	if d.goos == "darwin" {
		script := fmt.Sprintf("display notification %s with title %s", appleQuote(p.message), appleQuote(p.title))
		if d.sound {
			script += ` sound name "Glass"`
		}
		return "osascript", []string{"-e", script}
	}

	args := []string{"--app-name=" + appName}
	if p.urgent {
		args = append(args, "--urgency=critical")
	}
	if d.sound {
		args = append(args, "--hint=string:sound-name:complete")
	}
	return "notify-send", append(args, p.title, p.message)
}

func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

type noopService struct{}

func (noopService) NotifyRenderCompleted(context.Context, string) error { return nil }
func (noopService) NotifyQueueCompleted(context.Context, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
