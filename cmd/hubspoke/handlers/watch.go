package handlers

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/ui/tui"
)

// Factory function variables for watch - can be replaced in tests.
var (
	runWatchTUI = tui.RunWatch

	isTerminal = func() bool {
		return isatty.IsTerminal(os.Stdout.Fd())
	}
)

// Watch follows a spoke until its record settles. On a terminal it shows the
// dashboard; otherwise it prints one line per status change.
func Watch(ctx context.Context, opts Options, spokeID int, interval time.Duration) error {
	return withApp(ctx, opts, func(app *App) error {
		if interval <= 0 {
			interval = 2 * time.Second
		}
		wait := app.Config.Deployment.EnableRollback
		if isTerminal() {
			return runWatchTUI(ctx, app.Orchestrator.Get, spokeID, interval, wait)
		}
		return pollStatus(ctx, app.Orchestrator.Get, spokeID, interval, wait)
	})
}

func pollStatus(ctx context.Context, fetch tui.Fetcher, spokeID int, interval time.Duration, wait bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last string
	for {
		d, err := fetch(ctx, spokeID)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("spoke %d: %s %.0f%%", spokeID, d.Status, d.Progress())
		if d.FailedStep != "" {
			line += fmt.Sprintf(" (failed at %s)", d.FailedStep)
		}
		if line != last {
			fmt.Fprintln(stdout, line)
			last = line
		}
		if tui.Settled(d.Status, wait) {
			if d.Status == spoke.StatusRollbackFailed {
				return fmt.Errorf("spoke %d rollback failed", spokeID)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
