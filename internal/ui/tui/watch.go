package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/hubspoke/internal/spoke"
)

// Fetcher returns the stored record of a spoke.
type Fetcher func(ctx context.Context, spokeID int) (*spoke.Deployment, error)

// RunWatch shows the dashboard for spokeID, polling fetch every interval,
// until the record settles or the user quits.
func RunWatch(ctx context.Context, fetch Fetcher, spokeID int, interval time.Duration, waitForRollback bool) error {
	m := NewModel(spokeID, waitForRollback)

	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		p.Send(FetchStatus(ctx, fetch, spokeID))
		for {
			select {
			case <-ctx.Done():
				p.Send(ErrMsg{Err: ctx.Err()})
				return
			case <-ticker.C:
				p.Send(FetchStatus(ctx, fetch, spokeID))
			}
		}
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	fm := finalModel.(Model)
	if fm.Err != nil {
		return fm.Err
	}
	if fm.Deployment != nil && fm.Deployment.Status == spoke.StatusRollbackFailed {
		return fmt.Errorf("spoke %d rollback failed", spokeID)
	}
	return nil
}

// FetchStatus reads the record once and wraps the outcome in a StatusMsg.
func FetchStatus(ctx context.Context, fetch Fetcher, spokeID int) StatusMsg {
	d, err := fetch(ctx, spokeID)
	switch {
	case errors.Is(err, spoke.ErrNotFound):
		return StatusMsg{NotFound: true}
	case err != nil:
		return StatusMsg{FetchErr: err.Error()}
	}
	return StatusMsg{Deployment: d}
}

// RenderOnce renders the dashboard for d once, without a terminal program.
func RenderOnce(d *spoke.Deployment) string {
	m := NewModel(d.SpokeID, false)
	m.updateStatus(StatusMsg{Deployment: d})
	return renderView(m)
}
