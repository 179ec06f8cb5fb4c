// Package tui renders a live Bubble Tea dashboard for one spoke.
package tui

import "github.com/imamik/hubspoke/internal/spoke"

// StatusMsg carries the latest stored record of the watched spoke.
type StatusMsg struct {
	Deployment *spoke.Deployment
	NotFound   bool
	FetchErr   string
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg carries an error.
type ErrMsg struct{ Err error }
