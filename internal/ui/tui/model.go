package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/ui/benchmarks"
)

// Model is the Bubble Tea model for the spoke dashboard.
type Model struct {
	SpokeID int
	// WaitForRollback keeps the dashboard open on a failed record, which a
	// queued rollback will pick up next.
	WaitForRollback bool

	Deployment         *spoke.Deployment
	EstimatedRemaining time.Duration
	StartTime          time.Time

	// Animation
	SpinnerFrame int

	// UI state
	Width  int
	Height int
	Err    error
	Done   bool

	now func() time.Time
}

// NewModel creates a dashboard for spokeID.
func NewModel(spokeID int, waitForRollback bool) Model {
	return Model{
		SpokeID:         spokeID,
		WaitForRollback: waitForRollback,
		StartTime:       time.Now(),
		now:             time.Now,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case StatusMsg:
		if msg.NotFound {
			m.Err = fmt.Errorf("spoke %d not found", m.SpokeID)
			return m, tea.Quit
		}
		if msg.FetchErr != "" {
			m.Err = fmt.Errorf("failed to fetch spoke status: %s", msg.FetchErr)
			return m, tea.Quit
		}
		m.updateStatus(msg)
		if m.Done {
			return m, tea.Quit
		}

	case TickMsg:
		m.SpinnerFrame++
		m.updateETA()
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) updateStatus(msg StatusMsg) {
	m.Deployment = msg.Deployment
	m.updateETA()
	if m.Deployment != nil {
		m.Done = Settled(m.Deployment.Status, m.WaitForRollback)
	}
}

func (m *Model) updateETA() {
	d := m.Deployment
	if d == nil || (d.Status != spoke.StatusPending && d.Status != spoke.StatusInProgress) {
		m.EstimatedRemaining = 0
		return
	}
	m.EstimatedRemaining = benchmarks.EstimateRemaining(d.Steps, m.clock())
}

func (m Model) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

// Settled reports whether nothing will change status on its own any more.
// A failed record settles only when no rollback follows it.
func Settled(s spoke.Status, waitForRollback bool) bool {
	switch s {
	case spoke.StatusCompleted, spoke.StatusRolledBack, spoke.StatusRollbackFailed:
		return true
	case spoke.StatusFailed:
		return !waitForRollback
	default:
		return false
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
