package tui

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/hubspoke/internal/spoke"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDeployment(status spoke.Status, completed int) *spoke.Deployment {
	d := spoke.NewDeployment(spoke.Configuration{SpokeID: 4, ClientName: "acme", AddressPrefix: "10.11.4.0/24"}, "op-1", t0)
	d.Status = status
	for i := 0; i < completed; i++ {
		start, end := t0, t0.Add(time.Second)
		d.Steps[i].Status = spoke.StepStatusCompleted
		d.Steps[i].StartedAt = &start
		d.Steps[i].CompletedAt = &end
	}
	return d
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{3600 * time.Second, "1h0m"},
		{3661 * time.Second, "1h1m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d), tt.d.String())
	}
}

func TestSettled(t *testing.T) {
	tests := []struct {
		status spoke.Status
		wait   bool
		want   bool
	}{
		{spoke.StatusPending, true, false},
		{spoke.StatusInProgress, false, false},
		{spoke.StatusCompleted, true, true},
		{spoke.StatusFailed, true, false},
		{spoke.StatusFailed, false, true},
		{spoke.StatusRollingBack, false, false},
		{spoke.StatusRolledBack, true, true},
		{spoke.StatusRollbackFailed, true, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/wait=%v", tt.status, tt.wait), func(t *testing.T) {
			assert.Equal(t, tt.want, Settled(tt.status, tt.wait))
		})
	}
}

func TestModel_QuitsWhenSettled(t *testing.T) {
	m := NewModel(4, true)

	next, cmd := m.Update(StatusMsg{Deployment: testDeployment(spoke.StatusInProgress, 3)})
	m = next.(Model)
	assert.False(t, m.Done)
	assert.Nil(t, cmd)
	assert.Positive(t, m.EstimatedRemaining)

	next, cmd = m.Update(StatusMsg{Deployment: testDeployment(spoke.StatusFailed, 4)})
	m = next.(Model)
	assert.False(t, m.Done, "a failed spoke is still waiting for its rollback")
	assert.Nil(t, cmd)
	assert.Zero(t, m.EstimatedRemaining)

	next, cmd = m.Update(StatusMsg{Deployment: testDeployment(spoke.StatusRolledBack, 4)})
	m = next.(Model)
	assert.True(t, m.Done)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_FetchProblems(t *testing.T) {
	m := NewModel(9, false)
	next, cmd := m.Update(StatusMsg{NotFound: true})
	assert.EqualError(t, next.(Model).Err, "spoke 9 not found")
	require.NotNil(t, cmd)

	next, _ = m.Update(StatusMsg{FetchErr: "disk full"})
	assert.EqualError(t, next.(Model).Err, "failed to fetch spoke status: disk full")

	next, _ = m.Update(ErrMsg{Err: context.Canceled})
	assert.ErrorIs(t, next.(Model).Err, context.Canceled)
}

func TestModel_Tick(t *testing.T) {
	m := NewModel(1, false)
	next, cmd := m.Update(TickMsg{})
	assert.Equal(t, 1, next.(Model).SpinnerFrame)
	assert.NotNil(t, cmd)
}

func TestFetchStatus(t *testing.T) {
	d := testDeployment(spoke.StatusCompleted, 11)
	tests := []struct {
		name  string
		fetch Fetcher
		want  StatusMsg
	}{
		{
			name:  "found",
			fetch: func(context.Context, int) (*spoke.Deployment, error) { return d, nil },
			want:  StatusMsg{Deployment: d},
		},
		{
			name: "not found",
			fetch: func(_ context.Context, id int) (*spoke.Deployment, error) {
				return nil, fmt.Errorf("deployment for spoke %d: %w", id, spoke.ErrNotFound)
			},
			want: StatusMsg{NotFound: true},
		},
		{
			name:  "error",
			fetch: func(context.Context, int) (*spoke.Deployment, error) { return nil, errors.New("timeout") },
			want:  StatusMsg{FetchErr: "timeout"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FetchStatus(context.Background(), tt.fetch, 4))
		})
	}
}

func TestRenderOnce(t *testing.T) {
	d := testDeployment(spoke.StatusRollbackFailed, 5)
	d.Steps[5].Status = spoke.StepStatusFailed
	d.Steps[5].ErrorMessage = "vm did not reach running"
	d.FailedStep = spoke.StepWaitVMReady
	d.VNetName = "spoke-vnet-4"
	d.RollbackErrors = []string{"nic rollback: reserved"}
	d.RollbackAttempts = 2

	out := RenderOnce(d)
	for _, want := range []string{
		"hubspoke: spoke 4 (acme)",
		"rollback_failed",
		"create-network",
		"vm did not reach running",
		"spoke-vnet-4",
		"10.11.4.0/24",
		"nic rollback: reserved",
		"rollback attempts: 2",
		"failed at: wait-vm-ready",
		"45%",
	} {
		assert.Contains(t, out, want)
	}
}
