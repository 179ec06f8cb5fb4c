package benchmarks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/imamik/hubspoke/internal/spoke"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pendingSteps() []spoke.Step {
	steps := make([]spoke.Step, len(spoke.StepOrder))
	for i, name := range spoke.StepOrder {
		steps[i] = spoke.Step{Name: name, Status: spoke.StepStatusPending}
	}
	return steps
}

// complete marks steps[0..n) completed, each taking took.
func complete(steps []spoke.Step, n int, took func(spoke.StepName) time.Duration) {
	start := now.Add(-time.Hour)
	for i := 0; i < n; i++ {
		s, e := start, start.Add(took(steps[i].Name))
		steps[i].Status = spoke.StepStatusCompleted
		steps[i].StartedAt = &s
		steps[i].CompletedAt = &e
		start = e
	}
}

func TestTotalEstimate(t *testing.T) {
	assert.Equal(t, 519*time.Second, TotalEstimate())
}

func TestEstimateRemaining_NoProgress(t *testing.T) {
	assert.Equal(t, TotalEstimate(), EstimateRemaining(pendingSteps(), now))
}

func TestEstimateRemaining_CurrentStep(t *testing.T) {
	steps := pendingSteps()
	complete(steps, 4, expected)
	started := now.Add(-30 * time.Second)
	steps[4].Status = spoke.StepStatusInProgress
	steps[4].StartedAt = &started

	// create-vm has 90s left; wait-vm-ready onwards is 60+2+30+20+240+1.
	assert.Equal(t, (90+353)*time.Second, EstimateRemaining(steps, now))
}

func TestEstimateRemaining_SlowHistoryScalesUp(t *testing.T) {
	steps := pendingSteps()
	complete(steps, 4, func(name spoke.StepName) time.Duration { return 2 * expected(name) })

	assert.InDelta(t, 2.0, PerformanceScale(steps, now), 0.0001)
	remaining := 0
	for _, name := range spoke.StepOrder[4:] {
		remaining += DefaultTimings[name]
	}
	assert.Equal(t, time.Duration(2*remaining)*time.Second, EstimateRemaining(steps, now))
}

func TestPerformanceScale_Clamped(t *testing.T) {
	fast := pendingSteps()
	complete(fast, 5, func(spoke.StepName) time.Duration { return time.Millisecond })
	assert.Equal(t, 0.6, PerformanceScale(fast, now))

	slow := pendingSteps()
	complete(slow, 5, func(name spoke.StepName) time.Duration { return 10 * expected(name) })
	assert.Equal(t, 3.0, PerformanceScale(slow, now))
}

func TestPerformanceScale_OverrunningStep(t *testing.T) {
	steps := pendingSteps()
	started := now.Add(-240 * time.Second)
	steps[4].Status = spoke.StepStatusInProgress
	steps[4].StartedAt = &started

	assert.InDelta(t, 2.0, PerformanceScale(steps, now), 0.0001)
}

func TestEstimateRemaining_FinishedWorkflow(t *testing.T) {
	steps := pendingSteps()
	complete(steps, len(steps), expected)
	assert.Zero(t, EstimateRemaining(steps, now))
}
