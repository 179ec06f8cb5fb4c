// Package benchmarks provides timing estimates for spoke workflow steps.
package benchmarks

import (
	"time"

	"github.com/imamik/hubspoke/internal/spoke"
)

// DefaultTimings are typical step durations against Azure (seconds).
var DefaultTimings = map[spoke.StepName]int{
	spoke.StepValidate:        1,
	spoke.StepCreateNetwork:   15,
	spoke.StepCreateSubnets:   20,
	spoke.StepCreateNIC:       10,
	spoke.StepCreateVM:        120,
	spoke.StepWaitVMReady:     60,
	spoke.StepReadVMPrivateIP: 2,
	spoke.StepCreatePeering:   30,
	spoke.StepVerifyPeering:   20,
	spoke.StepUpdateGateway:   240,
	spoke.StepPersist:         1,
}

func expected(step spoke.StepName) time.Duration {
	return time.Duration(DefaultTimings[step]) * time.Second
}

// EstimateRemaining returns the expected time left for the steps that have
// not completed yet, scaled by how the finished steps performed.
func EstimateRemaining(steps []spoke.Step, now time.Time) time.Duration {
	scale := PerformanceScale(steps, now)

	var remaining time.Duration
	for _, s := range steps {
		exp := time.Duration(float64(expected(s.Name)) * scale)
		switch s.Status {
		case spoke.StepStatusCompleted, spoke.StepStatusFailed:
			continue
		case spoke.StepStatusInProgress:
			if s.StartedAt != nil {
				if elapsed := now.Sub(*s.StartedAt); elapsed < exp {
					remaining += exp - elapsed
				}
				continue
			}
		}
		remaining += exp
	}
	return remaining
}

// PerformanceScale derives a speed multiplier from observed-vs-expected durations.
// Example: expected 3m, observed 4m30s => scale=1.5 (future ETAs are stretched by 50%).
func PerformanceScale(steps []spoke.Step, now time.Time) float64 {
	var expectedTotal, actualTotal time.Duration

	for _, s := range steps {
		if s.StartedAt == nil {
			continue
		}
		exp := expected(s.Name)
		switch {
		case s.Status == spoke.StepStatusCompleted && s.CompletedAt != nil:
			expectedTotal += exp
			actualTotal += s.CompletedAt.Sub(*s.StartedAt)
		case s.Status == spoke.StepStatusInProgress:
			// An overrunning step counts right away so the ETA adapts quickly.
			if elapsed := now.Sub(*s.StartedAt); elapsed > exp {
				expectedTotal += exp
				actualTotal += elapsed
			}
		}
	}

	if expectedTotal == 0 || actualTotal == 0 {
		return 1.0
	}

	scale := float64(actualTotal) / float64(expectedTotal)
	if scale < 0.6 {
		return 0.6
	}
	if scale > 3.0 {
		return 3.0
	}
	return scale
}

// TotalEstimate returns the expected duration of the whole workflow.
func TotalEstimate() time.Duration {
	var total time.Duration
	for _, step := range spoke.StepOrder {
		total += expected(step)
	}
	return total
}
