package provisioning

import (
	"fmt"

	"github.com/imamik/hubspoke/internal/spoke"
)

// DeploymentError is returned by Create when the forward workflow stopped.
// Teardown outcomes are never reported through it; they land on the record.
type DeploymentError struct {
	SpokeID        int
	Step           spoke.StepName
	Err            error
	RollbackQueued bool
}

func (e *DeploymentError) Error() string {
	msg := fmt.Sprintf("deployment of spoke %d failed at %s: %v", e.SpokeID, e.Step, e.Err)
	if e.RollbackQueued {
		msg += " (rollback queued)"
	}
	return msg
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}
