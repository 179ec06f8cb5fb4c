package rollback

import (
	"errors"
	"fmt"
)

// StepError is the failure of one teardown step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s rollback: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// RollbackError collects the step failures of one teardown.
type RollbackError struct {
	SpokeID int
	Errors  []error
}

func (e *RollbackError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("rollback of spoke %d: %v", e.SpokeID, e.Errors[0])
	}
	return fmt.Sprintf("rollback of spoke %d encountered %d errors: %v", e.SpokeID, len(e.Errors), e.Errors)
}

func (e *RollbackError) Unwrap() error {
	if len(e.Errors) == 1 {
		return e.Errors[0]
	}
	return errors.Join(e.Errors...)
}

func (e *RollbackError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *RollbackError) HasErrors() bool {
	return len(e.Errors) > 0
}
