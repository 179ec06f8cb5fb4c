package addressing

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange means a spoke id lies outside [MinSpokeID, MaxSpokeID].
	ErrOutOfRange = errors.New("spoke id out of range")

	// ErrInvalidPrefix means an input is not the IPv4 prefix the caller asked for.
	ErrInvalidPrefix = errors.New("invalid address prefix")
)

// RangeError reports the offending spoke id.
type RangeError struct {
	SpokeID int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("spoke id %d out of range [%d, %d]", e.SpokeID, MinSpokeID, MaxSpokeID)
}

func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}
