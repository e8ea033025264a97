package coach

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput marks a frame rejected because an angle is outside [0, 360).
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownExercise is returned for exercise types missing from the registry.
	ErrUnknownExercise = errors.New("unknown exercise")
)

// InputError names the offending angle of a rejected frame.
type InputError struct {
	Angle string
	Value float64
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: angle %q = %v, want [0, 360)", e.Angle, e.Value)
}

// Is lets errors.Is(err, ErrInvalidInput) match.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func inDomain(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v < 360
}
