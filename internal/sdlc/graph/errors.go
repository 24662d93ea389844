package graph

import (
	"errors"
	"fmt"
)

// ErrStepCeiling matches runs stopped by the step ceiling.
var ErrStepCeiling = errors.New("step ceiling reached")

// StepCeilingError reports a run that executed MaxSteps nodes without
// reaching a terminal.
type StepCeilingError struct {
	MaxSteps int
}

func (e *StepCeilingError) Error() string {
	return fmt.Sprintf("%s after %d steps", ErrStepCeiling, e.MaxSteps)
}

func (e *StepCeilingError) Unwrap() error {
	return ErrStepCeiling
}
