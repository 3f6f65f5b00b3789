package scenario

import (
	"errors"
	"fmt"
)

// ErrSimulation matches every *SimError via errors.Is.
var ErrSimulation = errors.New("simulation error")

var ErrBadStep = errors.New("step size must be positive and finite")

// SimError is an invariant violation or an unusable config. Code is one of
// the protocol error codes.
type SimError struct {
	Code string
	Err  error
}

func (e *SimError) Error() string        { return fmt.Sprintf("simulation: %v", e.Err) }
func (e *SimError) Unwrap() error        { return e.Err }
func (e *SimError) Is(target error) bool { return target == ErrSimulation }
