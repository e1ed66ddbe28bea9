package registry

import (
	"errors"
	"fmt"
)

// ErrInvalidState is matched (via errors.Is) by every error caused by calling a registry operation
// that its current scan state does not permit.
var ErrInvalidState = errors.New("invalid registry state")

// StateError describes an out-of-sequence call.
type StateError struct {
	Op    string // Operation that was rejected.
	State State  // State the registry was in.
}

func (e *StateError) Error() string {
	return fmt.Sprintf("registry: cannot %s while %s", e.Op, e.State)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}
