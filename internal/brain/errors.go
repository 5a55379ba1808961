package brain

import (
	"errors"
	"fmt"
)

var ErrNoParticipants = errors.New("no participants configured")

// SelectionError means a role resolved to a name with no participant behind
// it. It is a configuration error and is never retried.
type SelectionError struct {
	Participant ParticipantName
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("no participant named %q is configured", e.Participant)
}

// InvocationError wraps a participant failure. The run that hit it is aborted.
type InvocationError struct {
	Participant ParticipantName
	Turn        int
	Err         error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("participant %s failed on turn %d: %v", e.Participant, e.Turn, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
