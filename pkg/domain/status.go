package domain

import "fmt"

type Status string

const (
	// This tuple is waiting to be scheduled.
	Waiting Status = "waiting"

	// This tuple is being executed.
	Doing Status = "doing"

	// This tuple has been done, successfully.
	Done Status = "done"

	// This tuple stopped with error.
	Failed Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// Done and Failed are terminal. No transition leaves them.
func (s Status) Terminal() bool {
	switch s {
	case Done, Failed:
		return true
	default:
		return false
	}
}

// CanTransitTo tells whether s -> next is a legal move of the
// Waiting -> Doing -> {Done, Failed} state machine.
//
// Failed is reachable from any non-terminal state, so a fault before the
// tuple is marked Doing still lands it in Failed.
func (s Status) CanTransitTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case Doing:
		return s == Waiting
	case Done:
		return s == Doing
	case Failed:
		return true
	default:
		return false
	}
}

func AsStatus(status string) (Status, error) {
	switch status {
	case string(Waiting):
		return Waiting, nil
	case string(Doing):
		return Doing, nil
	case string(Done):
		return Done, nil
	case string(Failed):
		return Failed, nil
	default:
		return "", fmt.Errorf("'%s' is not Status", status)
	}
}
