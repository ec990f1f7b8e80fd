package reservation

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// activeStatuses are the statuses that hold a time window.
var activeStatuses = []string{string(StatusPending), string(StatusConfirmed)}

// ParseStatus rejects anything outside the four known statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("unknown reservation status %q", s)
	}
}

// IsActive reports whether the reservation participates in conflict checks.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusConfirmed:
		return true
	case StatusCancelled, StatusCompleted:
		return false
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted:
		return true
	case StatusPending, StatusConfirmed:
		return false
	default:
		return false
	}
}

// CanTransitionTo encodes the reservation lifecycle:
//
//	pending   -> confirmed | cancelled
//	confirmed -> cancelled | completed
//	cancelled, completed: terminal
//
// Unknown statuses never transition.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCancelled || next == StatusCompleted
	case StatusCancelled, StatusCompleted:
		return false
	default:
		return false
	}
}
