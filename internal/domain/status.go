package domain

import "fmt"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReceived  Status = "RECEIVED"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
	StatusFailed    Status = "FAILED"
)

// transitions is the full table of legal status moves. RECEIVED is a
// terminal entry state for inbound messages; FAILED can be reached from
// any pre-terminal stage.
var transitions = map[Status]map[Status]bool{
	StatusPending:   {StatusSent: true, StatusFailed: true},
	StatusSent:      {StatusDelivered: true, StatusFailed: true},
	StatusDelivered: {StatusRead: true, StatusFailed: true},
	StatusReceived:  {},
	StatusRead:      {},
	StatusFailed:    {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) CanTransitionTo(next Status) bool {
	allowed, ok := transitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// ValidateTransition returns ErrInvalidTransition wrapped with the
// offending pair so handlers can report it verbatim.
func ValidateTransition(old, next Status) error {
	if !old.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, old, next)
	}
	return nil
}
