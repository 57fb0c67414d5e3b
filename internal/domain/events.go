package domain

import (
	"time"

	"github.com/google/uuid"
)

// VerificationEventKind enumerates the events a verification session can emit.
// Cancelled covers every early end without a match: the watcher going away or
// the payout reaching a terminal status through another actor.
type VerificationEventKind string

const (
	VerificationChecking  VerificationEventKind = "checking"
	VerificationMatched   VerificationEventKind = "matched"
	VerificationExhausted VerificationEventKind = "exhausted"
	VerificationCancelled VerificationEventKind = "cancelled"
)

// VerificationEvent is one progress or terminal message from a verification
// session. Attempt and MaxAttempts are populated only for checking events.
type VerificationEvent struct {
	Kind        VerificationEventKind `json:"kind"`
	PayoutID    uuid.UUID             `json:"payout_id"`
	Attempt     int                   `json:"attempt,omitempty"`
	MaxAttempts int                   `json:"max_attempts,omitempty"`
}

// IsTerminal reports whether the event closes the session.
func (e VerificationEvent) IsTerminal() bool {
	return e.Kind != VerificationChecking
}

// PayoutStatusEvent is the change-notifier message published whenever a payout
// record's status is committed to a new value. Consumers must treat it as a hint
// to re-fetch the authoritative record, never as the payload itself.
type PayoutStatusEvent struct {
	EventID    string       `json:"event_id"`
	PayoutID   uuid.UUID    `json:"payout_id"`
	Status     PayoutStatus `json:"status"`
	OccurredAt time.Time    `json:"occurred_at"`
}
