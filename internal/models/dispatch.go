package models

import "time"

// Outcome classifies a single dispatch evaluation of a due reminder.
type Outcome string

const (
	OutcomeSent                Outcome = "sent"
	OutcomeSuppressedDuplicate Outcome = "suppressed_duplicate"
	OutcomeSuppressedCap       Outcome = "suppressed_cap"
	OutcomeError               Outcome = "error"
)

// DispatchAttempt is an append-only log entry recording one dispatch
// evaluation. Never mutated after creation.
type DispatchAttempt struct {
	ID          string    `json:"id"`
	ReminderID  string    `json:"reminder_id"`
	UserID      string    `json:"user_id"`
	AttemptedAt time.Time `json:"attempted_at"`
	Outcome     Outcome   `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
}
