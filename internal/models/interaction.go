package models

import (
	"fmt"
	"time"
)

type Action string

const (
	ActionCompleted Action = "completed"
	ActionSkipped   Action = "skipped"
	ActionSnoozed   Action = "snoozed"
	ActionPostponed Action = "postponed"
)

// InteractionEvent records a user's response to a reminder. IDs may be
// client-generated for offline sync, so replays of the same logical
// event must be detected via DedupKey rather than ID.
type InteractionEvent struct {
	ID         string    `json:"id"`
	ReminderID string    `json:"reminder_id" validate:"required"`
	UserID     string    `json:"user_id" validate:"required"`
	Action     Action    `json:"action" validate:"oneof=completed skipped snoozed postponed"`
	OccurredAt time.Time `json:"occurred_at" validate:"required"`
	// LocalID is the client-side identifier assigned before sync; empty
	// for events created online.
	LocalID  string `json:"local_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	// SnoozeFor applies to snoozed events only; zero falls back to the
	// configured default.
	SnoozeFor time.Duration `json:"snooze_for,omitempty"`
}

// DedupKey is the identity under which replays are suppressed:
// (reminderID, localID) when the client assigned a local ID, otherwise
// (userID, reminderID, completion date).
func (e *InteractionEvent) DedupKey() string {
	if e.LocalID != "" {
		return e.ReminderID + ":" + e.LocalID
	}
	return fmt.Sprintf("%s:%s:%s", e.UserID, e.ReminderID, Date(e.OccurredAt).Format("2006-01-02"))
}
