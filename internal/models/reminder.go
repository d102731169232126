package models

import "time"

type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCustom Frequency = "custom"
)

type Reminder struct {
	ID        string       `json:"id" validate:"required"`
	UserID    string       `json:"user_id" validate:"required"`
	Title     string       `json:"title" validate:"required"`
	StartTime TimeOfDay    `json:"start_time" validate:"min=0,lt=1440"`
	EndTime   TimeOfDay    `json:"end_time" validate:"min=0,lt=1440"`
	Frequency Frequency    `json:"frequency" validate:"oneof=daily weekly custom"`
	Weekday   time.Weekday `json:"weekday"` // weekly reminders only
	// CustomRule holds either an RFC 5545 RRULE (with or without the
	// "RRULE:" prefix) or a standard 5-field cron expression. Consulted
	// only when Frequency is custom.
	CustomRule     string     `json:"custom_rule"`
	IsActive       bool       `json:"is_active"`
	MaxPerDay      int        `json:"max_per_day"` // 0 means no cap
	LastSentAt     *time.Time `json:"last_sent_at"`
	SentCountToday int        `json:"sent_count_today"`
	LastResetDate  *time.Time `json:"last_reset_date"`
	// Version guards dispatch write-backs against concurrent user edits.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// WrapsMidnight reports whether the window crosses midnight, e.g.
// 22:00-06:00. Such a window is the union of [start, 23:59] and
// [00:00, end].
func (r *Reminder) WrapsMidnight() bool {
	return r.StartTime > r.EndTime
}

// EffectiveSentToday returns today's sent counter as of now: the stored
// counter when the date has not advanced past LastResetDate, zero
// otherwise. Read-only; the actual reset is written back by the
// dispatcher.
func (r *Reminder) EffectiveSentToday(now time.Time) int {
	if r.LastResetDate == nil || !SameDate(*r.LastResetDate, now) {
		return 0
	}
	return r.SentCountToday
}
