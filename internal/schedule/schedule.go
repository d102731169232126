// Package schedule answers the two calendar questions the engine asks:
// does a reminder's window contain this instant, and does its frequency
// rule occur on this date.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"

	"github.com/habitpulse/habitpulse/internal/models"
)

// InWindow reports whether now's time-of-day falls inside
// [start, end]. A wrap-around window (start > end) crosses midnight and
// is treated as the two sub-ranges [start, 23:59] and [00:00, end].
func InWindow(start, end models.TimeOfDay, now time.Time) bool {
	tod := models.TimeOfDayFrom(now)
	if start <= end {
		return tod >= start && tod <= end
	}
	return tod >= start || tod <= end
}

// OccursOn reports whether a custom frequency rule has an occurrence on
// day's calendar date. The rule is either an RFC 5545 RRULE (with or
// without the "RRULE:" prefix) or a standard 5-field cron expression.
func OccursOn(rule string, day time.Time) (bool, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return false, fmt.Errorf("empty custom rule")
	}
	if isRRule(rule) {
		return rruleOccursOn(rule, day)
	}
	return cronOccursOn(rule, day)
}

func isRRule(rule string) bool {
	return strings.HasPrefix(rule, "RRULE:") || strings.HasPrefix(rule, "FREQ=")
}

func rruleOccursOn(ruleStr string, day time.Time) (bool, error) {
	ruleStr = strings.TrimPrefix(ruleStr, "RRULE:")

	opt, err := rrule.StrToROption(ruleStr)
	if err != nil {
		return false, fmt.Errorf("failed to parse RRULE: %w", err)
	}

	dayStart := models.Date(day)
	dayEnd := dayStart.Add(24*time.Hour - time.Second)

	// Interval rules derive occurrence parity from DTSTART, so rules
	// without an explicit one all share a fixed epoch anchor. Deriving
	// the anchor from the evaluated day would shift that parity per date.
	if opt.Dtstart.IsZero() {
		opt.Dtstart = time.Date(2000, 1, 1, 0, 0, 0, 0, day.Location())
	}

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return false, fmt.Errorf("failed to build RRULE: %w", err)
	}

	return len(r.Between(dayStart, dayEnd, true)) > 0, nil
}

func cronOccursOn(expr string, day time.Time) (bool, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return false, fmt.Errorf("failed to parse cron expression: %w", err)
	}

	dayStart := models.Date(day)
	dayEnd := dayStart.Add(24 * time.Hour)

	next := sched.Next(dayStart.Add(-time.Second))
	return next.Before(dayEnd), nil
}

// Matches reports whether the reminder's frequency rule occurs on now's
// calendar date. Daily reminders match every day, weekly reminders match
// their configured weekday, custom reminders delegate to OccursOn.
func Matches(r *models.Reminder, now time.Time) (bool, error) {
	switch r.Frequency {
	case models.FrequencyDaily:
		return true, nil
	case models.FrequencyWeekly:
		return now.Weekday() == r.Weekday, nil
	case models.FrequencyCustom:
		return OccursOn(r.CustomRule, now)
	default:
		return false, fmt.Errorf("unknown frequency %q", r.Frequency)
	}
}
