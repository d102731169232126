package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/habitpulse/habitpulse/internal/models"
	"github.com/habitpulse/habitpulse/internal/schedule"
)

// Selector decides which reminders require a notification pass right
// now. It is strictly read-only: counter resets implied by a date
// rollover are evaluated virtually and written back by the dispatcher.
type Selector struct {
	store    ReminderStore
	cooldown time.Duration
	logger   *zap.Logger
}

func NewSelector(store ReminderStore, cooldown time.Duration, logger *zap.Logger) *Selector {
	return &Selector{
		store:    store,
		cooldown: cooldown,
		logger:   logger,
	}
}

// SelectDue returns the reminders due at now, in no particular order.
// An empty result is not a failure; the only error source is the store
// fetch itself. Reminders with malformed custom rules are logged and
// skipped, never returned as errors.
func (s *Selector) SelectDue(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	reminders, err := s.store.FetchActiveReminders(ctx)
	if err != nil {
		return nil, Transient(err)
	}

	var due []models.Reminder
	for i := range reminders {
		ok, err := s.isDue(&reminders[i], now)
		if err != nil {
			s.logger.Warn("skipping reminder with invalid schedule rule",
				zap.String("reminder_id", reminders[i].ID),
				zap.Error(err))
			continue
		}
		if ok {
			due = append(due, reminders[i])
		}
	}
	return due, nil
}

func (s *Selector) isDue(r *models.Reminder, now time.Time) (bool, error) {
	if !r.IsActive {
		return false, nil
	}
	if !schedule.InWindow(r.StartTime, r.EndTime, now) {
		return false, nil
	}

	matches, err := schedule.Matches(r, now)
	if err != nil {
		return false, err
	}
	if !matches {
		return false, nil
	}

	if r.LastSentAt != nil && now.Sub(*r.LastSentAt) < s.cooldown {
		return false, nil
	}

	if r.MaxPerDay > 0 && r.EffectiveSentToday(now) >= r.MaxPerDay {
		return false, nil
	}

	return true, nil
}
