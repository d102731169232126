package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/habitpulse/habitpulse/internal/database"
	"github.com/habitpulse/habitpulse/internal/engine"
	"github.com/habitpulse/habitpulse/internal/models"
)

// ReminderRepository implements engine.ReminderStore on Postgres.
type ReminderRepository struct {
	db *database.DB
}

func NewReminderRepository(db *database.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

const reminderColumns = `id, user_id, title, start_minute, end_minute, frequency, weekday, custom_rule,
	 is_active, max_per_day, last_sent_at, sent_count_today, last_reset_date, version, created_at`

func scanReminder(row pgx.Row) (models.Reminder, error) {
	var r models.Reminder
	var startMinute, endMinute, weekday int16
	err := row.Scan(&r.ID, &r.UserID, &r.Title, &startMinute, &endMinute, &r.Frequency, &weekday,
		&r.CustomRule, &r.IsActive, &r.MaxPerDay, &r.LastSentAt, &r.SentCountToday,
		&r.LastResetDate, &r.Version, &r.CreatedAt)
	if err != nil {
		return models.Reminder{}, err
	}
	r.StartTime = models.TimeOfDay(startMinute)
	r.EndTime = models.TimeOfDay(endMinute)
	r.Weekday = time.Weekday(weekday)
	return r, nil
}

func (r *ReminderRepository) FetchActiveReminders(ctx context.Context) ([]models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE is_active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

func (r *ReminderRepository) FetchReminder(ctx context.Context, id string) (models.Reminder, error) {
	reminder, err := scanReminder(r.db.Pool.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Reminder{}, engine.ErrNotFound
	}
	return reminder, err
}

// UpdateDispatchState writes back the dispatch-side fields under an
// optimistic version check, so a concurrent user edit cannot be silently
// overwritten (and vice versa).
func (r *ReminderRepository) UpdateDispatchState(ctx context.Context, id string, version int64, lastSentAt time.Time, sentCountToday int, lastResetDate time.Time) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders
		 SET last_sent_at = $2, sent_count_today = $3, last_reset_date = $4, version = version + 1
		 WHERE id = $1 AND version = $5`,
		id, lastSentAt, sentCountToday, lastResetDate, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM reminders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return engine.ErrNotFound
	}
	return engine.ErrConflict
}

// Postpone moves last_sent_at forward so the cooldown keeps the reminder
// quiet through the given instant. No version check: a snooze losing to
// a concurrent edit is acceptable.
func (r *ReminderRepository) Postpone(ctx context.Context, id string, until time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET last_sent_at = $2, version = version + 1
		 WHERE id = $1 AND (last_sent_at IS NULL OR last_sent_at < $2)`,
		id, until)
	return err
}

func (r *ReminderRepository) AppendAttempt(ctx context.Context, attempt models.DispatchAttempt) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO dispatch_attempts (id, reminder_id, user_id, attempted_at, outcome, detail)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		attempt.ID, attempt.ReminderID, attempt.UserID, attempt.AttemptedAt, attempt.Outcome, attempt.Detail)
	return err
}
