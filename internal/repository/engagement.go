package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/habitpulse/habitpulse/internal/database"
	"github.com/habitpulse/habitpulse/internal/engine"
	"github.com/habitpulse/habitpulse/internal/models"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// EngagementRepository implements engine.EngagementStore and
// engine.LeaderboardStore on Postgres.
type EngagementRepository struct {
	db *database.DB
}

func NewEngagementRepository(db *database.DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// RecordInteraction appends the event. The dedup_key unique index is the
// authoritative replay guard: a second insert with the same key reports
// engine.ErrConflict.
func (r *EngagementRepository) RecordInteraction(ctx context.Context, event models.InteractionEvent) error {
	tag, err := r.db.Pool.Exec(ctx,
		`INSERT INTO interaction_events (id, reminder_id, user_id, action, occurred_at, local_id, device_id, dedup_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (dedup_key) DO NOTHING`,
		event.ID, event.ReminderID, event.UserID, event.Action, event.OccurredAt,
		event.LocalID, event.DeviceID, event.DedupKey())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrConflict
	}
	return nil
}

func (r *EngagementRepository) SeenInteraction(ctx context.Context, dedupKey string) (bool, error) {
	var seen bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM interaction_events WHERE dedup_key = $1)`, dedupKey).Scan(&seen)
	return seen, err
}

// DeleteInteraction rolls back an event whose aggregate effect failed to
// apply, so the client's retry is not mistaken for a replay.
func (r *EngagementRepository) DeleteInteraction(ctx context.Context, dedupKey string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM interaction_events WHERE dedup_key = $1`, dedupKey)
	return err
}

const streakColumns = `user_id, current_streak, longest_streak, total_completions, total_skips, total_snoozes, last_completion_date, version`

// FetchStreak returns the user's streak row, or a zero-valued state
// (version 0) when none exists yet.
func (r *EngagementRepository) FetchStreak(ctx context.Context, userID string) (models.StreakState, error) {
	var st models.StreakState
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+streakColumns+` FROM streaks WHERE user_id = $1`, userID,
	).Scan(&st.UserID, &st.CurrentStreak, &st.LongestStreak, &st.TotalCompletions,
		&st.TotalSkips, &st.TotalSnoozes, &st.LastCompletionDate, &st.Version)
	if err != nil {
		if isNoRows(err) {
			return models.StreakState{UserID: userID}, nil
		}
		return models.StreakState{}, err
	}
	return st, nil
}

// UpdateStreak persists state under an optimistic version check. A first
// write (version 0) races the insert instead.
func (r *EngagementRepository) UpdateStreak(ctx context.Context, state models.StreakState) error {
	if state.Version == 0 {
		tag, err := r.db.Pool.Exec(ctx,
			`INSERT INTO streaks (user_id, current_streak, longest_streak, total_completions, total_skips, total_snoozes, last_completion_date, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
			 ON CONFLICT (user_id) DO NOTHING`,
			state.UserID, state.CurrentStreak, state.LongestStreak, state.TotalCompletions,
			state.TotalSkips, state.TotalSnoozes, state.LastCompletionDate)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return engine.ErrConflict
		}
		return nil
	}

	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE streaks
		 SET current_streak = $2, longest_streak = $3, total_completions = $4,
		     total_skips = $5, total_snoozes = $6, last_completion_date = $7, version = version + 1
		 WHERE user_id = $1 AND version = $8`,
		state.UserID, state.CurrentStreak, state.LongestStreak, state.TotalCompletions,
		state.TotalSkips, state.TotalSnoozes, state.LastCompletionDate, state.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrConflict
	}
	return nil
}

// FetchTopStreaks serves one comparator-ordered page: the ORDER BY
// mirrors engine.CompareStreaks exactly.
func (r *EngagementRepository) FetchTopStreaks(ctx context.Context, limit, offset int) ([]models.StreakState, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+streakColumns+` FROM streaks
		 ORDER BY current_streak DESC, total_completions DESC, user_id ASC
		 LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []models.StreakState
	for rows.Next() {
		var st models.StreakState
		if err := rows.Scan(&st.UserID, &st.CurrentStreak, &st.LongestStreak, &st.TotalCompletions,
			&st.TotalSkips, &st.TotalSnoozes, &st.LastCompletionDate, &st.Version); err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}
