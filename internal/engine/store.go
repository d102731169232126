package engine

import (
	"context"
	"time"

	"github.com/habitpulse/habitpulse/internal/models"
)

// ReminderStore is the durable-reminder capability the engine consumes.
// The store is the single source of truth; the engine only holds
// transient working copies during a pass.
type ReminderStore interface {
	FetchActiveReminders(ctx context.Context) ([]models.Reminder, error)
	FetchReminder(ctx context.Context, id string) (models.Reminder, error)

	// UpdateDispatchState writes back the dispatch-side fields
	// (lastSentAt, sentCountToday, lastResetDate) iff the stored version
	// still equals version. Returns ErrConflict when a concurrent edit
	// won, ErrNotFound when the reminder is gone.
	UpdateDispatchState(ctx context.Context, id string, version int64, lastSentAt time.Time, sentCountToday int, lastResetDate time.Time) error

	// Postpone pushes lastSentAt forward so the cooldown holds the
	// reminder quiet until the given instant. Best effort: version
	// conflicts are not retried here.
	Postpone(ctx context.Context, id string, until time.Time) error

	AppendAttempt(ctx context.Context, attempt models.DispatchAttempt) error
}

// EngagementStore persists interaction events and per-user streak state.
type EngagementStore interface {
	// RecordInteraction appends the event. Returns ErrConflict when an
	// event with the same dedup key was already recorded.
	RecordInteraction(ctx context.Context, event models.InteractionEvent) error

	// SeenInteraction reports whether an event with this dedup key has
	// been recorded before. Serves the replay fast path when no
	// DuplicateCache is configured.
	SeenInteraction(ctx context.Context, dedupKey string) (bool, error)

	// DeleteInteraction removes a recorded event by dedup key. Used to
	// roll back an event whose aggregate effect could not be applied, so
	// a client retry re-applies it in full.
	DeleteInteraction(ctx context.Context, dedupKey string) error

	// FetchStreak returns the user's streak state, or a zero-valued
	// state (version 0) when the user has none yet.
	FetchStreak(ctx context.Context, userID string) (models.StreakState, error)

	// UpdateStreak persists state iff the stored version still equals
	// state.Version; the stored version is then incremented. Returns
	// ErrConflict on collision.
	UpdateStreak(ctx context.Context, state models.StreakState) error
}

// LeaderboardStore serves pages of streak state ordered by CompareStreaks.
type LeaderboardStore interface {
	FetchTopStreaks(ctx context.Context, limit, offset int) ([]models.StreakState, error)
}

// Notification is a dispatch intent: the engine's decision to notify.
// Delivery mechanics are external and fire-and-forget.
type Notification struct {
	UserID     string
	ReminderID string
	Title      string
}

// Emitter hands a dispatch intent to the delivery layer. The engine
// never awaits delivery confirmation; a returned error is logged and
// otherwise ignored.
type Emitter interface {
	Emit(ctx context.Context, n Notification) error
}

// DuplicateCache is an optional fast path in front of the store's
// authoritative uniqueness check (e.g. redis). Both methods are best
// effort: a cache miss or failure falls through to the store.
type DuplicateCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}
