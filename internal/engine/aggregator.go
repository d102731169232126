package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/habitpulse/habitpulse/internal/clock"
	"github.com/habitpulse/habitpulse/internal/models"
)

// Aggregator applies interaction events to streak and counter state.
// Apply is idempotent under replay (offline sync, network retries) and
// safe under concurrent calls for the same user.
type Aggregator struct {
	store         EngagementStore
	reminders     ReminderStore
	dedup         DuplicateCache
	clk           clock.Clock
	defaultSnooze time.Duration
	validate      *validator.Validate
	logger        *zap.Logger

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewAggregator(store EngagementStore, reminders ReminderStore, dedup DuplicateCache, clk clock.Clock, defaultSnooze time.Duration, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		store:         store,
		reminders:     reminders,
		dedup:         dedup,
		clk:           clk,
		defaultSnooze: defaultSnooze,
		validate:      validator.New(),
		logger:        logger,
		users:         make(map[string]*sync.Mutex),
	}
}

// Apply records the event and returns the user's streak state after it.
// Replays of an already-applied event return the current state unchanged
// rather than double-counting.
func (a *Aggregator) Apply(ctx context.Context, event models.InteractionEvent) (models.StreakState, error) {
	if err := a.validate.Struct(&event); err != nil {
		return models.StreakState{}, &ValidationError{Reason: "malformed interaction event", Err: err}
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	key := event.DedupKey()

	// Fast path: cheap replay check before any write. The cache answers
	// when configured, the store otherwise; the unique-key insert below
	// stays authoritative either way.
	seen, err := a.seenBefore(ctx, key)
	if err != nil {
		a.logger.Warn("replay lookup failed", zap.Error(err))
	} else if seen {
		return a.store.FetchStreak(ctx, event.UserID)
	}

	// Concurrent applies for the same user serialize their
	// read-modify-write here; distinct users proceed in parallel.
	lock := a.userLock(event.UserID)
	lock.Lock()
	defer lock.Unlock()

	if err := a.store.RecordInteraction(ctx, event); err != nil {
		if errors.Is(err, ErrConflict) {
			// Already applied: replay of a synced event.
			return a.store.FetchStreak(ctx, event.UserID)
		}
		return models.StreakState{}, Transient(err)
	}

	state, err := a.applyWithRetry(ctx, event)
	if err != nil {
		// The event row is already recorded; leaving it would make a
		// client retry hit the replay branch and lose the aggregate
		// effect. Roll it back so the retry re-applies in full.
		if derr := a.store.DeleteInteraction(ctx, key); derr != nil {
			a.logger.Error("failed to roll back unapplied interaction",
				zap.String("dedup_key", key),
				zap.Error(derr))
		}
		return models.StreakState{}, err
	}

	if event.Action == models.ActionSnoozed {
		a.postpone(ctx, event)
	}

	if a.dedup != nil {
		if err := a.dedup.Mark(ctx, key); err != nil {
			a.logger.Warn("duplicate cache mark failed", zap.Error(err))
		}
	}

	return state, nil
}

// applyWithRetry performs the optimistic read-modify-write, retrying
// once on a version conflict with refreshed state.
func (a *Aggregator) applyWithRetry(ctx context.Context, event models.InteractionEvent) (models.StreakState, error) {
	for try := 0; try < 2; try++ {
		state, err := a.store.FetchStreak(ctx, event.UserID)
		if err != nil {
			return models.StreakState{}, Transient(err)
		}
		state.UserID = event.UserID

		mutate(&state, event)

		err = a.store.UpdateStreak(ctx, state)
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, ErrConflict) {
			return models.StreakState{}, Transient(err)
		}
	}
	return models.StreakState{}, ErrConflict
}

// mutate applies one event to the aggregate. Only completed events touch
// the streak; the others touch counters.
func mutate(state *models.StreakState, event models.InteractionEvent) {
	switch event.Action {
	case models.ActionCompleted:
		applyCompleted(state, event.OccurredAt)
	case models.ActionSkipped:
		state.TotalSkips++
	case models.ActionSnoozed, models.ActionPostponed:
		state.TotalSnoozes++
	}
}

// applyCompleted advances the streak per date contiguity:
//
//	first completion ever        -> streak 1
//	same date as last completion -> streak unchanged
//	next calendar date           -> streak + 1
//	gap of 2+ days               -> streak resets to 1
//	date before last completion  -> streak untouched (late sync of a
//	                                past date; no retroactive
//	                                recomputation, by policy)
//
// lastCompletionDate advances only forward.
func applyCompleted(state *models.StreakState, occurredAt time.Time) {
	d := models.Date(occurredAt)
	state.TotalCompletions++

	prev := state.LastCompletionDate
	switch {
	case prev == nil:
		state.CurrentStreak = 1
		state.LastCompletionDate = &d
	case models.SameDate(*prev, d):
		// Already counted for this date.
	case models.DaysBetween(*prev, d) == 1:
		state.CurrentStreak++
		state.LastCompletionDate = &d
	case models.DaysBetween(*prev, d) > 1:
		state.CurrentStreak = 1
		state.LastCompletionDate = &d
	default:
		// d < prev: out-of-order sync of a past date.
	}

	if state.CurrentStreak > state.LongestStreak {
		state.LongestStreak = state.CurrentStreak
	}
}

// postpone pushes the reminder quiet until now + snooze duration.
// Best effort; a failure only logs.
func (a *Aggregator) postpone(ctx context.Context, event models.InteractionEvent) {
	if a.reminders == nil {
		return
	}
	snooze := event.SnoozeFor
	if snooze <= 0 {
		snooze = a.defaultSnooze
	}
	until := a.clk.Now().Add(snooze)
	if err := a.reminders.Postpone(ctx, event.ReminderID, until); err != nil {
		a.logger.Warn("failed to postpone snoozed reminder",
			zap.String("reminder_id", event.ReminderID),
			zap.Error(err))
	}
}

func (a *Aggregator) seenBefore(ctx context.Context, key string) (bool, error) {
	if a.dedup != nil {
		return a.dedup.Seen(ctx, key)
	}
	return a.store.SeenInteraction(ctx, key)
}

func (a *Aggregator) userLock(userID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.users[userID]
	if !ok {
		lock = &sync.Mutex{}
		a.users[userID] = lock
	}
	return lock
}
