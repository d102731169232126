package engine

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/habitpulse/habitpulse/internal/clock"
	"github.com/habitpulse/habitpulse/internal/models"
)

// Dispatcher processes due reminders: it re-validates suppression policy
// inline, emits the dispatch intent, writes back the reminder's dispatch
// state, and appends an audit attempt. One reminder's failure never
// aborts the batch.
type Dispatcher struct {
	store    ReminderStore
	emitter  Emitter
	selector *Selector
	clk      clock.Clock
	cooldown time.Duration
	workers  int
	validate *validator.Validate
	logger   *zap.Logger
}

func NewDispatcher(store ReminderStore, emitter Emitter, selector *Selector, clk clock.Clock, cooldown time.Duration, workers int, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		store:    store,
		emitter:  emitter,
		selector: selector,
		clk:      clk,
		cooldown: cooldown,
		workers:  workers,
		validate: validator.New(),
		logger:   logger,
	}
}

// RunPass is the scheduler's Pass: one full select-and-dispatch sweep.
// Per-reminder work fans out across a bounded worker pool with no
// ordering guarantee between reminders.
func (d *Dispatcher) RunPass(ctx context.Context) error {
	now := d.clk.Now()

	due, err := d.selector.SelectDue(ctx, now)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	d.logger.Info("processing due reminders", zap.Int("count", len(due)))

	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for i := range due {
		r := due[i]
		g.Go(func() error {
			attempt := d.Dispatch(ctx, r, d.clk.Now())
			if attempt.Outcome == models.OutcomeError {
				d.logger.Error("dispatch failed",
					zap.String("reminder_id", r.ID),
					zap.String("user_id", r.UserID),
					zap.String("detail", attempt.Detail))
			}
			// Failures are isolated per item; never propagated.
			return nil
		})
	}
	return g.Wait()
}

// Dispatch evaluates one due reminder at now and records the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, r models.Reminder, now time.Time) models.DispatchAttempt {
	attempt := models.DispatchAttempt{
		ID:          uuid.NewString(),
		ReminderID:  r.ID,
		UserID:      r.UserID,
		AttemptedAt: now,
	}

	if err := d.validate.Struct(&r); err != nil {
		attempt.Outcome = models.OutcomeError
		attempt.Detail = (&ValidationError{Reason: "malformed reminder", Err: err}).Error()
		d.appendAttempt(ctx, attempt)
		return attempt
	}

	attempt.Outcome, attempt.Detail = d.attempt(ctx, &r, now)
	d.appendAttempt(ctx, attempt)
	return attempt
}

// attempt runs the suppression checks and, when clear, emits the intent
// and persists the new dispatch state. An optimistic-update conflict is
// retried once against refreshed state; the intent is not re-emitted on
// the retry.
func (d *Dispatcher) attempt(ctx context.Context, r *models.Reminder, now time.Time) (models.Outcome, string) {
	emitted := false

	for try := 0; try < 2; try++ {
		// The selector already filtered, but state may have moved
		// between selection and dispatch.
		if r.LastSentAt != nil && now.Sub(*r.LastSentAt) < d.cooldown {
			return models.OutcomeSuppressedDuplicate, emittedDetail(emitted)
		}
		count := r.EffectiveSentToday(now)
		if r.MaxPerDay > 0 && count >= r.MaxPerDay {
			return models.OutcomeSuppressedCap, emittedDetail(emitted)
		}

		if !emitted {
			// Fire and forget: delivery success is out of scope.
			if err := d.emitter.Emit(ctx, Notification{
				UserID:     r.UserID,
				ReminderID: r.ID,
				Title:      r.Title,
			}); err != nil {
				d.logger.Warn("emit failed",
					zap.String("reminder_id", r.ID),
					zap.Error(err))
			}
			emitted = true
		}

		err := d.store.UpdateDispatchState(ctx, r.ID, r.Version, now, count+1, models.Date(now))
		if err == nil {
			return models.OutcomeSent, ""
		}
		if errors.Is(err, ErrNotFound) {
			return models.OutcomeError, "reminder no longer exists"
		}
		if !errors.Is(err, ErrConflict) {
			return models.OutcomeError, err.Error()
		}

		fresh, ferr := d.store.FetchReminder(ctx, r.ID)
		if ferr != nil {
			return models.OutcomeError, "conflict refresh failed: " + ferr.Error()
		}
		*r = fresh
	}

	return models.OutcomeError, "persistent version conflict"
}

// emittedDetail flags a suppression reached only on the conflict retry,
// after the intent had already gone out. Without it the audit log would
// understate what the user received.
func emittedDetail(emitted bool) string {
	if emitted {
		return "intent emitted before conflict refresh"
	}
	return ""
}

func (d *Dispatcher) appendAttempt(ctx context.Context, attempt models.DispatchAttempt) {
	if err := d.store.AppendAttempt(ctx, attempt); err != nil {
		d.logger.Error("failed to append dispatch attempt",
			zap.String("reminder_id", attempt.ReminderID),
			zap.Error(err))
	}
}
