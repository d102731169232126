package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/habitpulse/habitpulse/internal/clock"
	"github.com/habitpulse/habitpulse/internal/models"
)

func newTestDispatcher(store *memReminderStore, emitter *memEmitter, clk clock.Clock) *Dispatcher {
	selector := NewSelector(store, 5*time.Minute, zap.NewNop())
	return NewDispatcher(store, emitter, selector, clk, 5*time.Minute, 4, zap.NewNop())
}

func TestDispatchSent(t *testing.T) {
	r := testReminder("r1")
	store := newMemReminderStore(r)
	emitter := &memEmitter{}
	now := at(10, 0)
	d := newTestDispatcher(store, emitter, clock.NewMock(now))

	attempt := d.Dispatch(context.Background(), r, now)

	if attempt.Outcome != models.OutcomeSent {
		t.Fatalf("outcome = %q, want sent (detail: %s)", attempt.Outcome, attempt.Detail)
	}
	if emitter.count() != 1 {
		t.Errorf("emitted = %d, want 1", emitter.count())
	}

	stored := store.get("r1")
	if stored.LastSentAt == nil || !stored.LastSentAt.Equal(now) {
		t.Errorf("lastSentAt = %v, want %v", stored.LastSentAt, now)
	}
	if stored.SentCountToday != 1 {
		t.Errorf("sentCountToday = %d, want 1", stored.SentCountToday)
	}
	if stored.Version != r.Version+1 {
		t.Errorf("version = %d, want %d", stored.Version, r.Version+1)
	}
	if got := len(store.attemptsWithOutcome(models.OutcomeSent)); got != 1 {
		t.Errorf("sent attempts logged = %d, want 1", got)
	}
}

func TestDispatchCooldownSuppressed(t *testing.T) {
	now := at(10, 0)
	sentAt := now.Add(-time.Minute)
	resetDate := models.Date(now)

	r := testReminder("r1")
	r.LastSentAt = &sentAt
	r.LastResetDate = &resetDate
	r.SentCountToday = 1
	store := newMemReminderStore(r)
	emitter := &memEmitter{}
	d := newTestDispatcher(store, emitter, clock.NewMock(now))

	attempt := d.Dispatch(context.Background(), r, now)

	if attempt.Outcome != models.OutcomeSuppressedDuplicate {
		t.Fatalf("outcome = %q, want suppressed_duplicate", attempt.Outcome)
	}
	if emitter.count() != 0 {
		t.Errorf("emitted = %d, want 0", emitter.count())
	}
	if store.get("r1").SentCountToday != 1 {
		t.Errorf("counter moved on a suppressed dispatch")
	}
}

func TestDispatchCapSuppressed(t *testing.T) {
	now := at(12, 0)
	sentAt := now.Add(-time.Hour)
	resetDate := models.Date(now)

	r := testReminder("r1")
	r.LastSentAt = &sentAt
	r.LastResetDate = &resetDate
	r.SentCountToday = 3 // MaxPerDay
	store := newMemReminderStore(r)
	emitter := &memEmitter{}
	d := newTestDispatcher(store, emitter, clock.NewMock(now))

	attempt := d.Dispatch(context.Background(), r, now)

	if attempt.Outcome != models.OutcomeSuppressedCap {
		t.Fatalf("outcome = %q, want suppressed_cap", attempt.Outcome)
	}
	if emitter.count() != 0 {
		t.Errorf("emitted = %d, want 0", emitter.count())
	}
}

func TestDispatchCapResetsAfterRollover(t *testing.T) {
	now := at(10, 0)
	yesterday := models.Date(now.AddDate(0, 0, -1))
	sentAt := now.AddDate(0, 0, -1)

	r := testReminder("r1")
	r.LastSentAt = &sentAt
	r.LastResetDate = &yesterday
	r.SentCountToday = 3
	store := newMemReminderStore(r)
	emitter := &memEmitter{}
	d := newTestDispatcher(store, emitter, clock.NewMock(now))

	attempt := d.Dispatch(context.Background(), r, now)

	if attempt.Outcome != models.OutcomeSent {
		t.Fatalf("outcome = %q, want sent after rollover", attempt.Outcome)
	}
	stored := store.get("r1")
	if stored.SentCountToday != 1 {
		t.Errorf("sentCountToday = %d, want 1 after rollover reset", stored.SentCountToday)
	}
	if stored.LastResetDate == nil || !models.SameDate(*stored.LastResetDate, now) {
		t.Errorf("lastResetDate = %v, want today", stored.LastResetDate)
	}
}

func TestDispatchConflictRetriesOnce(t *testing.T) {
	r := testReminder("r1")
	store := newMemReminderStore(r)
	emitter := &memEmitter{}
	now := at(10, 0)
	d := newTestDispatcher(store, emitter, clock.NewMock(now))

	// A concurrent edit lands between selection and dispatch.
	store.bumpVersion("r1")

	attempt := d.Dispatch(context.Background(), r, now)

	if attempt.Outcome != models.OutcomeSent {
		t.Fatalf("outcome = %q, want sent after one refresh (detail: %s)", attempt.Outcome, attempt.Detail)
	}
	if emitter.count() != 1 {
		t.Errorf("emitted = %d, want exactly 1 (the intent must not be re-emitted on retry)", emitter.count())
	}
}

func TestDispatchConflictSuppressionRecordsEmit(t *testing.T) {
	r := testReminder("r1")
	store := newMemReminderStore(r)
	emitter := &memEmitter{}
	now := at(10, 0)
	d := newTestDispatcher(store, emitter, clock.NewMock(now))

	// A concurrent dispatch wins between selection and write-back, so
	// the refreshed row is inside its cooldown.
	sentAt := now.Add(-time.Minute)
	winner := r
	winner.LastSentAt = &sentAt
	winner.Version = r.Version + 1
	store.put(winner)

	attempt := d.Dispatch(context.Background(), r, now)

	if attempt.Outcome != models.OutcomeSuppressedDuplicate {
		t.Fatalf("outcome = %q, want suppressed_duplicate", attempt.Outcome)
	}
	if emitter.count() != 1 {
		t.Errorf("emitted = %d, want 1", emitter.count())
	}
	if !strings.Contains(attempt.Detail, "emitted") {
		t.Errorf("detail = %q, want a note that the intent already went out", attempt.Detail)
	}
}

func TestDispatchValidationError(t *testing.T) {
	r := testReminder("r1")
	r.Title = ""
	store := newMemReminderStore(r)
	emitter := &memEmitter{}
	now := at(10, 0)
	d := newTestDispatcher(store, emitter, clock.NewMock(now))

	attempt := d.Dispatch(context.Background(), r, now)

	if attempt.Outcome != models.OutcomeError {
		t.Fatalf("outcome = %q, want error", attempt.Outcome)
	}
	if !strings.Contains(attempt.Detail, "validation") {
		t.Errorf("detail = %q, want validation detail", attempt.Detail)
	}
	if emitter.count() != 0 {
		t.Errorf("emitted = %d, want 0 for malformed reminder", emitter.count())
	}
}

func TestRunPassIsolatesItemFailures(t *testing.T) {
	healthy := testReminder("healthy")
	doomed := testReminder("doomed")
	store := newMemReminderStore(healthy, doomed)
	emitter := &memEmitter{}
	now := at(10, 0)
	clk := clock.NewMock(now)
	d := newTestDispatcher(store, emitter, clk)

	// The doomed reminder vanishes after selection; its update reports
	// not-found while the healthy one proceeds.
	store.mu.Lock()
	delete(store.reminders, "doomed")
	store.mu.Unlock()

	if got := d.Dispatch(context.Background(), doomed, now); got.Outcome != models.OutcomeError {
		t.Fatalf("doomed outcome = %q, want error", got.Outcome)
	}

	attempt := d.Dispatch(context.Background(), healthy, now)
	if attempt.Outcome != models.OutcomeSent {
		t.Fatalf("healthy outcome = %q, want sent", attempt.Outcome)
	}
}

// Full simulated day: window 09:00-21:00, cooldown 5 minutes, cap 3.
// Ticks fire every minute from 08:00 to 23:00; exactly three dispatches
// go out, five or more minutes apart, all inside the window.
func TestRunPassSimulatedDay(t *testing.T) {
	r := testReminder("r1") // window 09:00-21:00, MaxPerDay 3
	store := newMemReminderStore(r)
	emitter := &memEmitter{}
	clk := clock.NewMock(at(8, 0))
	d := newTestDispatcher(store, emitter, clk)
	ctx := context.Background()

	for tick := at(8, 0); tick.Before(at(23, 0)); tick = tick.Add(time.Minute) {
		clk.Set(tick)
		if err := d.RunPass(ctx); err != nil {
			t.Fatalf("RunPass at %v: %v", tick, err)
		}
	}

	sent := store.attemptsWithOutcome(models.OutcomeSent)
	if len(sent) != 3 {
		t.Fatalf("sent attempts = %d, want exactly 3", len(sent))
	}

	windowStart := at(9, 0)
	windowEnd := at(21, 0)
	for i, a := range sent {
		if a.AttemptedAt.Before(windowStart) || a.AttemptedAt.After(windowEnd) {
			t.Errorf("attempt %d at %v is outside the window", i, a.AttemptedAt)
		}
		if i > 0 {
			gap := a.AttemptedAt.Sub(sent[i-1].AttemptedAt)
			if gap < 5*time.Minute {
				t.Errorf("attempts %d and %d only %v apart, want >= 5m", i-1, i, gap)
			}
		}
	}
	if emitter.count() != 3 {
		t.Errorf("emitted = %d, want 3", emitter.count())
	}
}
