package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/habitpulse/habitpulse/internal/models"
)

// memReminderStore is an in-memory ReminderStore for tests.
type memReminderStore struct {
	mu        sync.Mutex
	reminders map[string]models.Reminder
	attempts  []models.DispatchAttempt
}

func newMemReminderStore(reminders ...models.Reminder) *memReminderStore {
	s := &memReminderStore{reminders: make(map[string]models.Reminder)}
	for _, r := range reminders {
		s.reminders[r.ID] = r
	}
	return s
}

func (s *memReminderStore) FetchActiveReminders(_ context.Context) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reminder
	for _, r := range s.reminders {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memReminderStore) FetchReminder(_ context.Context, id string) (models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return models.Reminder{}, ErrNotFound
	}
	return r, nil
}

func (s *memReminderStore) UpdateDispatchState(_ context.Context, id string, version int64, lastSentAt time.Time, sentCountToday int, lastResetDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return ErrNotFound
	}
	if r.Version != version {
		return ErrConflict
	}
	r.LastSentAt = &lastSentAt
	r.SentCountToday = sentCountToday
	r.LastResetDate = &lastResetDate
	r.Version++
	s.reminders[id] = r
	return nil
}

func (s *memReminderStore) Postpone(_ context.Context, id string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil
	}
	if r.LastSentAt == nil || r.LastSentAt.Before(until) {
		r.LastSentAt = &until
		r.Version++
		s.reminders[id] = r
	}
	return nil
}

func (s *memReminderStore) AppendAttempt(_ context.Context, attempt models.DispatchAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *memReminderStore) get(id string) models.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reminders[id]
}

func (s *memReminderStore) put(r models.Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = r
}

// bumpVersion simulates a concurrent user edit.
func (s *memReminderStore) bumpVersion(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reminders[id]
	r.Version++
	s.reminders[id] = r
}

func (s *memReminderStore) attemptsWithOutcome(outcome models.Outcome) []models.DispatchAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DispatchAttempt
	for _, a := range s.attempts {
		if a.Outcome == outcome {
			out = append(out, a)
		}
	}
	return out
}

// memEngagementStore is an in-memory EngagementStore and
// LeaderboardStore for tests.
type memEngagementStore struct {
	mu        sync.Mutex
	events    map[string]models.InteractionEvent
	streaks   map[string]models.StreakState
	updateErr error // returned by the next UpdateStreak, then cleared
	seenCalls int
}

func newMemEngagementStore() *memEngagementStore {
	return &memEngagementStore{
		events:  make(map[string]models.InteractionEvent),
		streaks: make(map[string]models.StreakState),
	}
}

func (s *memEngagementStore) RecordInteraction(_ context.Context, event models.InteractionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := event.DedupKey()
	if _, ok := s.events[key]; ok {
		return ErrConflict
	}
	s.events[key] = event
	return nil
}

func (s *memEngagementStore) SeenInteraction(_ context.Context, dedupKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seenCalls++
	_, ok := s.events[dedupKey]
	return ok, nil
}

func (s *memEngagementStore) DeleteInteraction(_ context.Context, dedupKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, dedupKey)
	return nil
}

func (s *memEngagementStore) FetchStreak(_ context.Context, userID string) (models.StreakState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.streaks[userID]; ok {
		return st, nil
	}
	return models.StreakState{UserID: userID}, nil
}

func (s *memEngagementStore) UpdateStreak(_ context.Context, state models.StreakState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		err := s.updateErr
		s.updateErr = nil
		return err
	}
	existing := s.streaks[state.UserID] // zero value has Version 0
	if existing.Version != state.Version {
		return ErrConflict
	}
	state.Version++
	s.streaks[state.UserID] = state
	return nil
}

func (s *memEngagementStore) FetchTopStreaks(_ context.Context, limit, offset int) ([]models.StreakState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]models.StreakState, 0, len(s.streaks))
	for _, st := range s.streaks {
		all = append(all, st)
	}
	sort.Slice(all, func(i, j int) bool {
		return CompareStreaks(all[i], all[j]) < 0
	})
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *memEngagementStore) putStreak(st models.StreakState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaks[st.UserID] = st
}

func (s *memEngagementStore) failNextUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

func (s *memEngagementStore) seenLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seenCalls
}

// memEmitter records emitted notifications.
type memEmitter struct {
	mu   sync.Mutex
	sent []Notification
	fail error
}

func (e *memEmitter) Emit(_ context.Context, n Notification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.sent = append(e.sent, n)
	return nil
}

func (e *memEmitter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent)
}

// memCache is an in-memory DuplicateCache.
type memCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemCache() *memCache {
	return &memCache{keys: make(map[string]bool)}
}

func (c *memCache) Seen(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[key], nil
}

func (c *memCache) Mark(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = true
	return nil
}
