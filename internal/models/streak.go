package models

import "time"

// StreakState is the per-user engagement aggregate. CurrentStreak is the
// length of the contiguous run of calendar dates with at least one
// completion, ending at LastCompletionDate. Invariant:
// CurrentStreak <= LongestStreak.
type StreakState struct {
	UserID           string     `json:"user_id"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	TotalCompletions int        `json:"total_completions"`
	TotalSkips       int        `json:"total_skips"`
	TotalSnoozes     int        `json:"total_snoozes"`
	// Date granularity, always midnight; advances only forward (late
	// out-of-order completions never rewind it).
	LastCompletionDate *time.Time `json:"last_completion_date"`
	Version            int64      `json:"version"`
}

// LeaderboardRow is one ranked entry of a leaderboard snapshot.
type LeaderboardRow struct {
	UserID           string `json:"user_id"`
	CurrentStreak    int    `json:"current_streak"`
	LongestStreak    int    `json:"longest_streak"`
	TotalCompletions int    `json:"total_completions"`
	Rank             int    `json:"rank"`
}

// LeaderboardSnapshot is derived on demand and never persisted.
type LeaderboardSnapshot struct {
	Rows       []LeaderboardRow `json:"rows"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
	ComputedAt time.Time        `json:"computed_at"`
}
