package engine

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/habitpulse/habitpulse/internal/clock"
	"github.com/habitpulse/habitpulse/internal/models"
)

// CompareStreaks is the total leaderboard order: currentStreak
// descending, then totalCompletions descending, then userID ascending.
// Exported so store implementations can order server-side with the
// identical comparator. Returns <0 when a ranks before b.
func CompareStreaks(a, b models.StreakState) int {
	if a.CurrentStreak != b.CurrentStreak {
		return b.CurrentStreak - a.CurrentStreak
	}
	if a.TotalCompletions != b.TotalCompletions {
		return b.TotalCompletions - a.TotalCompletions
	}
	return strings.Compare(a.UserID, b.UserID)
}

// LeaderboardBuilder produces ranked, paginated views over current
// streak state. Snapshots are derived on demand, never persisted.
type LeaderboardBuilder struct {
	store   LeaderboardStore
	clk     clock.Clock
	maxPage int
	logger  *zap.Logger
}

func NewLeaderboardBuilder(store LeaderboardStore, clk clock.Clock, maxPage int, logger *zap.Logger) *LeaderboardBuilder {
	if maxPage <= 0 {
		maxPage = 100
	}
	return &LeaderboardBuilder{
		store:   store,
		clk:     clk,
		maxPage: maxPage,
		logger:  logger,
	}
}

// Build returns one page of the leaderboard. limit is clamped to the
// configured maximum (non-positive values get the maximum); a negative
// offset is treated as zero. Repeated calls over unchanged data yield
// identical ordering.
func (b *LeaderboardBuilder) Build(ctx context.Context, limit, offset int) (models.LeaderboardSnapshot, error) {
	if limit <= 0 || limit > b.maxPage {
		limit = b.maxPage
	}
	if offset < 0 {
		offset = 0
	}

	states, err := b.store.FetchTopStreaks(ctx, limit, offset)
	if err != nil {
		return models.LeaderboardSnapshot{}, Transient(err)
	}

	// The store contract already orders by CompareStreaks; a stable
	// re-sort keeps the snapshot deterministic even against a sloppy
	// implementation.
	sort.SliceStable(states, func(i, j int) bool {
		return CompareStreaks(states[i], states[j]) < 0
	})

	snapshot := models.LeaderboardSnapshot{
		Rows:       make([]models.LeaderboardRow, 0, len(states)),
		Limit:      limit,
		Offset:     offset,
		ComputedAt: b.clk.Now(),
	}
	for i, st := range states {
		snapshot.Rows = append(snapshot.Rows, models.LeaderboardRow{
			UserID:           st.UserID,
			CurrentStreak:    st.CurrentStreak,
			LongestStreak:    st.LongestStreak,
			TotalCompletions: st.TotalCompletions,
			Rank:             offset + i + 1,
		})
	}
	return snapshot, nil
}

// RankOf returns the 1-based rank of userID under the same ordering as
// Build: 1 + the count of users strictly ordered before them. Returns
// ErrNotFound for unknown users.
func (b *LeaderboardBuilder) RankOf(ctx context.Context, userID string) (int, error) {
	offset := 0
	for {
		states, err := b.store.FetchTopStreaks(ctx, b.maxPage, offset)
		if err != nil {
			return 0, Transient(err)
		}
		if len(states) == 0 {
			return 0, ErrNotFound
		}
		for i, st := range states {
			if st.UserID == userID {
				return offset + i + 1, nil
			}
		}
		offset += len(states)
	}
}
