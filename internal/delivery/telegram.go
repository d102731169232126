package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/habitpulse/habitpulse/internal/clock"
	"github.com/habitpulse/habitpulse/internal/engine"
	"github.com/habitpulse/habitpulse/internal/models"
)

// TelegramEmitter delivers dispatch intents as Telegram messages with
// done/skip/snooze buttons. User IDs are Telegram chat IDs.
type TelegramEmitter struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

func NewTelegramEmitter(api *tgbotapi.BotAPI, logger *zap.Logger) *TelegramEmitter {
	return &TelegramEmitter{api: api, logger: logger}
}

func (e *TelegramEmitter) Emit(_ context.Context, n engine.Notification) error {
	chatID, err := strconv.ParseInt(n.UserID, 10, 64)
	if err != nil {
		return fmt.Errorf("user id %q is not a telegram chat id: %w", n.UserID, err)
	}

	msg := tgbotapi.NewMessage(chatID, "⏰ "+n.Title)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Done", "remind_done:"+n.ReminderID),
			tgbotapi.NewInlineKeyboardButtonData("⏭ Skip", "remind_skip:"+n.ReminderID),
			tgbotapi.NewInlineKeyboardButtonData("💤 Snooze", "remind_snooze:"+n.ReminderID),
		),
	)

	if _, err := e.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

// TelegramListener translates button callbacks into interaction events
// for the aggregator and serves leaderboard commands. The callback query
// ID doubles as the event's local ID, so Telegram's own retries dedup
// naturally.
type TelegramListener struct {
	api         *tgbotapi.BotAPI
	aggregator  *engine.Aggregator
	leaderboard *engine.LeaderboardBuilder
	clk         clock.Clock
	logger      *zap.Logger
}

func NewTelegramListener(api *tgbotapi.BotAPI, aggregator *engine.Aggregator, leaderboard *engine.LeaderboardBuilder, clk clock.Clock, logger *zap.Logger) *TelegramListener {
	return &TelegramListener{
		api:         api,
		aggregator:  aggregator,
		leaderboard: leaderboard,
		clk:         clk,
		logger:      logger,
	}
}

func (l *TelegramListener) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := l.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				l.handleCallback(ctx, update.CallbackQuery)
			}
			if update.Message != nil && update.Message.IsCommand() {
				l.handleCommand(ctx, update.Message)
			}
		}
	}
}

var callbackActions = map[string]models.Action{
	"remind_done":   models.ActionCompleted,
	"remind_skip":   models.ActionSkipped,
	"remind_snooze": models.ActionSnoozed,
}

func (l *TelegramListener) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// Answer immediately to clear the client's loading state.
	answer := tgbotapi.NewCallback(callback.ID, "")
	if _, err := l.api.Request(answer); err != nil {
		l.logger.Warn("failed to answer callback", zap.Error(err))
	}

	parts := strings.SplitN(callback.Data, ":", 2)
	if len(parts) != 2 {
		return
	}
	action, ok := callbackActions[parts[0]]
	if !ok {
		return
	}

	event := models.InteractionEvent{
		ReminderID: parts[1],
		UserID:     strconv.FormatInt(callback.From.ID, 10),
		Action:     action,
		OccurredAt: l.clk.Now(),
		LocalID:    "tg:" + callback.ID,
	}

	state, err := l.aggregator.Apply(ctx, event)
	if err != nil {
		l.logger.Error("failed to apply interaction",
			zap.String("reminder_id", event.ReminderID),
			zap.String("action", string(action)),
			zap.Error(err))
		return
	}

	if action == models.ActionCompleted {
		l.logger.Info("completion recorded",
			zap.String("user_id", event.UserID),
			zap.Int("current_streak", state.CurrentStreak))
	}
}

func (l *TelegramListener) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if l.leaderboard == nil {
		return
	}
	switch msg.Command() {
	case "leaderboard":
		l.replyLeaderboard(ctx, msg.Chat.ID)
	case "rank":
		l.replyRank(ctx, msg.Chat.ID, strconv.FormatInt(msg.From.ID, 10))
	}
}

func (l *TelegramListener) replyLeaderboard(ctx context.Context, chatID int64) {
	snapshot, err := l.leaderboard.Build(ctx, 10, 0)
	if err != nil {
		l.logger.Error("failed to build leaderboard", zap.Error(err))
		return
	}

	var b strings.Builder
	b.WriteString("🏆 Streak leaderboard\n")
	for _, row := range snapshot.Rows {
		fmt.Fprintf(&b, "%d. %s: %d day streak (%d total)\n",
			row.Rank, row.UserID, row.CurrentStreak, row.TotalCompletions)
	}
	if len(snapshot.Rows) == 0 {
		b.WriteString("No streaks yet.")
	}

	if _, err := l.api.Send(tgbotapi.NewMessage(chatID, b.String())); err != nil {
		l.logger.Warn("failed to send leaderboard", zap.Error(err))
	}
}

func (l *TelegramListener) replyRank(ctx context.Context, chatID int64, userID string) {
	rank, err := l.leaderboard.RankOf(ctx, userID)
	text := fmt.Sprintf("You are ranked #%d.", rank)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			text = "No streak recorded yet. Complete a reminder to get on the board!"
		} else {
			l.logger.Error("failed to look up rank", zap.String("user_id", userID), zap.Error(err))
			return
		}
	}

	if _, err := l.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		l.logger.Warn("failed to send rank", zap.Error(err))
	}
}
