// Package delivery implements the engine's Emitter capability over the
// transports the platform supports. The engine treats every emitter as
// fire-and-forget.
package delivery

import (
	"context"

	"go.uber.org/zap"

	"github.com/habitpulse/habitpulse/internal/engine"
)

// LogEmitter records dispatch intents in the log only. Used when no
// transport is configured and as the tail of a Multi chain in
// development.
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, n engine.Notification) error {
	e.logger.Info("dispatch intent",
		zap.String("user_id", n.UserID),
		zap.String("reminder_id", n.ReminderID),
		zap.String("title", n.Title))
	return nil
}

// Multi fans one intent out to several transports. Individual failures
// are logged by the emitters themselves; Multi reports the first one.
type Multi []engine.Emitter

func (m Multi) Emit(ctx context.Context, n engine.Notification) error {
	var first error
	for _, e := range m {
		if err := e.Emit(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
