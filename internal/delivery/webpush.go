package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"github.com/habitpulse/habitpulse/internal/engine"
	"github.com/habitpulse/habitpulse/internal/repository"
)

// SubscriptionSource resolves a user's web push subscription and drops
// endpoints the push service reports gone.
type SubscriptionSource interface {
	Subscription(ctx context.Context, userID string) (repository.PushSubscription, error)
	Delete(ctx context.Context, userID string) error
}

type WebPushEmitter struct {
	subs       SubscriptionSource
	publicKey  string
	privateKey string
	subscriber string
	logger     *zap.Logger
}

func NewWebPushEmitter(subs SubscriptionSource, publicKey, privateKey, subscriber string, logger *zap.Logger) *WebPushEmitter {
	return &WebPushEmitter{
		subs:       subs,
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		logger:     logger,
	}
}

type pushPayload struct {
	Title      string `json:"title"`
	ReminderID string `json:"reminder_id"`
}

func (e *WebPushEmitter) Emit(ctx context.Context, n engine.Notification) error {
	sub, err := e.subs.Subscription(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			// User never registered for push; not a delivery failure.
			return nil
		}
		return fmt.Errorf("error finding push subscription: %w", err)
	}

	payload, err := json.Marshal(pushPayload{Title: n.Title, ReminderID: n.ReminderID})
	if err != nil {
		return err
	}

	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		Subscriber:      e.subscriber,
		VAPIDPublicKey:  e.publicKey,
		VAPIDPrivateKey: e.privateKey,
		TTL:             30,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		// Subscription expired; drop it so the next dispatch skips it.
		if derr := e.subs.Delete(ctx, n.UserID); derr != nil {
			e.logger.Warn("failed to delete stale push subscription",
				zap.String("user_id", n.UserID),
				zap.Error(derr))
		}
	}
	return nil
}
