package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/habitpulse/habitpulse/internal/database"
	"github.com/habitpulse/habitpulse/internal/engine"
)

// PushSubscription holds one user's web push endpoint and keys.
type PushSubscription struct {
	UserID   string
	Endpoint string
	Auth     string
	P256dh   string
}

// PushSubscriptionRepository looks up web push subscriptions for the
// webpush delivery emitter.
type PushSubscriptionRepository struct {
	db *database.DB
}

func NewPushSubscriptionRepository(db *database.DB) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{db: db}
}

func (r *PushSubscriptionRepository) Subscription(ctx context.Context, userID string) (PushSubscription, error) {
	var sub PushSubscription
	err := r.db.Pool.QueryRow(ctx,
		`SELECT user_id, endpoint, auth, p256dh FROM push_subscriptions WHERE user_id = $1`, userID,
	).Scan(&sub.UserID, &sub.Endpoint, &sub.Auth, &sub.P256dh)
	if errors.Is(err, pgx.ErrNoRows) {
		return PushSubscription{}, engine.ErrNotFound
	}
	return sub, err
}

// Delete drops a subscription, used when the push service reports the
// endpoint gone (HTTP 404/410).
func (r *PushSubscriptionRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1`, userID)
	return err
}
