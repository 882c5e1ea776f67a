package repository

import (
	"context"
	"time"

	"mentorium-bot/internal/domain/model"
)

// SubscriptionRepository is the port for the subscription side of the ledger.
//
// The Mark* methods are conditional updates: they only fire when the row is in
// the expected prior status and report whether a row actually changed, which
// is what makes webhook retries safe.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)

	// FindActiveByParent returns the newest subscription with status=active
	// and expires_at in the future, or ErrNotFound.
	FindActiveByParent(ctx context.Context, tx Tx, parentID string, now time.Time) (*model.Subscription, error)

	// FindLatestByParent returns the newest non-pending subscription
	// regardless of expiry, used for grace-period checks.
	FindLatestByParent(ctx context.Context, tx Tx, parentID string) (*model.Subscription, error)

	// FindDueExpiry lists active subscriptions whose expires_at is at or
	// before the cutoff.
	FindDueExpiry(ctx context.Context, tx Tx, cutoff time.Time) ([]*model.Subscription, error)

	// FindExpiring lists active subscriptions expiring within the window,
	// for renewal warnings.
	FindExpiring(ctx context.Context, tx Tx, withinDays int) ([]*model.Subscription, error)

	MarkActive(ctx context.Context, tx Tx, id string) (bool, error)
	MarkExpired(ctx context.Context, tx Tx, id string) (bool, error)
	MarkCancelled(ctx context.Context, tx Tx, id string, at time.Time) (bool, error)
}
