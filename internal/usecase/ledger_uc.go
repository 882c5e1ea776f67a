package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/repository"
)

// SubscriptionLedger owns the payment and subscription records. Every mutation
// runs inside a storage transaction; activation and expiry use conditional
// updates so concurrent webhook retries settle on exactly-once outcomes.
type SubscriptionLedger struct {
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	tm       repository.TransactionManager

	// rejectOverlap makes CreateSubscription fail while another active
	// subscription exists. Off by default: a pending row is only an intent.
	rejectOverlap bool

	log *zerolog.Logger
}

func NewSubscriptionLedger(
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	tm repository.TransactionManager,
	rejectOverlap bool,
	logger *zerolog.Logger,
) *SubscriptionLedger {
	l := logger.With().Str("component", "SubscriptionLedger").Logger()
	return &SubscriptionLedger{
		subs:          subs,
		payments:      payments,
		tm:            tm,
		rejectOverlap: rejectOverlap,
		log:           &l,
	}
}

// CreateSubscription records a pending subscription for the tariff period.
func (l *SubscriptionLedger) CreateSubscription(ctx context.Context, parentID string, tariff *model.Tariff, autoRenew bool) (*model.Subscription, error) {
	sub, err := model.NewSubscription("", parentID, tariff, autoRenew, time.Now())
	if err != nil {
		return nil, err
	}

	err = l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if l.rejectOverlap {
			if _, err := l.subs.FindActiveByParent(ctx, tx, parentID, time.Now()); err == nil {
				return domain.ErrActiveSubscriptionOpen
			} else if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}
		return l.subs.Save(ctx, tx, sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CreatePayment records a pending payment attempt. A duplicate transaction id
// is a hard error surfaced to the caller.
func (l *SubscriptionLedger) CreatePayment(ctx context.Context, parentID string, subscriptionID *string, id, transactionID string, provider model.PaymentProvider, amount int64, currency string) (*model.Payment, error) {
	p, err := model.NewPayment(id, parentID, transactionID, subscriptionID, provider, amount, currency, time.Now())
	if err != nil {
		return nil, err
	}
	if err := l.payments.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Activate flips a subscription to active. Safe to repeat: an already active
// subscription is a no-op success, never a double extension of expires_at.
func (l *SubscriptionLedger) Activate(ctx context.Context, tx repository.Tx, subscriptionID string) error {
	changed, err := l.subs.MarkActive(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}
	if changed {
		return nil
	}
	sub, err := l.subs.FindByID(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == model.SubscriptionStatusActive {
		return nil
	}
	return fmt.Errorf("activate subscription %s in status %s: %w", subscriptionID, sub.Status, domain.ErrOperationFailed)
}

// Cancel clears auto-renew and stamps cancelled_at; access is retained until
// expires_at on the read side. Fails when no active subscription exists.
func (l *SubscriptionLedger) Cancel(ctx context.Context, parentID string) (*model.Subscription, error) {
	var cancelled *model.Subscription
	err := l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := l.subs.FindActiveByParent(ctx, tx, parentID, time.Now())
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNoActiveSubscription
			}
			return err
		}
		at := time.Now()
		if _, err := l.subs.MarkCancelled(ctx, tx, sub.ID, at); err != nil {
			return err
		}
		sub.Status = model.SubscriptionStatusCancelled
		sub.AutoRenew = false
		sub.CancelledAt = &at
		cancelled = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ExpireDue flips active subscriptions past the grace window to expired.
// Each decision is its own transaction, so the sweep can be cancelled between
// owners without partial state.
func (l *SubscriptionLedger) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := l.subs.FindDueExpiry(ctx, repository.NoTX, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for _, sub := range due {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if !sub.PastGrace(now) {
			continue // inside the grace window, access still granted
		}
		err := l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			changed, err := l.subs.MarkExpired(ctx, tx, sub.ID)
			if err != nil {
				return err
			}
			if changed {
				count++
			}
			return nil
		})
		if err != nil {
			l.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("expire failed")
			return count, err
		}
	}
	return count, nil
}

// GetActive is the single source of truth for "does this parent have access".
func (l *SubscriptionLedger) GetActive(ctx context.Context, parentID string) (*model.Subscription, error) {
	return l.subs.FindActiveByParent(ctx, repository.NoTX, parentID, time.Now())
}
