package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/adapter"
	"mentorium-bot/internal/domain/ports/repository"
	"mentorium-bot/internal/infra/metrics"
)

// AccessStatus is the answer to "does this parent currently have access".
type AccessStatus struct {
	Active    bool
	ExpiresAt *time.Time
	DaysLeft  int
	Tariff    string
	AutoRenew bool
}

// BillingService composes tariff selection, provider choice, ledger mutation
// and link generation. It is the entry point for bot-initiated subscription
// creation and the scheduled sweep, and the single activation path shared by
// every provider callback.
type BillingService struct {
	parents   repository.ParentRepository
	payments  repository.PaymentRepository
	ledger    *SubscriptionLedger
	tm        repository.TransactionManager
	providers []adapter.PaymentProvider
	bot       adapter.TelegramBot

	botUsername string
	log         *zerolog.Logger
}

func NewBillingService(
	parents repository.ParentRepository,
	payments repository.PaymentRepository,
	ledger *SubscriptionLedger,
	tm repository.TransactionManager,
	providers []adapter.PaymentProvider,
	bot adapter.TelegramBot,
	botUsername string,
	logger *zerolog.Logger,
) *BillingService {
	l := logger.With().Str("component", "BillingService").Logger()
	return &BillingService{
		parents:     parents,
		payments:    payments,
		ledger:      ledger,
		tm:          tm,
		providers:   providers,
		bot:         bot,
		botUsername: botUsername,
		log:         &l,
	}
}

// SetBot attaches the Telegram adapter after construction. Billing and the
// bot reference each other, so one side has to be wired late.
func (b *BillingService) SetBot(bot adapter.TelegramBot) { b.bot = bot }

// AvailableProviders lists providers usable right now. PayMe and Click appear
// only when their credentials are configured; the in-chat Stars flow always is.
func (b *BillingService) AvailableProviders() []model.PaymentProvider {
	out := make([]model.PaymentProvider, 0, len(b.providers))
	for _, p := range b.providers {
		if p.Enabled() {
			out = append(out, p.Name())
		}
	}
	return out
}

func (b *BillingService) provider(name model.PaymentProvider) (adapter.PaymentProvider, error) {
	for _, p := range b.providers {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("provider %q: %w", name, domain.ErrInvalidArgument)
}

// StartSubscription creates a pending subscription plus its pending payment
// and asks the chosen provider for a checkout link. An empty link with nil
// error means the caller should run the native invoice flow keyed off the
// returned payment.
func (b *BillingService) StartSubscription(ctx context.Context, telegramID int64, tariffCode string, providerName model.PaymentProvider) (payURL string, payment *model.Payment, err error) {
	tariff, err := model.TariffByCode(tariffCode)
	if err != nil {
		return "", nil, err
	}
	prov, err := b.provider(providerName)
	if err != nil {
		return "", nil, err
	}
	if !prov.Enabled() {
		return "", nil, domain.ErrProviderDisabled
	}

	parent, err := b.parents.FindByTelegramID(ctx, repository.NoTX, telegramID)
	if err != nil {
		return "", nil, fmt.Errorf("resolve parent %d: %w", telegramID, err)
	}

	sub, err := b.ledger.CreateSubscription(ctx, parent.ID, tariff, false)
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	paymentID := ulid.Make().String()
	transactionID := fmt.Sprintf("sub_%s_%d", sub.ID, now.Unix())
	payment, err = b.ledger.CreatePayment(ctx, parent.ID, &sub.ID, paymentID, transactionID, providerName, tariff.PriceUZS, tariff.Currency)
	if err != nil {
		return "", nil, err
	}
	metrics.IncPayment(string(providerName), string(model.PaymentStatusPending))

	returnURL := fmt.Sprintf("https://t.me/%s?start=payment_%s", b.botUsername, payment.ID)
	payURL, err = prov.CreatePaymentLink(ctx, payment.Amount, payment.ID, returnURL)
	if err != nil {
		return "", nil, err
	}

	b.log.Info().
		Str("subscription_id", sub.ID).
		Str("payment_id", payment.ID).
		Str("tariff", tariffCode).
		Str("provider", string(providerName)).
		Msg("subscription started")
	return payURL, payment, nil
}

// ActivatePayment marks a payment success and activates its subscription,
// inside one transaction. Repeated and concurrent calls for the same payment
// settle on exactly-once activation; later calls observe the done state and
// return nil.
func (b *BillingService) ActivatePayment(ctx context.Context, paymentID string, externalRef string) error {
	return b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := b.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.Status == model.PaymentStatusSuccess {
			return nil // retry of a finished callback
		}

		now := time.Now()
		var ref *string
		if externalRef != "" {
			ref = &externalRef
		}
		changed, err := b.payments.UpdateStatusIfPending(ctx, tx, p.ID, model.PaymentStatusSuccess, ref, &now)
		if err != nil {
			return err
		}
		if !changed {
			return fmt.Errorf("payment %s in status %s: %w", p.ID, p.Status, domain.ErrTransactionConflict)
		}

		if p.SubscriptionID == nil {
			b.log.Error().Str("payment_id", p.ID).Msg("payment has no subscription")
			return fmt.Errorf("payment %s has no subscription: %w", p.ID, domain.ErrOperationFailed)
		}
		if err := b.ledger.Activate(ctx, tx, *p.SubscriptionID); err != nil {
			return err
		}

		metrics.IncPayment(string(p.Provider), string(model.PaymentStatusSuccess))
		metrics.AddPaymentRevenue(p.Currency, p.Amount)
		metrics.IncSubscriptionActivated()
		b.log.Info().Str("payment_id", p.ID).Str("subscription_id", *p.SubscriptionID).Msg("payment activated")
		return nil
	})
}

// PaymentByID looks a payment up without locking; the pre-checkout answer
// path uses it to validate an invoice payload.
func (b *BillingService) PaymentByID(ctx context.Context, paymentID string) (*model.Payment, error) {
	return b.payments.FindByID(ctx, repository.NoTX, paymentID)
}

// CancelPayment marks a pending payment cancelled, or refunds a successful
// one when refund is set. Already-settled rows are a no-op.
func (b *BillingService) CancelPayment(ctx context.Context, paymentID string, refund bool) error {
	return b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := b.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		now := time.Now()
		if refund {
			if p.Status == model.PaymentStatusRefunded {
				return nil
			}
			changed, err := b.payments.UpdateStatusIfSuccess(ctx, tx, p.ID, model.PaymentStatusRefunded, &now)
			if err != nil {
				return err
			}
			if !changed {
				return fmt.Errorf("refund payment %s in status %s: %w", p.ID, p.Status, domain.ErrTransactionConflict)
			}
			metrics.IncPayment(string(p.Provider), string(model.PaymentStatusRefunded))
			return nil
		}

		if p.Status == model.PaymentStatusCancelled {
			return nil
		}
		changed, err := b.payments.UpdateStatusIfPending(ctx, tx, p.ID, model.PaymentStatusCancelled, nil, &now)
		if err != nil {
			return err
		}
		if !changed {
			return fmt.Errorf("cancel payment %s in status %s: %w", p.ID, p.Status, domain.ErrTransactionConflict)
		}
		metrics.IncPayment(string(p.Provider), string(model.PaymentStatusCancelled))
		return nil
	})
}

// CheckAccess reports the parent's current entitlement.
func (b *BillingService) CheckAccess(ctx context.Context, telegramID int64) (*AccessStatus, error) {
	parent, err := b.parents.FindByTelegramID(ctx, repository.NoTX, telegramID)
	if err != nil {
		return nil, err
	}
	sub, err := b.ledger.GetActive(ctx, parent.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &AccessStatus{Active: false}, nil
		}
		return nil, err
	}
	return &AccessStatus{
		Active:    true,
		ExpiresAt: &sub.ExpiresAt,
		DaysLeft:  sub.DaysLeft(time.Now()),
		Tariff:    sub.TariffCode,
		AutoRenew: sub.AutoRenew,
	}, nil
}

// InGracePeriod is true only when the most recent subscription expired no
// more than the grace window ago. Access-control middleware uses it to keep
// the door open while showing a renewal warning.
func (b *BillingService) InGracePeriod(ctx context.Context, telegramID int64) (bool, error) {
	parent, err := b.parents.FindByTelegramID(ctx, repository.NoTX, telegramID)
	if err != nil {
		return false, err
	}
	sub, err := b.ledger.subs.FindLatestByParent(ctx, repository.NoTX, parent.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.InGrace(time.Now()), nil
}

// CancelSubscription cancels the parent's active subscription.
func (b *BillingService) CancelSubscription(ctx context.Context, telegramID int64) error {
	parent, err := b.parents.FindByTelegramID(ctx, repository.NoTX, telegramID)
	if err != nil {
		return err
	}
	sub, err := b.ledger.Cancel(ctx, parent.ID)
	if err != nil {
		return err
	}
	b.log.Info().Str("subscription_id", sub.ID).Msg("subscription cancelled")
	return nil
}

// RunDailySweep expires subscriptions past the grace window.
func (b *BillingService) RunDailySweep(ctx context.Context, now time.Time) (int, error) {
	n, err := b.ledger.ExpireDue(ctx, now)
	if n > 0 {
		metrics.AddSubscriptionsExpired(n)
	}
	return n, err
}

// NotifyExpiring sends a renewal warning for subscriptions expiring within the
// window. Returns the number of messages sent; the first send error aborts.
func (b *BillingService) NotifyExpiring(ctx context.Context, withinDays int) (int, error) {
	subs, err := b.ledger.subs.FindExpiring(ctx, repository.NoTX, withinDays)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	sent := 0
	for _, sub := range subs {
		parent, err := b.parents.FindByID(ctx, repository.NoTX, sub.ParentID)
		if err != nil {
			b.log.Warn().Err(err).Str("parent_id", sub.ParentID).Msg("expiring notice: parent lookup failed")
			continue
		}
		text := fmt.Sprintf("Ваша подписка истекает %s. Продлите её, чтобы не потерять доступ к отчётам.", sub.ExpiresAt.Format("02.01.2006"))
		if err := b.bot.SendMessage(ctx, parent.TelegramID, text); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
