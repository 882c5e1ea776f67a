//go:build !integration

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/adapter"
	"mentorium-bot/internal/domain/ports/repository"
)

type billingFixture struct {
	parents  *mockParentRepo
	subs     *mockSubscriptionRepo
	payments *mockPaymentRepo
	bot      *mockBot
	billing  *BillingService
}

func newBillingFixture(t *testing.T, providers ...adapter.PaymentProvider) *billingFixture {
	t.Helper()
	parents := newMockParentRepo()
	subs := newMockSubscriptionRepo()
	payments := newMockPaymentRepo()
	bot := &mockBot{}
	tm := newMockTxManager()
	ledger := NewSubscriptionLedger(subs, payments, tm, false, newTestLogger())
	billing := NewBillingService(parents, payments, ledger, tm, providers, bot, "mentorium_bot", newTestLogger())
	return &billingFixture{parents: parents, subs: subs, payments: payments, bot: bot, billing: billing}
}

func (f *billingFixture) addParent(t *testing.T, telegramID int64) *model.Parent {
	t.Helper()
	p, err := model.NewParent("", telegramID, "parent")
	if err != nil {
		t.Fatalf("new parent: %v", err)
	}
	if err := f.parents.Save(context.Background(), nil, p); err != nil {
		t.Fatalf("save parent: %v", err)
	}
	return p
}

func TestBillingService_StartSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path returns a link and pending records", func(t *testing.T) {
		prov := &mockProvider{name: model.ProviderPayme, enabled: true}
		f := newBillingFixture(t, prov)
		f.addParent(t, 42)

		url, payment, err := f.billing.StartSubscription(ctx, 42, "monthly", model.ProviderPayme)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if url == "" {
			t.Error("expected a checkout url")
		}
		if payment.Status != model.PaymentStatusPending {
			t.Errorf("expected pending payment, got %s", payment.Status)
		}
		if payment.Amount != 99_000 {
			t.Errorf("expected monthly price, got %d", payment.Amount)
		}
		if payment.SubscriptionID == nil {
			t.Fatal("expected payment bound to a subscription")
		}
		sub, err := f.subs.FindByID(ctx, nil, *payment.SubscriptionID)
		if err != nil {
			t.Fatalf("subscription not persisted: %v", err)
		}
		if sub.Status != model.SubscriptionStatusPending {
			t.Errorf("expected pending subscription, got %s", sub.Status)
		}
		if !strings.HasPrefix(payment.TransactionID, "sub_"+sub.ID) {
			t.Errorf("unexpected transaction id %s", payment.TransactionID)
		}
	})

	t.Run("unknown tariff creates nothing", func(t *testing.T) {
		prov := &mockProvider{name: model.ProviderPayme, enabled: true}
		f := newBillingFixture(t, prov)
		f.addParent(t, 42)

		saved := false
		f.subs.SaveFunc = func(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
			saved = true
			return nil
		}

		_, _, err := f.billing.StartSubscription(ctx, 42, "weekly", model.ProviderPayme)
		if !errors.Is(err, domain.ErrUnknownTariff) {
			t.Fatalf("expected ErrUnknownTariff, got %v", err)
		}
		if saved {
			t.Error("expected no subscription to be written")
		}
	})

	t.Run("disabled provider is rejected before any write", func(t *testing.T) {
		prov := &mockProvider{name: model.ProviderClick, enabled: false}
		f := newBillingFixture(t, prov)
		f.addParent(t, 42)

		_, _, err := f.billing.StartSubscription(ctx, 42, "monthly", model.ProviderClick)
		if !errors.Is(err, domain.ErrProviderDisabled) {
			t.Errorf("expected ErrProviderDisabled, got %v", err)
		}
	})

	t.Run("unknown telegram user", func(t *testing.T) {
		prov := &mockProvider{name: model.ProviderPayme, enabled: true}
		f := newBillingFixture(t, prov)

		_, _, err := f.billing.StartSubscription(ctx, 99, "monthly", model.ProviderPayme)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("return url carries the payment id deep link", func(t *testing.T) {
		var gotReturn string
		prov := &mockProvider{name: model.ProviderPayme, enabled: true,
			linkFn: func(ctx context.Context, amount int64, orderID, returnURL string) (string, error) {
				gotReturn = returnURL
				return "https://pay.example/x", nil
			}}
		f := newBillingFixture(t, prov)
		f.addParent(t, 42)

		_, payment, err := f.billing.StartSubscription(ctx, 42, "monthly", model.ProviderPayme)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		want := "https://t.me/mentorium_bot?start=payment_" + payment.ID
		if gotReturn != want {
			t.Errorf("expected return url %s, got %s", want, gotReturn)
		}
	})
}

func TestBillingService_ActivatePayment(t *testing.T) {
	ctx := context.Background()

	start := func(t *testing.T) (*billingFixture, *model.Payment) {
		prov := &mockProvider{name: model.ProviderPayme, enabled: true}
		f := newBillingFixture(t, prov)
		f.addParent(t, 42)
		_, payment, err := f.billing.StartSubscription(ctx, 42, "monthly", model.ProviderPayme)
		if err != nil {
			t.Fatalf("start subscription: %v", err)
		}
		return f, payment
	}

	t.Run("marks payment success and activates the subscription", func(t *testing.T) {
		f, payment := start(t)

		if err := f.billing.ActivatePayment(ctx, payment.ID, "ext-1"); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		got, _ := f.payments.FindByID(ctx, nil, payment.ID)
		if got.Status != model.PaymentStatusSuccess {
			t.Errorf("expected success, got %s", got.Status)
		}
		if got.ExternalRef == nil || *got.ExternalRef != "ext-1" {
			t.Error("expected external ref recorded")
		}
		if got.PaidAt == nil {
			t.Error("expected paid_at set")
		}
		sub, _ := f.subs.FindByID(ctx, nil, *payment.SubscriptionID)
		if sub.Status != model.SubscriptionStatusActive {
			t.Errorf("expected active subscription, got %s", sub.Status)
		}
	})

	t.Run("repeat activation is a quiet no-op", func(t *testing.T) {
		f, payment := start(t)

		if err := f.billing.ActivatePayment(ctx, payment.ID, "ext-1"); err != nil {
			t.Fatalf("first activation: %v", err)
		}

		activations := 0
		f.subs.MarkActiveFunc = func(ctx context.Context, tx repository.Tx, id string) (bool, error) {
			activations++
			return true, nil
		}

		if err := f.billing.ActivatePayment(ctx, payment.ID, "ext-1"); err != nil {
			t.Fatalf("second activation: %v", err)
		}
		if activations != 0 {
			t.Errorf("expected no second subscription transition, got %d", activations)
		}
	})

	t.Run("unknown payment", func(t *testing.T) {
		f, _ := start(t)
		if err := f.billing.ActivatePayment(ctx, "nope", ""); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("activating a cancelled payment conflicts", func(t *testing.T) {
		f, payment := start(t)
		if err := f.billing.CancelPayment(ctx, payment.ID, false); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if err := f.billing.ActivatePayment(ctx, payment.ID, ""); !errors.Is(err, domain.ErrTransactionConflict) {
			t.Errorf("expected ErrTransactionConflict, got %v", err)
		}
	})
}

func TestBillingService_CancelPayment(t *testing.T) {
	ctx := context.Background()

	start := func(t *testing.T) (*billingFixture, *model.Payment) {
		prov := &mockProvider{name: model.ProviderPayme, enabled: true}
		f := newBillingFixture(t, prov)
		f.addParent(t, 42)
		_, payment, err := f.billing.StartSubscription(ctx, 42, "monthly", model.ProviderPayme)
		if err != nil {
			t.Fatalf("start subscription: %v", err)
		}
		return f, payment
	}

	t.Run("cancel before settlement", func(t *testing.T) {
		f, payment := start(t)
		if err := f.billing.CancelPayment(ctx, payment.ID, false); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		got, _ := f.payments.FindByID(ctx, nil, payment.ID)
		if got.Status != model.PaymentStatusCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}
	})

	t.Run("refund after settlement", func(t *testing.T) {
		f, payment := start(t)
		if err := f.billing.ActivatePayment(ctx, payment.ID, "ext"); err != nil {
			t.Fatalf("activate: %v", err)
		}
		if err := f.billing.CancelPayment(ctx, payment.ID, true); err != nil {
			t.Fatalf("refund: %v", err)
		}
		got, _ := f.payments.FindByID(ctx, nil, payment.ID)
		if got.Status != model.PaymentStatusRefunded {
			t.Errorf("expected refunded, got %s", got.Status)
		}
	})

	t.Run("refunding a pending payment conflicts", func(t *testing.T) {
		f, payment := start(t)
		if err := f.billing.CancelPayment(ctx, payment.ID, true); !errors.Is(err, domain.ErrTransactionConflict) {
			t.Errorf("expected ErrTransactionConflict, got %v", err)
		}
	})
}

func TestBillingService_CheckAccess(t *testing.T) {
	ctx := context.Background()
	tariff, _ := model.TariffByCode("monthly")

	t.Run("no subscription means inactive, not an error", func(t *testing.T) {
		f := newBillingFixture(t)
		f.addParent(t, 42)

		st, err := f.billing.CheckAccess(ctx, 42)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if st.Active {
			t.Error("expected inactive")
		}
	})

	t.Run("active subscription reports days left", func(t *testing.T) {
		f := newBillingFixture(t)
		parent := f.addParent(t, 42)

		sub, _ := model.NewSubscription("", parent.ID, tariff, true, time.Now())
		sub.Status = model.SubscriptionStatusActive
		f.subs.Save(ctx, nil, sub)

		st, err := f.billing.CheckAccess(ctx, 42)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !st.Active {
			t.Fatal("expected active")
		}
		if st.DaysLeft < 29 || st.DaysLeft > 30 {
			t.Errorf("expected ~30 days left, got %d", st.DaysLeft)
		}
		if st.Tariff != "monthly" {
			t.Errorf("expected monthly, got %s", st.Tariff)
		}
		if !st.AutoRenew {
			t.Error("expected auto renew reported")
		}
	})

	t.Run("unknown parent propagates", func(t *testing.T) {
		f := newBillingFixture(t)
		if _, err := f.billing.CheckAccess(ctx, 7); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestBillingService_InGracePeriod(t *testing.T) {
	ctx := context.Background()
	tariff, _ := model.TariffByCode("monthly")

	setup := func(t *testing.T, expiredAgo time.Duration) *billingFixture {
		f := newBillingFixture(t)
		parent := f.addParent(t, 42)
		sub, _ := model.NewSubscription("", parent.ID, tariff, false, time.Now().Add(-expiredAgo-30*24*time.Hour))
		sub.Status = model.SubscriptionStatusExpired
		sub.ExpiresAt = time.Now().Add(-expiredAgo)
		f.subs.Save(ctx, nil, sub)
		return f
	}

	t.Run("two days after expiry", func(t *testing.T) {
		f := setup(t, 2*24*time.Hour)
		ok, err := f.billing.InGracePeriod(ctx, 42)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !ok {
			t.Error("expected grace access")
		}
	})

	t.Run("four days after expiry", func(t *testing.T) {
		f := setup(t, 4*24*time.Hour)
		ok, err := f.billing.InGracePeriod(ctx, 42)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if ok {
			t.Error("expected grace elapsed")
		}
	})

	t.Run("no subscription at all", func(t *testing.T) {
		f := newBillingFixture(t)
		f.addParent(t, 42)
		ok, err := f.billing.InGracePeriod(ctx, 42)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if ok {
			t.Error("expected no grace without history")
		}
	})
}

func TestBillingService_NotifyExpiring(t *testing.T) {
	ctx := context.Background()
	tariff, _ := model.TariffByCode("monthly")

	t.Run("sends one message per expiring subscription", func(t *testing.T) {
		f := newBillingFixture(t)
		parent := f.addParent(t, 42)

		sub, _ := model.NewSubscription("", parent.ID, tariff, false, time.Now().Add(-28*24*time.Hour))
		sub.Status = model.SubscriptionStatusActive
		sub.ExpiresAt = time.Now().Add(2 * 24 * time.Hour)
		f.subs.Save(ctx, nil, sub)

		sent, err := f.billing.NotifyExpiring(ctx, 3)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if sent != 1 {
			t.Fatalf("expected 1 notification, got %d", sent)
		}
		if len(f.bot.chats) != 1 || f.bot.chats[0] != 42 {
			t.Errorf("expected message to chat 42, got %v", f.bot.chats)
		}
	})

	t.Run("nothing expiring", func(t *testing.T) {
		f := newBillingFixture(t)
		f.addParent(t, 42)

		sent, err := f.billing.NotifyExpiring(ctx, 3)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if sent != 0 {
			t.Errorf("expected 0 notifications, got %d", sent)
		}
	})
}

func TestBillingService_AvailableProviders(t *testing.T) {
	f := newBillingFixture(t,
		&mockProvider{name: model.ProviderPayme, enabled: true},
		&mockProvider{name: model.ProviderClick, enabled: false},
		&mockProvider{name: model.ProviderTelegramStars, enabled: true},
	)

	got := f.billing.AvailableProviders()
	if len(got) != 2 {
		t.Fatalf("expected 2 providers, got %v", got)
	}
	if got[0] != model.ProviderPayme || got[1] != model.ProviderTelegramStars {
		t.Errorf("unexpected provider list %v", got)
	}
}
