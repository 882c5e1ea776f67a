//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"mentorium-bot/internal/domain"
)

func TestNewSubscription(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tariff, err := TariffByCode("monthly")
	if err != nil {
		t.Fatalf("tariff lookup: %v", err)
	}

	t.Run("should start pending with the tariff period", func(t *testing.T) {
		sub, err := NewSubscription("", "parent-1", tariff, false, now)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if sub.Status != SubscriptionStatusPending {
			t.Errorf("expected pending, got %s", sub.Status)
		}
		if sub.ID == "" {
			t.Error("expected a generated id")
		}
		want := now.Add(30 * 24 * time.Hour)
		if !sub.ExpiresAt.Equal(want) {
			t.Errorf("expected expiry %v, got %v", want, sub.ExpiresAt)
		}
		if sub.Amount != tariff.PriceUZS {
			t.Errorf("expected amount %d, got %d", tariff.PriceUZS, sub.Amount)
		}
	})

	t.Run("should reject missing parent", func(t *testing.T) {
		if _, err := NewSubscription("", "", tariff, false, now); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSubscription_Grace(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{Status: SubscriptionStatusActive, ExpiresAt: now}

	t.Run("accessible strictly before expiry", func(t *testing.T) {
		if !sub.IsAccessible(now.Add(-time.Minute)) {
			t.Error("expected access before expiry")
		}
		if sub.IsAccessible(now) {
			t.Error("expected no access at the expiry instant")
		}
	})

	t.Run("two days past expiry is within grace", func(t *testing.T) {
		at := now.Add(2 * 24 * time.Hour)
		if !sub.InGrace(at) {
			t.Error("expected in grace")
		}
		if sub.PastGrace(at) {
			t.Error("expected not past grace")
		}
	})

	t.Run("four days past expiry is past grace", func(t *testing.T) {
		at := now.Add(4 * 24 * time.Hour)
		if sub.InGrace(at) {
			t.Error("expected out of grace")
		}
		if !sub.PastGrace(at) {
			t.Error("expected past grace")
		}
	})

	t.Run("grace boundary is inclusive", func(t *testing.T) {
		at := now.Add(GracePeriod)
		if !sub.InGrace(at) {
			t.Error("expected the exact boundary to still be in grace")
		}
		if sub.PastGrace(at) {
			t.Error("expected the exact boundary to not be past grace")
		}
	})

	t.Run("not in grace before expiry", func(t *testing.T) {
		if sub.InGrace(now.Add(-time.Hour)) {
			t.Error("expected not in grace while still active")
		}
	})
}

func TestSubscription_DaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{ExpiresAt: now.Add(30 * 24 * time.Hour)}

	if got := sub.DaysLeft(now); got != 30 {
		t.Errorf("expected 30 days, got %d", got)
	}
	if got := sub.DaysLeft(now.Add(12 * time.Hour)); got != 29 {
		t.Errorf("expected 29 days, got %d", got)
	}
	if got := sub.DaysLeft(now.Add(100 * 24 * time.Hour)); got != 0 {
		t.Errorf("expected 0 days after expiry, got %d", got)
	}
}

func TestTariffByCode(t *testing.T) {
	t.Run("known codes resolve", func(t *testing.T) {
		for _, code := range []string{"monthly", "quarterly", "annual"} {
			tf, err := TariffByCode(code)
			if err != nil {
				t.Fatalf("%s: %v", code, err)
			}
			if tf.Code != code {
				t.Errorf("expected %s, got %s", code, tf.Code)
			}
		}
	})

	t.Run("unknown code is a hard error", func(t *testing.T) {
		if _, err := TariffByCode("weekly"); !errors.Is(err, domain.ErrUnknownTariff) {
			t.Errorf("expected ErrUnknownTariff, got %v", err)
		}
	})
}
