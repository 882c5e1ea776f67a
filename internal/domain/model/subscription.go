package model

import (
	"time"

	"github.com/google/uuid"

	"mentorium-bot/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// GracePeriod is how long access is still granted after expires_at.
const GracePeriod = 3 * 24 * time.Hour

// Subscription is one purchase attempt/period for a parent.
//
// Status moves pending -> active -> {expired, cancelled}; expired and
// cancelled are terminal. Activation happens only after a payment completes.
type Subscription struct {
	ID          string // UUID
	ParentID    string // UUID
	Status      SubscriptionStatus
	TariffCode  string
	Amount      int64 // whole UZS
	StartsAt    time.Time
	ExpiresAt   time.Time
	AutoRenew   bool
	CancelledAt *time.Time
	CreatedAt   time.Time
}

// NewSubscription creates a pending subscription for a tariff period starting now.
func NewSubscription(id, parentID string, tariff *Tariff, autoRenew bool, now time.Time) (*Subscription, error) {
	if parentID == "" || tariff == nil {
		return nil, domain.ErrInvalidArgument
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Subscription{
		ID:         id,
		ParentID:   parentID,
		Status:     SubscriptionStatusPending,
		TariffCode: tariff.Code,
		Amount:     tariff.PriceUZS,
		StartsAt:   now,
		ExpiresAt:  now.Add(time.Duration(tariff.DurationDays) * 24 * time.Hour),
		AutoRenew:  autoRenew,
		CreatedAt:  now,
	}, nil
}

// IsAccessible reports whether the subscription currently grants access.
// Status alone is insufficient: expiry is swept asynchronously.
func (s *Subscription) IsAccessible(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.ExpiresAt.After(now)
}

// InGrace reports whether expires_at has passed by no more than GracePeriod.
func (s *Subscription) InGrace(now time.Time) bool {
	if s.ExpiresAt.After(now) {
		return false
	}
	return now.Sub(s.ExpiresAt) <= GracePeriod
}

// PastGrace reports whether the grace window has fully elapsed.
func (s *Subscription) PastGrace(now time.Time) bool {
	return now.Sub(s.ExpiresAt) > GracePeriod
}

// DaysLeft returns remaining full days of access, never negative.
func (s *Subscription) DaysLeft(now time.Time) int {
	d := int(s.ExpiresAt.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
