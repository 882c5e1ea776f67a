package model

import (
	"time"

	"mentorium-bot/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // link created; awaiting gateway callback
	PaymentStatusSuccess   PaymentStatus = "success"   // gateway confirmed the charge
	PaymentStatusFailed    PaymentStatus = "failed"    // gateway reported failure
	PaymentStatusCancelled PaymentStatus = "cancelled" // cancelled before perform
	PaymentStatusRefunded  PaymentStatus = "refunded"  // cancelled after perform
)

type PaymentProvider string

const (
	ProviderPayme         PaymentProvider = "payme"
	ProviderClick         PaymentProvider = "click"
	ProviderTelegramStars PaymentProvider = "telegram_stars"
)

// Payment is one payment attempt, optionally bound to a subscription.
// TransactionID is globally unique; the webhook protocols reconcile against it.
type Payment struct {
	ID             string // ULID, doubles as the provider-facing order id
	ParentID       string // UUID
	SubscriptionID *string
	TransactionID  string
	Provider       PaymentProvider
	Amount         int64 // whole UZS
	Currency       string
	Status         PaymentStatus
	ExternalRef    *string // provider-side transaction reference
	CreatedAt      time.Time
	PaidAt         *time.Time
	FailedAt       *time.Time
}

// NewPayment creates a pending payment attempt.
func NewPayment(id, parentID, transactionID string, subscriptionID *string, provider PaymentProvider, amount int64, currency string, now time.Time) (*Payment, error) {
	if id == "" || parentID == "" || transactionID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if currency == "" {
		currency = "UZS"
	}
	return &Payment{
		ID:             id,
		ParentID:       parentID,
		SubscriptionID: subscriptionID,
		TransactionID:  transactionID,
		Provider:       provider,
		Amount:         amount,
		Currency:       currency,
		Status:         PaymentStatusPending,
		CreatedAt:      now,
	}, nil
}
