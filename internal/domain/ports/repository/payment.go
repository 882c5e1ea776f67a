package repository

import (
	"context"
	"time"

	"mentorium-bot/internal/domain/model"
)

type PaymentRepository interface {
	// Save inserts a payment; a duplicate transaction_id surfaces as
	// domain.ErrDuplicateTransaction, never silently.
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.Payment, error)

	// UpdateStatusIfPending flips status only when the row is still pending
	// and reports whether a row changed.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus, externalRef *string, at *time.Time) (bool, error)

	// UpdateStatusIfSuccess is the refund path: success -> refunded only.
	UpdateStatusIfSuccess(ctx context.Context, tx Tx, id string, status model.PaymentStatus, at *time.Time) (bool, error)
}
