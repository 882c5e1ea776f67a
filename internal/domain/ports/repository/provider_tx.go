package repository

import (
	"context"

	"mentorium-bot/internal/domain/model"
)

// PaymeTransactionRepository stores the PayMe-side transaction state machine.
type PaymeTransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.PaymeTransaction) error
	FindByPaymeID(ctx context.Context, tx Tx, paymeID string) (*model.PaymeTransaction, error)
	// FindOpenByPaymentID returns a non-terminal transaction bound to the
	// order, if any.
	FindOpenByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.PaymeTransaction, error)
	// UpdateStateIf transitions from -> to and sets the matching timestamp
	// column; reports whether a row changed.
	UpdateStateIf(ctx context.Context, tx Tx, paymeID string, from, to model.PaymeState, atMillis int64, reason *int) (bool, error)
}

// ClickTransactionRepository stores the Click prepare/complete handshake state.
type ClickTransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.ClickTransaction) error
	FindByClickTransID(ctx context.Context, tx Tx, clickTransID string) (*model.ClickTransaction, error)
	UpdatePhaseIf(ctx context.Context, tx Tx, clickTransID string, from, to model.ClickPhase, clickError int) (bool, error)
}
