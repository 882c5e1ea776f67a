package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, parent_id, subscription_id, transaction_id, provider, amount, currency, status, external_ref, created_at, paid_at, failed_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.ParentID, p.SubscriptionID, p.TransactionID, p.Provider, p.Amount, p.Currency, p.Status, p.ExternalRef, p.CreatedAt, p.PaidAt, p.FailedAt)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrDuplicateTransaction
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, id)
}

func (r *paymentRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, transactionID)
}

// UpdateStatusIfPending atomically updates status only when the row is still
// pending; the paid/failed timestamp column follows the target status.
func (r *paymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, externalRef *string, at *time.Time) (bool, error) {
	var q string
	switch status {
	case model.PaymentStatusSuccess:
		q = `UPDATE payments SET status=$2, external_ref=COALESCE($3, external_ref), paid_at=$4 WHERE id=$1 AND status='pending';`
	default:
		q = `UPDATE payments SET status=$2, external_ref=COALESCE($3, external_ref), failed_at=$4 WHERE id=$1 AND status='pending';`
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, id, status, externalRef, at)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) UpdateStatusIfSuccess(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, at *time.Time) (bool, error) {
	const q = `UPDATE payments SET status=$2, failed_at=$3 WHERE id=$1 AND status='success';`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, status, at)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.ParentID, &p.SubscriptionID, &p.TransactionID, &p.Provider, &p.Amount, &p.Currency, &p.Status, &p.ExternalRef, &p.CreatedAt, &p.PaidAt, &p.FailedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}
