package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/repository"
)

var _ repository.PaymeTransactionRepository = (*paymeTxRepo)(nil)

type paymeTxRepo struct{ pool *pgxpool.Pool }

func NewPaymeTxRepo(pool *pgxpool.Pool) *paymeTxRepo {
	return &paymeTxRepo{pool: pool}
}

const paymeTxColumns = `id, payme_id, payment_id, amount, state, create_time, perform_time, cancel_time, reason, created_at, updated_at`

func (r *paymeTxRepo) Save(ctx context.Context, tx repository.Tx, t *model.PaymeTransaction) error {
	const q = `
INSERT INTO payme_transactions (` + paymeTxColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (payme_id) DO UPDATE SET
    state=EXCLUDED.state,
    perform_time=EXCLUDED.perform_time,
    cancel_time=EXCLUDED.cancel_time,
    reason=EXCLUDED.reason,
    updated_at=EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.PaymeID, t.PaymentID, t.Amount, t.State, t.CreateTime, t.PerformTime, t.CancelTime, t.Reason, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymeTxRepo) FindByPaymeID(ctx context.Context, tx repository.Tx, paymeID string) (*model.PaymeTransaction, error) {
	q := `SELECT ` + paymeTxColumns + ` FROM payme_transactions WHERE payme_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, paymeID)
}

func (r *paymeTxRepo) FindOpenByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.PaymeTransaction, error) {
	q := `SELECT ` + paymeTxColumns + ` FROM payme_transactions
WHERE payment_id=$1 AND state IN (1, 2)
ORDER BY create_time DESC LIMIT 1;`
	return r.queryOne(ctx, tx, q, paymentID)
}

func (r *paymeTxRepo) UpdateStateIf(ctx context.Context, tx repository.Tx, paymeID string, from, to model.PaymeState, atMillis int64, reason *int) (bool, error) {
	var q string
	switch to {
	case model.PaymeStatePerformed:
		q = `UPDATE payme_transactions SET state=$3, perform_time=$4, updated_at=NOW() WHERE payme_id=$1 AND state=$2;`
	default:
		q = `UPDATE payme_transactions SET state=$3, cancel_time=$4, reason=COALESCE($5, reason), updated_at=NOW() WHERE payme_id=$1 AND state=$2;`
	}
	var (
		cmd pgconn.CommandTag
		err error
	)
	if to == model.PaymeStatePerformed {
		cmd, err = execSQL(ctx, r.pool, tx, q, paymeID, from, to, atMillis)
	} else {
		cmd, err = execSQL(ctx, r.pool, tx, q, paymeID, from, to, atMillis, reason)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymeTxRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.PaymeTransaction, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	t := &model.PaymeTransaction{}
	if err := row.Scan(&t.ID, &t.PaymeID, &t.PaymentID, &t.Amount, &t.State, &t.CreateTime, &t.PerformTime, &t.CancelTime, &t.Reason, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}
