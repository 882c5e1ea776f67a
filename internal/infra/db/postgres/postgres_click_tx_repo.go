package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/repository"
)

var _ repository.ClickTransactionRepository = (*clickTxRepo)(nil)

type clickTxRepo struct{ pool *pgxpool.Pool }

func NewClickTxRepo(pool *pgxpool.Pool) *clickTxRepo {
	return &clickTxRepo{pool: pool}
}

const clickTxColumns = `id, click_trans_id, payment_id, amount, phase, error, created_at, updated_at`

func (r *clickTxRepo) Save(ctx context.Context, tx repository.Tx, t *model.ClickTransaction) error {
	const q = `
INSERT INTO click_transactions (` + clickTxColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (click_trans_id) DO UPDATE SET
    phase=EXCLUDED.phase,
    error=EXCLUDED.error,
    updated_at=EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.ClickTransID, t.PaymentID, t.Amount, t.Phase, t.Error, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *clickTxRepo) FindByClickTransID(ctx context.Context, tx repository.Tx, clickTransID string) (*model.ClickTransaction, error) {
	q := `SELECT ` + clickTxColumns + ` FROM click_transactions WHERE click_trans_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, clickTransID)
	if err != nil {
		return nil, err
	}
	t := &model.ClickTransaction{}
	if err := row.Scan(&t.ID, &t.ClickTransID, &t.PaymentID, &t.Amount, &t.Phase, &t.Error, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

func (r *clickTxRepo) UpdatePhaseIf(ctx context.Context, tx repository.Tx, clickTransID string, from, to model.ClickPhase, clickError int) (bool, error) {
	const q = `UPDATE click_transactions SET phase=$3, error=$4, updated_at=NOW() WHERE click_trans_id=$1 AND phase=$2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, clickTransID, from, to, clickError)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}
