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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, parent_id, status, tariff_code, amount, starts_at, expires_at, auto_renew, cancelled_at, created_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  status=$3, tariff_code=$4, amount=$5, starts_at=$6, expires_at=$7, auto_renew=$8, cancelled_at=$9;`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.ParentID, s.Status, s.TariffCode, s.Amount, s.StartsAt, s.ExpiresAt, s.AutoRenew, s.CancelledAt, s.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindActiveByParent(ctx context.Context, tx repository.Tx, parentID string, now time.Time) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE parent_id=$1 AND status='active' AND expires_at > $2
 ORDER BY expires_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, parentID, now)
}

func (r *subscriptionRepo) FindLatestByParent(ctx context.Context, tx repository.Tx, parentID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE parent_id=$1 AND status IN ('active','expired')
 ORDER BY expires_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, parentID)
}

func (r *subscriptionRepo) FindDueExpiry(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='active' AND expires_at <= $1
 ORDER BY expires_at ASC;`
	return r.queryMany(ctx, tx, q, cutoff)
}

func (r *subscriptionRepo) FindExpiring(ctx context.Context, tx repository.Tx, withinDays int) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='active' AND expires_at > NOW() AND expires_at <= NOW() + ($1 * INTERVAL '1 day')
 ORDER BY expires_at ASC;`
	return r.queryMany(ctx, tx, q, withinDays)
}

func (r *subscriptionRepo) MarkActive(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE subscriptions SET status='active' WHERE id=$1 AND status='pending';`
	return r.conditional(ctx, tx, q, id)
}

func (r *subscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE subscriptions SET status='expired' WHERE id=$1 AND status='active';`
	return r.conditional(ctx, tx, q, id)
}

func (r *subscriptionRepo) MarkCancelled(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	const q = `UPDATE subscriptions SET status='cancelled', auto_renew=FALSE, cancelled_at=$2 WHERE id=$1 AND status='active';`
	return r.conditional(ctx, tx, q, id, at)
}

func (r *subscriptionRepo) conditional(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (bool, error) {
	cmd, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	s := &model.Subscription{}
	if err := row.Scan(&s.ID, &s.ParentID, &s.Status, &s.TariffCode, &s.Amount, &s.StartsAt, &s.ExpiresAt, &s.AutoRenew, &s.CancelledAt, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s := new(model.Subscription)
		if err := rows.Scan(&s.ID, &s.ParentID, &s.Status, &s.TariffCode, &s.Amount, &s.StartsAt, &s.ExpiresAt, &s.AutoRenew, &s.CancelledAt, &s.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	return out, nil
}
