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

var _ repository.ParentRepository = (*parentRepo)(nil)

type parentRepo struct{ pool *pgxpool.Pool }

func NewParentRepo(pool *pgxpool.Pool) *parentRepo {
	return &parentRepo{pool: pool}
}

const parentColumns = `id, telegram_id, phone, first_name, last_name, username, language, is_active, created_at, updated_at`

func (r *parentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Parent) error {
	const q = `
INSERT INTO parents (` + parentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  phone=$3, first_name=$4, last_name=$5, username=$6, language=$7, is_active=$8, updated_at=NOW();`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.TelegramID, p.Phone, p.FirstName, p.LastName, p.Username, p.Language, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *parentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Parent, error) {
	const q = `SELECT ` + parentColumns + ` FROM parents WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *parentRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, telegramID int64) (*model.Parent, error) {
	const q = `SELECT ` + parentColumns + ` FROM parents WHERE telegram_id=$1;`
	return r.queryOne(ctx, tx, q, telegramID)
}

func (r *parentRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Parent, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p := &model.Parent{}
	if err := row.Scan(&p.ID, &p.TelegramID, &p.Phone, &p.FirstName, &p.LastName, &p.Username, &p.Language, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}
