package repository

import (
	"context"

	"mentorium-bot/internal/domain/model"
)

// ParentRepository resolves bot users before any billing mutation.
type ParentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Parent) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Parent, error)
	FindByTelegramID(ctx context.Context, tx Tx, telegramID int64) (*model.Parent, error)
}
