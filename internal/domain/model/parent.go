package model

import (
	"time"

	"github.com/google/uuid"

	"mentorium-bot/internal/domain"
)

// Parent is a bot user who owns subscriptions and payments.
type Parent struct {
	ID         string // UUID
	TelegramID int64
	Phone      string
	FirstName  string
	LastName   string
	Username   string
	Language   string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewParent creates a parent record for a Telegram user.
func NewParent(id string, telegramID int64, username string) (*Parent, error) {
	if telegramID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &Parent{
		ID:         id,
		TelegramID: telegramID,
		Username:   username,
		Language:   "ru",
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
