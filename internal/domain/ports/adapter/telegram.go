package adapter

import "context"

// TelegramBot is the minimal surface the billing core needs from the
// conversational layer. The bot's FSM and dialog handling live elsewhere.
type TelegramBot interface {
	SendMessage(ctx context.Context, chatID int64, text string) error

	// SendStarsInvoice issues a native in-chat invoice whose payload is the
	// payment id, so the successful-payment event can be reconciled.
	SendStarsInvoice(ctx context.Context, chatID int64, title, description, payload string, amount int64) error
}
