package adapter

import (
	"context"

	"mentorium-bot/internal/domain/model"
)

// PaymentProvider is the hex port for payment gateways.
type PaymentProvider interface {
	Name() model.PaymentProvider

	// Enabled reports whether credentials were configured at startup. A
	// disabled provider rejects everything; this is a configuration-time
	// decision, not a per-request one.
	Enabled() bool

	// CreatePaymentLink renders a checkout URL for (amount, order id). An
	// empty URL with nil error means the provider has no link flow (the
	// in-chat invoice path); ErrProviderDisabled means not configured.
	CreatePaymentLink(ctx context.Context, amount int64, orderID, returnURL string) (string, error)
}
