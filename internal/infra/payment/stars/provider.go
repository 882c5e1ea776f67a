package stars

import (
	"context"

	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*Provider)(nil)

// Provider is the in-chat Telegram payment method. It needs no merchant
// credentials and renders no link: the conversational layer sends a native
// invoice whose payload is the payment id.
type Provider struct{}

func NewProvider() *Provider { return &Provider{} }

func (p *Provider) Name() model.PaymentProvider { return model.ProviderTelegramStars }

func (p *Provider) Enabled() bool { return true }

func (p *Provider) CreatePaymentLink(ctx context.Context, amount int64, orderID, returnURL string) (string, error) {
	return "", nil
}
