package click

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*Provider)(nil)

// Provider holds the Click merchant credentials and implements the keyed
// digest scheme Click signs its callbacks with.
type Provider struct {
	merchantID string
	serviceID  string
	secretKey  string
	testMode   bool
	enabled    bool
	log        *zerolog.Logger
}

func NewProvider(merchantID, serviceID, secretKey string, testMode bool, logger *zerolog.Logger) *Provider {
	l := logger.With().Str("component", "ClickProvider").Logger()
	enabled := merchantID != "" && serviceID != "" && secretKey != ""
	if !enabled {
		l.Warn().Msg("click provider disabled: missing credentials")
	}
	return &Provider{
		merchantID: merchantID,
		serviceID:  serviceID,
		secretKey:  secretKey,
		testMode:   testMode,
		enabled:    enabled,
		log:        &l,
	}
}

func (p *Provider) Name() model.PaymentProvider { return model.ProviderClick }

func (p *Provider) Enabled() bool { return p.enabled }

// CreatePaymentLink builds the hosted checkout URL; amount is whole UZS.
func (p *Provider) CreatePaymentLink(ctx context.Context, amount int64, orderID, returnURL string) (string, error) {
	if !p.enabled {
		return "", domain.ErrProviderDisabled
	}

	q := url.Values{}
	q.Set("service_id", p.serviceID)
	q.Set("merchant_id", p.merchantID)
	q.Set("amount", fmt.Sprintf("%d", amount))
	q.Set("transaction_param", orderID)
	if returnURL != "" {
		q.Set("return_url", returnURL)
	}

	base := "https://my.click.uz/services/pay"
	if p.testMode {
		base = "https://test.click.uz/services/pay"
	}
	p.log.Info().Str("order_id", orderID).Int64("amount", amount).Msg("created click payment link")
	return base + "?" + q.Encode(), nil
}

// VerifySign checks the callback digest:
//
//	md5(click_trans_id + service_id + secret_key + merchant_trans_id + amount + action + sign_time)
//
// concatenated in that exact order with no delimiters. Any field mismatch
// fails the whole check.
func (p *Provider) VerifySign(c CallbackParams) bool {
	if !p.enabled {
		return false
	}
	data := c.ClickTransID + c.ServiceID + p.secretKey + c.MerchantTransID + c.Amount + c.Action + c.SignTime
	sum := md5.Sum([]byte(data))
	want := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(want), []byte(c.SignString)) == 1
}
