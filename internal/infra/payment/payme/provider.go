package payme

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*Provider)(nil)

// Provider holds the PayMe merchant credentials and builds checkout links.
// Missing credentials disable the provider at construction time.
type Provider struct {
	merchantID string
	secretKey  string
	testMode   bool
	enabled    bool
	log        *zerolog.Logger
}

func NewProvider(merchantID, secretKey string, testMode bool, logger *zerolog.Logger) *Provider {
	l := logger.With().Str("component", "PaymeProvider").Logger()
	enabled := merchantID != "" && secretKey != ""
	if !enabled {
		l.Warn().Msg("payme provider disabled: missing merchant_id or secret_key")
	}
	return &Provider{
		merchantID: merchantID,
		secretKey:  secretKey,
		testMode:   testMode,
		enabled:    enabled,
		log:        &l,
	}
}

func (p *Provider) Name() model.PaymentProvider { return model.ProviderPayme }

func (p *Provider) Enabled() bool { return p.enabled }

// CreatePaymentLink builds a checkout URL. Amount is whole UZS; PayMe wants
// tiyin (1 UZS = 100 tiyin) inside the base64 parameter blob.
func (p *Provider) CreatePaymentLink(ctx context.Context, amount int64, orderID, returnURL string) (string, error) {
	if !p.enabled {
		return "", domain.ErrProviderDisabled
	}

	params := fmt.Sprintf("m=%s;ac.order_id=%s;a=%d", p.merchantID, orderID, amount*100)
	if returnURL != "" {
		params += ";c=" + returnURL
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(params))

	base := "https://checkout.paycom.uz"
	if p.testMode {
		base = "https://checkout.test.paycom.uz"
	}
	p.log.Info().Str("order_id", orderID).Int64("amount", amount).Msg("created payme payment link")
	return base + "/" + encoded, nil
}

// VerifyRequest authenticates a Merchant API call. PayMe sends Basic auth
// with the fixed username "Paycom" and the pre-shared key as password; the
// comparison is constant time since the key is a bearer secret.
func (p *Provider) VerifyRequest(authHeader string) bool {
	if !p.enabled {
		return false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	creds := strings.SplitN(string(decoded), ":", 2)
	if len(creds) != 2 {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(creds[0]), []byte("Paycom"))
	passOK := subtle.ConstantTimeCompare([]byte(creds[1]), []byte(p.secretKey))
	return userOK&passOK == 1
}
