package click

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/repository"
	"mentorium-bot/internal/infra/redis"
)

// Click callback error codes.
const (
	errSuccess              = 0
	errInvalidSign          = -1
	errInvalidAmount        = -2
	errAlreadyPaid          = -4
	errOrderNotFound        = -5
	errTransactionCancelled = -6
	errProviderDisabled     = -8
	errInternal             = -9
)

const lockTTL = 10 * time.Second

// CallbackParams are the flat key-value fields Click sends on both phases.
// Values stay strings until validated; the signature covers the raw values.
type CallbackParams struct {
	ClickTransID      string
	ServiceID         string
	MerchantTransID   string
	MerchantPrepareID string
	Amount            string
	Action            string
	Error             int
	SignTime          string
	SignString        string
}

// ParseCallback extracts callback fields from the query string.
func ParseCallback(q url.Values) CallbackParams {
	errCode, _ := strconv.Atoi(q.Get("error"))
	return CallbackParams{
		ClickTransID:      q.Get("click_trans_id"),
		ServiceID:         q.Get("service_id"),
		MerchantTransID:   q.Get("merchant_trans_id"),
		MerchantPrepareID: q.Get("merchant_prepare_id"),
		Amount:            q.Get("amount"),
		Action:            q.Get("action"),
		Error:             errCode,
		SignTime:          q.Get("sign_time"),
		SignString:        q.Get("sign_string"),
	}
}

// Response is Click's flat callback answer. Business errors live entirely in
// the error field; the HTTP status is always 200.
type Response struct {
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
	MerchantTransID   string `json:"merchant_trans_id,omitempty"`
	MerchantPrepareID string `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID string `json:"merchant_confirm_id,omitempty"`
}

// Ledger is what the handler needs from the billing layer.
type Ledger interface {
	ActivatePayment(ctx context.Context, paymentID, externalRef string) error
	CancelPayment(ctx context.Context, paymentID string, refund bool) error
}

// Handler processes the prepare/complete handshake. Prepare only validates
// and records the attempt; the authoritative Payment/Subscription mutation is
// deferred to complete, mirroring Click's own two-phase semantics.
type Handler struct {
	provider *Provider
	payments repository.PaymentRepository
	txs      repository.ClickTransactionRepository
	ledger   Ledger
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewHandler(
	provider *Provider,
	payments repository.PaymentRepository,
	txs repository.ClickTransactionRepository,
	ledger Ledger,
	locker redis.Locker,
	logger *zerolog.Logger,
) *Handler {
	l := logger.With().Str("component", "ClickHandler").Logger()
	return &Handler{provider: provider, payments: payments, txs: txs, ledger: ledger, locker: locker, log: &l}
}

// parseAmountUZS normalizes Click's decimal amount string to whole UZS.
// Currency is integer-minor-unit: any non-zero fraction is a mismatch.
func parseAmountUZS(s string) (int64, error) {
	whole, frac, hasFrac := strings.Cut(strings.TrimSpace(s), ".")
	if whole == "" {
		return 0, domain.ErrInvalidArgument
	}
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || n < 0 {
		return 0, domain.ErrInvalidArgument
	}
	if hasFrac {
		if frac == "" {
			return 0, domain.ErrInvalidArgument
		}
		for _, r := range frac {
			if r != '0' {
				return 0, domain.ErrAmountMismatch
			}
		}
	}
	return n, nil
}

// Prepare handles the first phase: validate signature, order and amount, and
// record the attempt. No Payment or Subscription mutation happens here.
func (h *Handler) Prepare(ctx context.Context, c CallbackParams) Response {
	if !h.provider.Enabled() {
		return Response{Error: errProviderDisabled, ErrorNote: "Provider disabled"}
	}
	if !h.provider.VerifySign(c) {
		h.log.Warn().Str("merchant_trans_id", c.MerchantTransID).Msg("invalid click signature")
		return Response{Error: errInvalidSign, ErrorNote: "Invalid signature"}
	}

	payment, err := h.payments.FindByID(ctx, repository.NoTX, c.MerchantTransID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Response{Error: errOrderNotFound, ErrorNote: "Order not found"}
		}
		return Response{Error: errInternal, ErrorNote: "Internal error"}
	}

	amount, err := parseAmountUZS(c.Amount)
	if err != nil || amount != payment.Amount {
		return Response{Error: errInvalidAmount, ErrorNote: "Incorrect amount"}
	}
	if payment.Status == model.PaymentStatusSuccess {
		return Response{Error: errAlreadyPaid, ErrorNote: "Already paid"}
	}

	existing, err := h.txs.FindByClickTransID(ctx, repository.NoTX, c.ClickTransID)
	switch {
	case err == nil:
		if existing.Phase != model.ClickPhasePrepared {
			return Response{Error: errTransactionCancelled, ErrorNote: "Transaction already settled"}
		}
		// retried prepare, same answer
	case errors.Is(err, domain.ErrNotFound):
		now := time.Now()
		tx := &model.ClickTransaction{
			ID:           uuid.NewString(),
			ClickTransID: c.ClickTransID,
			PaymentID:    payment.ID,
			Amount:       amount,
			Phase:        model.ClickPhasePrepared,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := h.txs.Save(ctx, repository.NoTX, tx); err != nil {
			return Response{Error: errInternal, ErrorNote: "Internal error"}
		}
	default:
		return Response{Error: errInternal, ErrorNote: "Internal error"}
	}

	h.log.Info().Str("click_trans_id", c.ClickTransID).Str("payment_id", payment.ID).Msg("click prepare ok")
	return Response{
		Error:             errSuccess,
		ErrorNote:         "Success",
		MerchantTransID:   c.MerchantTransID,
		MerchantPrepareID: c.ClickTransID,
	}
}

// Complete handles the second phase. The signature is re-verified: complete
// is never trusted merely because prepare succeeded. A complete without a
// prior successful prepare for the same click_trans_id is rejected.
func (h *Handler) Complete(ctx context.Context, c CallbackParams) Response {
	if !h.provider.Enabled() {
		return Response{Error: errProviderDisabled, ErrorNote: "Provider disabled"}
	}
	if !h.provider.VerifySign(c) {
		h.log.Warn().Str("merchant_trans_id", c.MerchantTransID).Msg("invalid click signature")
		return Response{Error: errInvalidSign, ErrorNote: "Invalid signature"}
	}

	token, err := h.locker.TryLock(ctx, "click:tx:"+c.ClickTransID, lockTTL)
	if err != nil {
		return Response{Error: errInternal, ErrorNote: "Internal error"}
	}
	defer func() { _ = h.locker.Unlock(ctx, "click:tx:"+c.ClickTransID, token) }()

	tx, err := h.txs.FindByClickTransID(ctx, repository.NoTX, c.ClickTransID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Response{Error: errTransactionCancelled, ErrorNote: "Transaction does not exist"}
		}
		return Response{Error: errInternal, ErrorNote: "Internal error"}
	}

	// Click reporting its own failure cancels the transaction on our side.
	if c.Error != 0 {
		if tx.Phase == model.ClickPhasePrepared {
			if err := h.ledger.CancelPayment(ctx, tx.PaymentID, false); err != nil {
				return Response{Error: errInternal, ErrorNote: "Internal error"}
			}
			if _, err := h.txs.UpdatePhaseIf(ctx, repository.NoTX, c.ClickTransID, model.ClickPhasePrepared, model.ClickPhaseCancelled, c.Error); err != nil {
				return Response{Error: errInternal, ErrorNote: "Internal error"}
			}
		}
		return Response{Error: errTransactionCancelled, ErrorNote: "Transaction cancelled"}
	}

	switch tx.Phase {
	case model.ClickPhaseCancelled:
		return Response{Error: errTransactionCancelled, ErrorNote: "Transaction cancelled"}
	case model.ClickPhaseCompleted:
		// retry of a finished complete, same answer
	case model.ClickPhasePrepared:
		if err := h.ledger.ActivatePayment(ctx, tx.PaymentID, c.ClickTransID); err != nil {
			h.log.Error().Err(err).Str("click_trans_id", c.ClickTransID).Msg("activate payment failed")
			return Response{Error: errInternal, ErrorNote: "Internal error"}
		}
		if _, err := h.txs.UpdatePhaseIf(ctx, repository.NoTX, c.ClickTransID, model.ClickPhasePrepared, model.ClickPhaseCompleted, 0); err != nil {
			return Response{Error: errInternal, ErrorNote: "Internal error"}
		}
	}

	h.log.Info().Str("click_trans_id", c.ClickTransID).Str("payment_id", tx.PaymentID).Msg("click complete ok")
	return Response{
		Error:             errSuccess,
		ErrorNote:         "Success",
		MerchantTransID:   c.MerchantTransID,
		MerchantConfirmID: c.ClickTransID,
	}
}
