package payme

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/repository"
	"mentorium-bot/internal/infra/redis"
)

// JSON-RPC 2.0 error codes used by the Merchant API.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603

	codeInvalidAmount       = -31001
	codeTransactionNotFound = -31003
	codeCannotPerform       = -31008
	codeOrderNotFound       = -31050
)

const lockTTL = 10 * time.Second

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Response struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      any          `json:"id"`
	Result  any          `json:"result,omitempty"`
	Error   *ErrorObject `json:"error,omitempty"`
}

// ErrorResponse builds a JSON-RPC error envelope carrying the request id.
func ErrorResponse(id any, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &ErrorObject{Code: code, Message: message}}
}

func resultResponse(id any, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// method is the closed set of Merchant API operations. Dispatch is an
// exhaustive switch, so adding or removing one is a compile-time change.
type method int

const (
	methodUnknown method = iota
	methodCheckPerformTransaction
	methodCreateTransaction
	methodPerformTransaction
	methodCancelTransaction
	methodCheckTransaction
)

func parseMethod(s string) method {
	switch s {
	case "CheckPerformTransaction":
		return methodCheckPerformTransaction
	case "CreateTransaction":
		return methodCreateTransaction
	case "PerformTransaction":
		return methodPerformTransaction
	case "CancelTransaction":
		return methodCancelTransaction
	case "CheckTransaction":
		return methodCheckTransaction
	default:
		return methodUnknown
	}
}

// params covers the union of all five methods' parameters. Amount is tiyin.
type params struct {
	ID      string `json:"id"`
	Time    int64  `json:"time"`
	Amount  int64  `json:"amount"`
	Account struct {
		OrderID string `json:"order_id"`
	} `json:"account"`
	Reason *int `json:"reason"`
}

type allowResult struct {
	Allow bool `json:"allow"`
}

type createResult struct {
	CreateTime  int64  `json:"create_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type performResult struct {
	PerformTime int64  `json:"perform_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type cancelResult struct {
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type checkResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

// Ledger is what the dispatcher needs from the billing layer.
type Ledger interface {
	ActivatePayment(ctx context.Context, paymentID, externalRef string) error
	CancelPayment(ctx context.Context, paymentID string, refund bool) error
}

// Dispatcher routes Merchant API calls to transaction-lifecycle operations.
// Every operation is retriable: repeats keyed on the provider transaction id
// return the stored result instead of re-applying side effects.
type Dispatcher struct {
	payments repository.PaymentRepository
	txs      repository.PaymeTransactionRepository
	ledger   Ledger
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewDispatcher(
	payments repository.PaymentRepository,
	txs repository.PaymeTransactionRepository,
	ledger Ledger,
	locker redis.Locker,
	logger *zerolog.Logger,
) *Dispatcher {
	l := logger.With().Str("component", "PaymeDispatcher").Logger()
	return &Dispatcher{payments: payments, txs: txs, ledger: ledger, locker: locker, log: &l}
}

// Handle processes one JSON-RPC request. Business failures come back as
// Merchant API error codes; only the envelope is HTTP's concern.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	m := parseMethod(req.Method)
	if m == methodUnknown {
		return ErrorResponse(req.ID, CodeMethodNotFound, "Method not found")
	}

	var p params
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return ErrorResponse(req.ID, CodeInternalError, "Invalid params")
		}
	}

	var resp Response
	switch m {
	case methodCheckPerformTransaction:
		resp = d.checkPerform(ctx, req.ID, p)
	case methodCreateTransaction:
		resp = d.create(ctx, req.ID, p)
	case methodPerformTransaction:
		resp = d.perform(ctx, req.ID, p)
	case methodCancelTransaction:
		resp = d.cancel(ctx, req.ID, p)
	case methodCheckTransaction:
		resp = d.check(ctx, req.ID, p)
	case methodUnknown:
		// handled above
	}
	return resp
}

// orderFor validates that the order exists and the tiyin amount matches the
// payment exactly.
func (d *Dispatcher) orderFor(ctx context.Context, p params) (*model.Payment, *ErrorObject) {
	payment, err := d.payments.FindByID(ctx, repository.NoTX, p.Account.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &ErrorObject{Code: codeOrderNotFound, Message: "Order not found"}
		}
		return nil, &ErrorObject{Code: CodeInternalError, Message: "Internal error"}
	}
	if payment.Amount*100 != p.Amount {
		return nil, &ErrorObject{Code: codeInvalidAmount, Message: "Invalid amount"}
	}
	return payment, nil
}

func (d *Dispatcher) checkPerform(ctx context.Context, id any, p params) Response {
	if _, errObj := d.orderFor(ctx, p); errObj != nil {
		return Response{JSONRPC: "2.0", ID: id, Error: errObj}
	}
	return resultResponse(id, allowResult{Allow: true})
}

func (d *Dispatcher) create(ctx context.Context, id any, p params) Response {
	token, err := d.locker.TryLock(ctx, "payme:tx:"+p.ID, lockTTL)
	if err != nil {
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}
	defer func() { _ = d.locker.Unlock(ctx, "payme:tx:"+p.ID, token) }()

	existing, err := d.txs.FindByPaymeID(ctx, repository.NoTX, p.ID)
	if err == nil {
		if existing.State != model.PaymeStateCreated {
			return ErrorResponse(id, codeCannotPerform, "Transaction is not pending")
		}
		return resultResponse(id, createResult{
			CreateTime:  existing.CreateTime,
			Transaction: existing.ID,
			State:       int(model.PaymeStateCreated),
		})
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}

	payment, errObj := d.orderFor(ctx, p)
	if errObj != nil {
		return Response{JSONRPC: "2.0", ID: id, Error: errObj}
	}

	// One open transaction per order: a second non-terminal transaction for
	// the same order is rejected.
	if open, err := d.txs.FindOpenByPaymentID(ctx, repository.NoTX, payment.ID); err == nil && open.PaymeID != p.ID {
		return ErrorResponse(id, codeCannotPerform, "Order already has a transaction")
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}

	now := time.Now()
	tx := &model.PaymeTransaction{
		ID:         uuid.NewString(),
		PaymeID:    p.ID,
		PaymentID:  payment.ID,
		Amount:     p.Amount,
		State:      model.PaymeStateCreated,
		CreateTime: now.UnixMilli(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := d.txs.Save(ctx, repository.NoTX, tx); err != nil {
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}
	d.log.Info().Str("payme_id", p.ID).Str("payment_id", payment.ID).Msg("payme transaction created")
	return resultResponse(id, createResult{
		CreateTime:  tx.CreateTime,
		Transaction: tx.ID,
		State:       int(model.PaymeStateCreated),
	})
}

func (d *Dispatcher) perform(ctx context.Context, id any, p params) Response {
	token, err := d.locker.TryLock(ctx, "payme:tx:"+p.ID, lockTTL)
	if err != nil {
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}
	defer func() { _ = d.locker.Unlock(ctx, "payme:tx:"+p.ID, token) }()

	tx, err := d.txs.FindByPaymeID(ctx, repository.NoTX, p.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrorResponse(id, codeTransactionNotFound, "Transaction not found")
		}
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}

	switch tx.State {
	case model.PaymeStatePerformed:
		// Retry of a finished perform: return the stored result unchanged.
		return resultResponse(id, performResult{
			PerformTime: tx.PerformTime,
			Transaction: tx.ID,
			State:       int(model.PaymeStatePerformed),
		})
	case model.PaymeStateCancelled, model.PaymeStateRefunded:
		return ErrorResponse(id, codeCannotPerform, "Transaction is cancelled")
	case model.PaymeStateCreated:
	}

	if err := d.ledger.ActivatePayment(ctx, tx.PaymentID, tx.PaymeID); err != nil {
		d.log.Error().Err(err).Str("payme_id", p.ID).Msg("activate payment failed")
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}

	performTime := time.Now().UnixMilli()
	changed, err := d.txs.UpdateStateIf(ctx, repository.NoTX, p.ID, model.PaymeStateCreated, model.PaymeStatePerformed, performTime, nil)
	if err != nil {
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}
	if !changed {
		// lost the race; read back the winner's perform_time
		tx, err = d.txs.FindByPaymeID(ctx, repository.NoTX, p.ID)
		if err != nil || tx.State != model.PaymeStatePerformed {
			return ErrorResponse(id, CodeInternalError, "Internal error")
		}
		performTime = tx.PerformTime
	}
	return resultResponse(id, performResult{
		PerformTime: performTime,
		Transaction: tx.ID,
		State:       int(model.PaymeStatePerformed),
	})
}

func (d *Dispatcher) cancel(ctx context.Context, id any, p params) Response {
	token, err := d.locker.TryLock(ctx, "payme:tx:"+p.ID, lockTTL)
	if err != nil {
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}
	defer func() { _ = d.locker.Unlock(ctx, "payme:tx:"+p.ID, token) }()

	tx, err := d.txs.FindByPaymeID(ctx, repository.NoTX, p.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrorResponse(id, codeTransactionNotFound, "Transaction not found")
		}
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}

	if tx.Terminal() {
		return resultResponse(id, cancelResult{
			CancelTime:  tx.CancelTime,
			Transaction: tx.ID,
			State:       int(tx.State),
		})
	}

	// Cancelling a performed transaction is a refund; before perform it is a
	// plain cancellation.
	from := tx.State
	to := model.PaymeStateCancelled
	refund := false
	if tx.State == model.PaymeStatePerformed {
		to = model.PaymeStateRefunded
		refund = true
	}

	if err := d.ledger.CancelPayment(ctx, tx.PaymentID, refund); err != nil {
		d.log.Error().Err(err).Str("payme_id", p.ID).Msg("cancel payment failed")
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}

	cancelTime := time.Now().UnixMilli()
	changed, err := d.txs.UpdateStateIf(ctx, repository.NoTX, p.ID, from, to, cancelTime, p.Reason)
	if err != nil {
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}
	if !changed {
		tx, err = d.txs.FindByPaymeID(ctx, repository.NoTX, p.ID)
		if err != nil || !tx.Terminal() {
			return ErrorResponse(id, CodeInternalError, "Internal error")
		}
		cancelTime = tx.CancelTime
		to = tx.State
	}
	return resultResponse(id, cancelResult{
		CancelTime:  cancelTime,
		Transaction: tx.ID,
		State:       int(to),
	})
}

func (d *Dispatcher) check(ctx context.Context, id any, p params) Response {
	tx, err := d.txs.FindByPaymeID(ctx, repository.NoTX, p.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrorResponse(id, codeTransactionNotFound, "Transaction not found")
		}
		return ErrorResponse(id, CodeInternalError, "Internal error")
	}
	return resultResponse(id, checkResult{
		CreateTime:  tx.CreateTime,
		PerformTime: tx.PerformTime,
		CancelTime:  tx.CancelTime,
		Transaction: tx.ID,
		State:       int(tx.State),
		Reason:      tx.Reason,
	})
}
