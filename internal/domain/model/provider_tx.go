package model

import "time"

// Provider-side transaction phases are tracked alongside the owning Payment,
// never instead of it, so reconciliation logic stays unit-testable without the
// HTTP transport.

// PaymeState follows the Merchant API state values.
type PaymeState int

const (
	PaymeStateRefunded  PaymeState = -2 // cancelled after perform
	PaymeStateCancelled PaymeState = -1
	PaymeStateCreated   PaymeState = 1
	PaymeStatePerformed PaymeState = 2
)

// PaymeTransaction mirrors one PayMe-side transaction. Times are Unix millis,
// as the Merchant API requires.
type PaymeTransaction struct {
	ID          string // UUID, returned to PayMe as "transaction"
	PaymeID     string // provider transaction id, unique
	PaymentID   string // owning Payment
	Amount      int64  // tiyin
	State       PaymeState
	CreateTime  int64
	PerformTime int64
	CancelTime  int64
	Reason      *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Terminal reports whether no further state transitions are allowed.
func (t *PaymeTransaction) Terminal() bool {
	return t.State == PaymeStateCancelled || t.State == PaymeStateRefunded
}

type ClickPhase string

const (
	ClickPhasePrepared  ClickPhase = "prepared"
	ClickPhaseCompleted ClickPhase = "completed"
	ClickPhaseCancelled ClickPhase = "cancelled"
)

// ClickTransaction mirrors one Click-side transaction across the
// prepare/complete handshake.
type ClickTransaction struct {
	ID           string // UUID
	ClickTransID string // click_trans_id, unique
	PaymentID    string // merchant_trans_id
	Amount       int64  // whole UZS
	Phase        ClickPhase
	Error        int // Click's own error code from complete, 0 otherwise
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
