//go:build !integration

package usecase

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"mentorium-bot/internal/domain"
	"mentorium-bot/internal/domain/model"
	"mentorium-bot/internal/domain/ports/adapter"
	"mentorium-bot/internal/domain/ports/repository"
)

// newTestLogger returns a silent logger so tests stay quiet.
func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// mockTxManager runs the body with a nil tx handle, no real transaction.
type mockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func newMockTxManager() *mockTxManager { return &mockTxManager{} }

func (m *mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// mockParentRepo is a map-backed in-memory parent store.
type mockParentRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Parent
}

func newMockParentRepo() *mockParentRepo {
	return &mockParentRepo{store: make(map[string]*model.Parent)}
}

func (m *mockParentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Parent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockParentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Parent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockParentRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, telegramID int64) (*model.Parent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.TelegramID == telegramID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// mockSubscriptionRepo keeps subscriptions in memory and implements the
// conditional Mark* transitions the way the SQL layer does.
type mockSubscriptionRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Subscription

	SaveFunc       func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	MarkActiveFunc func(ctx context.Context, tx repository.Tx, id string) (bool, error)
}

func newMockSubscriptionRepo() *mockSubscriptionRepo {
	return &mockSubscriptionRepo{store: make(map[string]*model.Subscription)}
}

func (m *mockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *mockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSubscriptionRepo) FindActiveByParent(ctx context.Context, tx repository.Tx, parentID string, now time.Time) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *model.Subscription
	for _, s := range m.store {
		if s.ParentID != parentID || s.Status != model.SubscriptionStatusActive || !s.ExpiresAt.After(now) {
			continue
		}
		if best == nil || s.ExpiresAt.After(best.ExpiresAt) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *mockSubscriptionRepo) FindLatestByParent(ctx context.Context, tx repository.Tx, parentID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *model.Subscription
	for _, s := range m.store {
		if s.ParentID != parentID {
			continue
		}
		if s.Status != model.SubscriptionStatusActive && s.Status != model.SubscriptionStatusExpired {
			continue
		}
		if best == nil || s.ExpiresAt.After(best.ExpiresAt) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *mockSubscriptionRepo) FindDueExpiry(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.store {
		if s.Status == model.SubscriptionStatusActive && !s.ExpiresAt.After(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockSubscriptionRepo) FindExpiring(ctx context.Context, tx repository.Tx, withinDays int) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cut := time.Now().Add(time.Duration(withinDays) * 24 * time.Hour)
	var out []*model.Subscription
	for _, s := range m.store {
		if s.Status == model.SubscriptionStatusActive && s.ExpiresAt.After(time.Now()) && s.ExpiresAt.Before(cut) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockSubscriptionRepo) markIf(id string, from, to model.SubscriptionStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok || s.Status != from {
		return false
	}
	s.Status = to
	return true
}

func (m *mockSubscriptionRepo) MarkActive(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	if m.MarkActiveFunc != nil {
		return m.MarkActiveFunc(ctx, tx, id)
	}
	return m.markIf(id, model.SubscriptionStatusPending, model.SubscriptionStatusActive), nil
}

func (m *mockSubscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	return m.markIf(id, model.SubscriptionStatusActive, model.SubscriptionStatusExpired), nil
}

func (m *mockSubscriptionRepo) MarkCancelled(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok || s.Status != model.SubscriptionStatusActive {
		return false, nil
	}
	s.Status = model.SubscriptionStatusCancelled
	s.AutoRenew = false
	cp := at
	s.CancelledAt = &cp
	return true, nil
}

// mockPaymentRepo enforces transaction_id uniqueness and the conditional
// status transitions.
type mockPaymentRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Payment

	SaveFunc func(ctx context.Context, tx repository.Tx, p *model.Payment) error
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{store: make(map[string]*model.Payment)}
}

func (m *mockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.store {
		if q.TransactionID == p.TransactionID {
			return domain.ErrDuplicateTransaction
		}
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPaymentRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		if p.TransactionID == transactionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockPaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, externalRef *string, at *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	if externalRef != nil {
		p.ExternalRef = externalRef
	}
	if status == model.PaymentStatusSuccess {
		p.PaidAt = at
	} else {
		p.FailedAt = at
	}
	return true, nil
}

func (m *mockPaymentRepo) UpdateStatusIfSuccess(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, at *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status != model.PaymentStatusSuccess {
		return false, nil
	}
	p.Status = status
	p.FailedAt = at
	return true, nil
}

// mockProvider is a configurable payment gateway.
type mockProvider struct {
	name    model.PaymentProvider
	enabled bool
	linkFn  func(ctx context.Context, amount int64, orderID, returnURL string) (string, error)
}

var _ adapter.PaymentProvider = (*mockProvider)(nil)

func (m *mockProvider) Name() model.PaymentProvider { return m.name }
func (m *mockProvider) Enabled() bool               { return m.enabled }

func (m *mockProvider) CreatePaymentLink(ctx context.Context, amount int64, orderID, returnURL string) (string, error) {
	if m.linkFn != nil {
		return m.linkFn(ctx, amount, orderID, returnURL)
	}
	return "https://pay.example/" + orderID, nil
}

// mockBot records outgoing messages and invoices.
type mockBot struct {
	mu       sync.Mutex
	messages []string
	chats    []int64
	invoices []string // payloads
	sendErr  error
}

var _ adapter.TelegramBot = (*mockBot)(nil)

func (m *mockBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, text)
	m.chats = append(m.chats, chatID)
	return nil
}

func (m *mockBot) SendStarsInvoice(ctx context.Context, chatID int64, title, description, payload string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices = append(m.invoices, payload)
	return nil
}
