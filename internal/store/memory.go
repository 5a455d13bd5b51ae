package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/daima/airtime-gateway/internal/bonus"
	"github.com/daima/airtime-gateway/internal/carrier"
)

// MemStore is an in-memory implementation of every method *Store exposes,
// for unit tests that shouldn't need a live Postgres instance. Mirrors
// internal/ledger.MemLedger's role for FloatLedger.
type MemStore struct {
	mu sync.Mutex

	requests         map[string]Request
	transactions     map[string]Transaction
	sales            map[string]Sale
	errors           []ErrorLogEntry
	reversalPending  map[string]ReversalPending
	reversalFailed   []ReversalFailed
	bonusHistory     []bonus.History
	bonusSettings    bonus.Settings
	dealerPIN        string
}

func NewMemory() *MemStore {
	return &MemStore{
		requests:        map[string]Request{},
		transactions:    map[string]Transaction{},
		sales:           map[string]Sale{},
		reversalPending: map[string]ReversalPending{},
		bonusSettings:   bonus.Settings{PercentageByTelco: map[carrier.Carrier]decimal.Decimal{}},
		dealerPIN:       "0000",
	}
}

// SetDealerPIN lets tests control what FetchPIN returns.
func (m *MemStore) SetDealerPIN(pin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dealerPIN = pin
}

func (m *MemStore) CreateRequestAndTransaction(ctx context.Context, req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.InitiatedAt = time.Now()
	m.requests[req.RequestID] = req
	m.transactions[req.RequestID] = Transaction{
		RequestID:   req.RequestID,
		Status:      StatusPushInitiated,
		LastUpdated: time.Now(),
	}
	return nil
}

func (m *MemStore) GetRequest(ctx context.Context, requestID string) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return Request{}, ErrNotFound
	}
	return r, nil
}

func (m *MemStore) GetTransaction(ctx context.Context, requestID string) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[requestID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return t, nil
}

func (m *MemStore) TransitionTransaction(ctx context.Context, requestID string, expectedStatus Status, mutate func(*Transaction)) (Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transactions[requestID]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	if t.Status != expectedStatus {
		return Transaction{}, ErrStatePrecondition
	}
	mutate(&t)
	t.LastUpdated = time.Now()
	m.transactions[requestID] = t
	return t, nil
}

func (m *MemStore) CreateSale(ctx context.Context, sale Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale.CompletedAt = time.Now()
	m.sales[sale.RequestID] = sale
	return nil
}

func (m *MemStore) GetSale(ctx context.Context, requestID string) (Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[requestID]
	if !ok {
		return Sale{}, ErrNotFound
	}
	return sale, nil
}

func (m *MemStore) LogError(ctx context.Context, entry ErrorLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now()
	m.errors = append(m.errors, entry)
	return nil
}

func (m *MemStore) Errors() []ErrorLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ErrorLogEntry, len(m.errors))
	copy(out, m.errors)
	return out
}

func (m *MemStore) CreateReversalPending(ctx context.Context, r ReversalPending) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.InitiatedAt = time.Now()
	m.reversalPending[r.RequestID] = r
	return nil
}

func (m *MemStore) ResolveReversalPending(ctx context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reversalPending, requestID)
	return nil
}

func (m *MemStore) ListPendingReversals(ctx context.Context) ([]ReversalPending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReversalPending, 0, len(m.reversalPending))
	for _, r := range m.reversalPending {
		out = append(out, r)
	}
	return out, nil
}

func (m *MemStore) FindPendingReversalByConversationID(ctx context.Context, conversationID string) (ReversalPending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reversalPending {
		if r.ConversationID == conversationID {
			return r, nil
		}
	}
	return ReversalPending{}, ErrNotFound
}

func (m *MemStore) CreateReversalFailed(ctx context.Context, r ReversalFailed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.NewString()
	r.Timestamp = time.Now()
	m.reversalFailed = append(m.reversalFailed, r)
	return nil
}

func (m *MemStore) ReversalFailures() []ReversalFailed {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReversalFailed, len(m.reversalFailed))
	copy(out, m.reversalFailed)
	return out
}

func (m *MemStore) CurrentSettings(ctx context.Context) (bonus.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copySettings := bonus.Settings{PercentageByTelco: map[carrier.Carrier]decimal.Decimal{}}
	for k, v := range m.bonusSettings.PercentageByTelco {
		copySettings.PercentageByTelco[k] = v
	}
	return copySettings, nil
}

func (m *MemStore) UpdateSettings(ctx context.Context, next bonus.Settings, actor string) ([]bonus.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var history []bonus.History
	for telco, newPct := range next.PercentageByTelco {
		oldPct, existed := m.bonusSettings.PercentageByTelco[telco]
		if !existed {
			oldPct = decimal.Zero
		}
		if oldPct.Equal(newPct) {
			continue
		}
		entry := bonus.History{ID: uuid.NewString(), Telco: telco, OldPct: oldPct, NewPct: newPct, Actor: actor, Timestamp: time.Now()}
		m.bonusHistory = append(m.bonusHistory, entry)
		history = append(history, entry)
		m.bonusSettings.PercentageByTelco[telco] = newPct
	}
	return history, nil
}

func (m *MemStore) ListBonusHistory(ctx context.Context) ([]bonus.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bonus.History, len(m.bonusHistory))
	for i := range m.bonusHistory {
		out[len(m.bonusHistory)-1-i] = m.bonusHistory[i]
	}
	return out, nil
}

func (m *MemStore) ListReconciliationNeeded(ctx context.Context) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Transaction
	for _, t := range m.transactions {
		if t.ReconciliationNeeded {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemStore) FetchPIN(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dealerPIN, nil
}
