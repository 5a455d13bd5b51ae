package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemLedger is an in-memory FloatLedger, used by tests and as the simplest
// possible implementation of the single-entity-transaction semantics Adjust
// requires. A mutex here plays the role pgx's row lock plays in Ledger.
type MemLedger struct {
	mu       sync.Mutex
	balances map[FloatName]decimal.Decimal
}

func NewMemory() *MemLedger {
	return &MemLedger{balances: map[FloatName]decimal.Decimal{}}
}

func (m *MemLedger) Adjust(ctx context.Context, name FloatName, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.balances[name]
	if !ok {
		current = decimal.Zero
	}
	candidate := current.Add(delta)
	if candidate.IsNegative() {
		return decimal.Zero, ErrInsufficientFloat
	}
	m.balances[name] = candidate
	return candidate, nil
}

func (m *MemLedger) Overwrite(ctx context.Context, name FloatName, authoritative decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[name] = authoritative
	return nil
}

func (m *MemLedger) Balance(ctx context.Context, name FloatName) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[name]; ok {
		return b, nil
	}
	return decimal.Zero, nil
}
