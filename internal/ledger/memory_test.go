package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMemLedger_AdjustAutoInitializesToZero(t *testing.T) {
	l := NewMemory()
	balance, err := l.Adjust(context.Background(), HomeFloat, decimal.NewFromInt(-50))
	if err == nil {
		t.Fatalf("expected ErrInsufficientFloat debiting from zero, got balance %s", balance)
	}
}

func TestMemLedger_CreditThenDebit(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	balance, err := l.Adjust(ctx, HomeFloat, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance = %s, want 1000", balance)
	}

	balance, err = l.Adjust(ctx, HomeFloat, decimal.NewFromInt(-400))
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(600)) {
		t.Errorf("balance = %s, want 600", balance)
	}
}

func TestMemLedger_NeverGoesNegative(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	if _, err := l.Adjust(ctx, AggregatorFloat, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if _, err := l.Adjust(ctx, AggregatorFloat, decimal.NewFromInt(-150)); err != ErrInsufficientFloat {
		t.Errorf("expected ErrInsufficientFloat, got %v", err)
	}
	balance, _ := l.Balance(ctx, AggregatorFloat)
	if !balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance after rejected debit = %s, want unchanged 100", balance)
	}
}

func TestMemLedger_Overwrite(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	if err := l.Overwrite(ctx, HomeFloat, decimal.NewFromFloat(4900.00)); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	balance, _ := l.Balance(ctx, HomeFloat)
	if !balance.Equal(decimal.NewFromFloat(4900.00)) {
		t.Errorf("balance = %s, want 4900.00", balance)
	}
}
