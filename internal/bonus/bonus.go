// Package bonus computes the top-up bonus applied on dispatch, and tracks the
// per-telco percentages that drive it.
package bonus

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/daima/airtime-gateway/internal/carrier"
)

// Settings is the singleton pct-by-telco bonus mapping.
type Settings struct {
	PercentageByTelco map[carrier.Carrier]decimal.Decimal
}

// History is a single change to a telco's bonus percentage.
type History struct {
	ID        string
	Telco     carrier.Carrier
	OldPct    decimal.Decimal
	NewPct    decimal.Decimal
	Actor     string
	Timestamp time.Time
}

// SettingsStore is the persistence boundary for bonus settings and their
// change history, implemented by internal/store against the durable store.
type SettingsStore interface {
	CurrentSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, s Settings, actor string) ([]History, error)
}

// Engine computes bonuses from the current settings.
type Engine struct {
	store SettingsStore
}

func NewEngine(store SettingsStore) *Engine {
	return &Engine{store: store}
}

// Result is the outcome of a bonus computation: the bonus amount and the
// percentage that produced it, for Sale.bonus-percentage.
type Result struct {
	Bonus      decimal.Decimal
	Percentage decimal.Decimal
}

// Compute returns the bonus for dispatching amount on behalf of telco.
//
// Home-telco bonus is amount*pct/100 kept to two decimal places. Non-home
// telco bonus uses the same raw formula, then rounds half-up to the nearest
// integer. This is the single call site where that rounding asymmetry is
// applied.
func (e *Engine) Compute(ctx context.Context, telco carrier.Carrier, amount decimal.Decimal) (Result, error) {
	settings, err := e.store.CurrentSettings(ctx)
	if err != nil {
		return Result{}, err
	}
	pct, ok := settings.PercentageByTelco[telco]
	if !ok || pct.IsZero() {
		return Result{Bonus: decimal.Zero, Percentage: decimal.Zero}, nil
	}

	raw := amount.Mul(pct).Div(decimal.NewFromInt(100))

	if telco == carrier.Home {
		return Result{Bonus: raw.Round(2), Percentage: pct}, nil
	}
	return Result{Bonus: roundHalfUpToInt(raw), Percentage: pct}, nil
}

// roundHalfUpToInt rounds a non-negative decimal to the nearest integer,
// sending exact halves up (0.5 -> 1, 1.5 -> 2), unlike decimal's banker's
// rounding helpers.
func roundHalfUpToInt(d decimal.Decimal) decimal.Decimal {
	half := decimal.NewFromFloat(0.5)
	return d.Add(half).Truncate(0)
}
