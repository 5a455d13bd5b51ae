// Package ledger tracks the two prepaid balances (float) held with the
// dispatch providers, debited and credited as airtime is dispatched.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FloatName identifies one of the two prepaid balances.
type FloatName string

const (
	HomeFloat       FloatName = "home_telco_float"
	AggregatorFloat FloatName = "aggregator_float"
)

// ErrInsufficientFloat is returned when a debit would drive a balance negative.
var ErrInsufficientFloat = errors.New("ledger: insufficient float")

// FloatLedger is the float-accounting boundary the airtime dispatcher depends
// on. *Ledger (pgx-backed) and *MemLedger (in-memory, for tests) both satisfy it.
type FloatLedger interface {
	Adjust(ctx context.Context, name FloatName, delta decimal.Decimal) (decimal.Decimal, error)
	Overwrite(ctx context.Context, name FloatName, authoritative decimal.Decimal) error
	Balance(ctx context.Context, name FloatName) (decimal.Decimal, error)
}

// Ledger exposes transactional debit/credit of float balances.
type Ledger struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func New(pool *pgxpool.Pool, log zerolog.Logger) *Ledger {
	return &Ledger{pool: pool, log: log.With().Str("component", "ledger").Logger()}
}

// Adjust applies delta to name's balance inside a single-entity transaction,
// auto-initializing missing records to zero, and returns the post-transaction
// balance. If current+delta would be negative, the transaction is rolled back
// and ErrInsufficientFloat is returned.
func (l *Ledger) Adjust(ctx context.Context, name FloatName, delta decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal

	err := pgx.BeginTxFunc(ctx, l.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		var current decimal.Decimal
		row := tx.QueryRow(ctx, `SELECT balance FROM float_balances WHERE telco_float_name = $1 FOR UPDATE`, name)
		err := row.Scan(&current)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			current = decimal.Zero
			if _, err := tx.Exec(ctx, `INSERT INTO float_balances (telco_float_name, balance) VALUES ($1, $2)`, name, current); err != nil {
				return fmt.Errorf("ledger: init balance: %w", err)
			}
		case err != nil:
			return fmt.Errorf("ledger: read balance: %w", err)
		}

		candidate := current.Add(delta)
		if candidate.IsNegative() {
			return ErrInsufficientFloat
		}

		if _, err := tx.Exec(ctx, `UPDATE float_balances SET balance = $1, last_updated = now() WHERE telco_float_name = $2`, candidate, name); err != nil {
			return fmt.Errorf("ledger: write balance: %w", err)
		}
		newBalance = candidate
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	l.log.Debug().Str("float", string(name)).Str("delta", delta.String()).Str("balance", newBalance.String()).Msg("float adjusted")
	return newBalance, nil
}

// Overwrite forcibly sets name's balance to authoritative, used when a
// provider response carries its own notion of the post-dispatch balance. Any
// drift from the locally computed balance should be logged by the caller as
// a reconciliation warning before calling this.
func (l *Ledger) Overwrite(ctx context.Context, name FloatName, authoritative decimal.Decimal) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO float_balances (telco_float_name, balance, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (telco_float_name) DO UPDATE SET balance = $2, last_updated = now()`,
		name, authoritative)
	if err != nil {
		return fmt.Errorf("ledger: overwrite balance: %w", err)
	}
	return nil
}

// Balance returns the current balance for name, zero if no record exists yet.
func (l *Ledger) Balance(ctx context.Context, name FloatName) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.pool.QueryRow(ctx, `SELECT balance FROM float_balances WHERE telco_float_name = $1`, name).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: read balance: %w", err)
	}
	return balance, nil
}
