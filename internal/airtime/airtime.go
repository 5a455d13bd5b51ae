// Package airtime dispatches airtime to a destination phone number through
// one of two upstream providers, behind a single Dispatcher interface that
// applies the home-telco fallback and commission policy.
package airtime

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/daima/airtime-gateway/internal/carrier"
	"github.com/daima/airtime-gateway/internal/ledger"
	"github.com/daima/airtime-gateway/internal/phone"
)

// Provider identifies which upstream actually fulfilled (or attempted to
// fulfill) a dispatch. "aggregator-fallback" distinguishes a home-telco
// dispatch that fell back to the aggregator from a non-home-telco dispatch
// that went to the aggregator as its only option.
type Provider string

const (
	ProviderDealerDirect       Provider = "dealer-direct"
	ProviderAggregator         Provider = "aggregator"
	ProviderAggregatorFallback Provider = "aggregator-fallback"
)

// Outcome is a single upstream provider's dispatch attempt result.
type Outcome struct {
	OK                      bool
	Provider                Provider
	Raw                     string // free-text or JSON the provider returned, for the error store
	ProviderTxnID           string
	AuthoritativeBalance    decimal.Decimal
	HasAuthoritativeBalance bool
}

// Upstream is a single provider-level dispatcher: sends one amount to one
// destination and reports what happened. A provider-level rejection
// (insufficient balance, rejected PIN) is Outcome.OK == false with Raw
// carrying the detail. An error return means the call could not be completed
// at all: a transport failure or timeout that outlasted the HTTP client's
// retries, or an unreadable response body.
type Upstream interface {
	Dispatch(ctx context.Context, destination string, amountMinorOrMajor decimal.Decimal) (Outcome, error)
}

// Result is the outcome the lifecycle engine acts on: which provider
// ultimately serviced the request (if any), whether a fallback was
// attempted, and the commission to credit the aggregator float on success.
type Result struct {
	OK                      bool
	Provider                Provider
	FallbackAttempted       bool
	Raw                     string
	ProviderTxnID           string
	AuthoritativeBalance    decimal.Decimal
	HasAuthoritativeBalance bool
	Commission              decimal.Decimal

	// ReconciliationWarning is non-empty when the provider's own
	// post-dispatch balance disagreed with the locally computed one before
	// it was overwritten to the authoritative value.
	ReconciliationWarning string
}

const commissionRate = "0.04"

// Dispatcher implements the fallback and commission policy.
type Dispatcher struct {
	dealerDirect Upstream
	aggregator   Upstream
	floats       ledger.FloatLedger
}

func New(dealerDirect, aggregator Upstream, floats ledger.FloatLedger) *Dispatcher {
	return &Dispatcher{dealerDirect: dealerDirect, aggregator: aggregator, floats: floats}
}

// Dispatch sends dispatchedAmount (original amount plus bonus) to
// destination for the given carrier, applying the home-telco fallback: a
// failed dealer-direct attempt credits the home float back in full before
// trying the aggregator. originalAmount (pre-bonus) is the commission base.
func (d *Dispatcher) Dispatch(ctx context.Context, destination string, carrierLabel carrier.Carrier, dispatchedAmount, originalAmount decimal.Decimal) (Result, error) {
	if carrierLabel == carrier.Home {
		return d.dispatchHomeTelco(ctx, destination, dispatchedAmount, originalAmount)
	}
	return d.dispatchAggregatorOnly(ctx, destination, dispatchedAmount, originalAmount)
}

// dispatchHomeTelco debits the home float before trying dealer-direct so the
// float never carries more than one outstanding debit per attempt in flight;
// a failed attempt is credited back in full before the next one is tried, so
// a fully-failed dispatch nets to zero on both floats.
func (d *Dispatcher) dispatchHomeTelco(ctx context.Context, destination string, dispatchedAmount, originalAmount decimal.Decimal) (Result, error) {
	if _, err := d.floats.Adjust(ctx, ledger.HomeFloat, dispatchedAmount.Neg()); err != nil {
		return Result{}, err
	}

	outcome, err := d.dealerDirect.Dispatch(ctx, destination, dispatchedAmount)
	if err != nil {
		outcome = Outcome{Provider: ProviderDealerDirect, Raw: err.Error()}
	}
	if outcome.OK {
		result := Result{
			OK:                      true,
			Provider:                ProviderDealerDirect,
			Raw:                     outcome.Raw,
			ProviderTxnID:           outcome.ProviderTxnID,
			AuthoritativeBalance:    outcome.AuthoritativeBalance,
			HasAuthoritativeBalance: outcome.HasAuthoritativeBalance,
		}
		if outcome.HasAuthoritativeBalance {
			result.ReconciliationWarning = d.reconcileHomeFloat(ctx, outcome.AuthoritativeBalance)
		}
		return result, nil
	}

	if _, err := d.floats.Adjust(ctx, ledger.HomeFloat, dispatchedAmount); err != nil {
		return Result{}, err
	}

	aggregatorDestination, err := phone.Aggregator(destination)
	if err != nil {
		return Result{FallbackAttempted: true}, err
	}
	fallback, fallbackResult, err := d.attemptAggregator(ctx, aggregatorDestination, dispatchedAmount, originalAmount)
	fallbackResult.FallbackAttempted = true
	if err != nil {
		return fallbackResult, err
	}
	if !fallback.OK {
		fallbackResult.Raw = outcome.Raw + " | " + fallback.Raw
		fallbackResult.Provider = ProviderAggregatorFallback
		return fallbackResult, nil
	}

	fallbackResult.Provider = ProviderAggregatorFallback
	return fallbackResult, nil
}

// reconcileHomeFloat compares the locally-debited home float balance against
// the provider's own authoritative post-dispatch balance and overwrites the
// local value to match, returning a non-empty warning string on any drift.
func (d *Dispatcher) reconcileHomeFloat(ctx context.Context, authoritative decimal.Decimal) string {
	local, err := d.floats.Balance(ctx, ledger.HomeFloat)
	warning := ""
	if err == nil && !local.Equal(authoritative) {
		warning = fmt.Sprintf("home float drift: local=%s authoritative=%s", local.String(), authoritative.String())
	}
	if err := d.floats.Overwrite(ctx, ledger.HomeFloat, authoritative); err != nil {
		if warning == "" {
			warning = fmt.Sprintf("failed to overwrite home float with authoritative balance: %v", err)
		}
	}
	return warning
}

func (d *Dispatcher) dispatchAggregatorOnly(ctx context.Context, destination string, dispatchedAmount, originalAmount decimal.Decimal) (Result, error) {
	outcome, result, err := d.attemptAggregator(ctx, destination, dispatchedAmount, originalAmount)
	result.Provider = ProviderAggregator
	_ = outcome
	return result, err
}

// attemptAggregator debits the aggregator float, dispatches, and either
// credits the retention commission on success or credits the debit back on
// failure.
func (d *Dispatcher) attemptAggregator(ctx context.Context, destination string, dispatchedAmount, originalAmount decimal.Decimal) (Outcome, Result, error) {
	if _, err := d.floats.Adjust(ctx, ledger.AggregatorFloat, dispatchedAmount.Neg()); err != nil {
		return Outcome{}, Result{}, err
	}

	outcome, err := d.aggregator.Dispatch(ctx, destination, dispatchedAmount)
	if err != nil {
		if _, creditErr := d.floats.Adjust(ctx, ledger.AggregatorFloat, dispatchedAmount); creditErr != nil {
			return Outcome{}, Result{}, creditErr
		}
		return Outcome{}, Result{}, err
	}
	if !outcome.OK {
		if _, err := d.floats.Adjust(ctx, ledger.AggregatorFloat, dispatchedAmount); err != nil {
			return Outcome{}, Result{}, err
		}
		return outcome, Result{OK: false, Raw: outcome.Raw}, nil
	}

	commission := originalAmount.Mul(mustDecimal(commissionRate))
	if _, err := d.floats.Adjust(ctx, ledger.AggregatorFloat, commission); err != nil {
		return Outcome{}, Result{}, err
	}

	return outcome, Result{
		OK:            true,
		Raw:           outcome.Raw,
		ProviderTxnID: outcome.ProviderTxnID,
		Commission:    commission,
	}, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
