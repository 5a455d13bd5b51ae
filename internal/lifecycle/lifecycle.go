// Package lifecycle is the transaction-lifecycle engine: the state machine
// spanning initiation, payment confirmation, dispatch with fallback, float
// accounting, and reversal. It is the orchestrator that wires together
// internal/carrier, internal/phone, internal/bonus, internal/airtime,
// internal/payment, and internal/store.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/daima/airtime-gateway/internal/airtime"
	"github.com/daima/airtime-gateway/internal/analytics"
	"github.com/daima/airtime-gateway/internal/bonus"
	"github.com/daima/airtime-gateway/internal/carrier"
	"github.com/daima/airtime-gateway/internal/payment"
	"github.com/daima/airtime-gateway/internal/phone"
	"github.com/daima/airtime-gateway/internal/store"
)

// MinAmount and MaxAmount bound an admissible request amount.
var (
	MinAmount = decimal.NewFromInt(5)
	MaxAmount = decimal.NewFromInt(5000)
)

// ErrInvalidAmount is returned when a requested amount falls outside [5, 5000].
var ErrInvalidAmount = errors.New("lifecycle: amount outside admissible range [5, 5000]")

// ErrUnknownCarrier is returned when the destination classifies as carrier.Unknown.
var ErrUnknownCarrier = errors.New("lifecycle: destination carrier is not supported")

// Store is the persistence boundary the engine depends on, satisfied by
// *store.Store (pgx-backed) and *store.MemStore (in-memory, for tests).
type Store interface {
	CreateRequestAndTransaction(ctx context.Context, req store.Request) error
	GetRequest(ctx context.Context, requestID string) (store.Request, error)
	GetTransaction(ctx context.Context, requestID string) (store.Transaction, error)
	TransitionTransaction(ctx context.Context, requestID string, expected store.Status, mutate func(*store.Transaction)) (store.Transaction, error)
	CreateSale(ctx context.Context, sale store.Sale) error
	LogError(ctx context.Context, entry store.ErrorLogEntry) error
	CreateReversalPending(ctx context.Context, r store.ReversalPending) error
	ResolveReversalPending(ctx context.Context, requestID string) error
	FindPendingReversalByConversationID(ctx context.Context, conversationID string) (store.ReversalPending, error)
	CreateReversalFailed(ctx context.Context, r store.ReversalFailed) error
}

// PaymentClient is the subset of *payment.Client the engine drives.
type PaymentClient interface {
	Push(ctx context.Context, token string, req payment.PushRequest) (payment.PushResult, error)
	Reverse(ctx context.Context, token string, req payment.ReversalRequest) (payment.ReversalResult, error)
}

// TokenSource supplies the payment rail's bearer token, satisfied by
// *creds.Cache wired to a payment.TokenFetcher.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// Dispatcher is the subset of *airtime.Dispatcher the engine drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, destination string, carrierLabel carrier.Carrier, dispatchedAmount, originalAmount decimal.Decimal) (airtime.Result, error)
}

// BonusEngine is the subset of *bonus.Engine the engine drives.
type BonusEngine interface {
	Compute(ctx context.Context, telco carrier.Carrier, amount decimal.Decimal) (bonus.Result, error)
}

// AnalyticsNotifier is the fire-and-forget boundary to the external
// analytics service, satisfied by *analytics.Notifier. It is optional: an
// Engine with none configured simply skips notification.
type AnalyticsNotifier interface {
	Async(ctx context.Context, event analytics.Event, onError func(error))
}

// Engine orchestrates the gateway's full transaction lifecycle in response
// to the two inbound events: an initiation request and a payment callback.
type Engine struct {
	store      Store
	payment    PaymentClient
	tokens     TokenSource
	dispatcher Dispatcher
	bonusEng   BonusEngine
	log        zerolog.Logger

	callbackURL string
	analytics   AnalyticsNotifier
}

func New(store Store, paymentClient PaymentClient, tokens TokenSource, dispatcher Dispatcher, bonusEng BonusEngine, callbackURL string, log zerolog.Logger) *Engine {
	return &Engine{
		store:       store,
		payment:     paymentClient,
		tokens:      tokens,
		dispatcher:  dispatcher,
		bonusEng:    bonusEng,
		callbackURL: callbackURL,
		log:         log.With().Str("component", "lifecycle").Logger(),
	}
}

// WithAnalytics attaches the optional analytics notifier, returning the same
// Engine for chaining at construction time in cmd/server/main.go.
func (e *Engine) WithAnalytics(n AnalyticsNotifier) *Engine {
	e.analytics = n
	return e
}

// notifyAnalytics fires a best-effort analytics event if a notifier is
// configured, logging any delivery failure under ANALYTICS_NOTIFICATION_ERROR
// without ever blocking or failing the caller's own flow.
func (e *Engine) notifyAnalytics(ctx context.Context, requestID, eventType string, payload any) {
	if e.analytics == nil {
		return
	}
	e.analytics.Async(ctx, analytics.Event{Type: eventType, Payload: payload}, func(err error) {
		e.logError(ctx, store.ErrorKindAnalyticsNotification, requestID, err.Error())
	})
}

// InitiationRequest is the inbound /stk-push body.
type InitiationRequest struct {
	PhoneNumber string // payer
	Amount      decimal.Decimal
	Recipient   string // destination
}

// InitiationResult is what the /stk-push handler returns to the caller.
type InitiationResult struct {
	Success           bool
	Message           string
	CheckoutRequestID string
}

// HandleInitiation validates the request, classifies the destination
// carrier, and pushes a payment request to the rail. A Request/Transaction
// pair is only written once the rail has accepted the push and returned a
// canonical request id; the Request is then frozen thereafter except for
// status fields.
func (e *Engine) HandleInitiation(ctx context.Context, req InitiationRequest) (InitiationResult, error) {
	if req.Amount.LessThan(MinAmount) || req.Amount.GreaterThan(MaxAmount) {
		return InitiationResult{}, ErrInvalidAmount
	}

	payerNational, err := phone.National(req.PhoneNumber)
	if err != nil {
		return InitiationResult{}, fmt.Errorf("lifecycle: invalid payer phone: %w", err)
	}

	destinationCarrier := carrier.Classify(req.Recipient)
	if destinationCarrier == carrier.Unknown {
		return InitiationResult{}, ErrUnknownCarrier
	}
	destinationNational, err := phone.National(req.Recipient)
	if err != nil {
		return InitiationResult{}, fmt.Errorf("lifecycle: invalid destination phone: %w", err)
	}

	token, err := e.tokens.BearerToken(ctx)
	if err != nil {
		e.logError(ctx, store.ErrorKindSTKPushInitiation, "", fmt.Sprintf("bearer token fetch failed: %v", err))
		return InitiationResult{}, fmt.Errorf("lifecycle: fetch payment token: %w", err)
	}

	pushResult, err := e.payment.Push(ctx, token, payment.PushRequest{
		PayerMSISDN:      payerNational,
		Amount:           req.Amount,
		AccountReference: destinationNational,
		TransactionDesc:  "Airtime top-up",
	})
	if err != nil {
		e.logError(ctx, store.ErrorKindSTKPushInitiation, "", err.Error())
		return InitiationResult{}, fmt.Errorf("lifecycle: push request: %w", err)
	}

	snapshot, _ := json.Marshal(req)
	if err := e.store.CreateRequestAndTransaction(ctx, store.Request{
		RequestID:         pushResult.CheckoutRequestID,
		PayerMSISDN:       payerNational,
		DestinationMSISDN: destinationNational,
		Carrier:           destinationCarrier,
		RequestedAmount:   req.Amount,
		PayloadSnapshot:   string(snapshot),
	}); err != nil {
		e.log.Error().Err(err).Str("request_id", pushResult.CheckoutRequestID).Msg("failed to persist accepted push request")
		return InitiationResult{}, fmt.Errorf("lifecycle: persist request: %w", err)
	}

	return InitiationResult{
		Success:           true,
		Message:           "push accepted",
		CheckoutRequestID: pushResult.CheckoutRequestID,
	}, nil
}

// HandlePaymentCallback is the engine's entry point for the rail's payment
// callback. It is idempotent: a duplicate delivery finds the transaction
// already advanced past PUSH_INITIATED and is a no-op.
func (e *Engine) HandlePaymentCallback(ctx context.Context, cb payment.PaymentCallback) error {
	if !cb.Succeeded() {
		_, err := e.store.TransitionTransaction(ctx, cb.CheckoutRequestID, store.StatusPushInitiated, func(t *store.Transaction) {
			t.Status = store.StatusMpesaPaymentFailed
			t.FulfillmentStatus = cb.ResultDesc
		})
		return e.ignoreDuplicateDelivery(err)
	}

	tx, err := e.store.TransitionTransaction(ctx, cb.CheckoutRequestID, store.StatusPushInitiated, func(t *store.Transaction) {
		t.Status = store.StatusReceivedPendingFulfillment
		t.PaymentReceipt = cb.MpesaReceiptNumber
		t.AmountReceived = cb.Amount
	})
	if err != nil {
		return e.ignoreDuplicateDelivery(err)
	}

	req, err := e.loadRequestContext(ctx, cb.CheckoutRequestID)
	if err != nil {
		return e.fail(ctx, cb.CheckoutRequestID, tx.Status, store.SubKindRuntimeException, err.Error())
	}

	if cb.Amount.LessThan(MinAmount) || cb.Amount.GreaterThan(MaxAmount) || req.Carrier == carrier.Unknown {
		e.logError(ctx, store.ErrorKindAirtimeFulfillment, cb.CheckoutRequestID, "confirmed amount or destination invalid; routing to reversal")
		return e.initiateReversal(ctx, cb.CheckoutRequestID, req, tx.Status)
	}

	return e.fulfill(ctx, cb.CheckoutRequestID, req)
}

func (e *Engine) loadRequestContext(ctx context.Context, requestID string) (store.Request, error) {
	return e.store.GetRequest(ctx, requestID)
}

func (e *Engine) fulfill(ctx context.Context, requestID string, req store.Request) error {
	bonusResult, err := e.bonusEng.Compute(ctx, req.Carrier, req.RequestedAmount)
	if err != nil {
		return e.fail(ctx, requestID, store.StatusReceivedPendingFulfillment, store.SubKindRuntimeException, fmt.Sprintf("bonus computation failed: %v", err))
	}
	dispatchedAmount := req.RequestedAmount.Add(bonusResult.Bonus)

	destination, err := destinationForCarrier(req.Carrier, req.DestinationMSISDN)
	if err != nil {
		return e.fail(ctx, requestID, store.StatusReceivedPendingFulfillment, store.SubKindRuntimeException, err.Error())
	}

	if _, err := e.store.TransitionTransaction(ctx, requestID, store.StatusReceivedPendingFulfillment, func(t *store.Transaction) {
		t.Status = store.StatusFulfillmentInProgress
	}); err != nil {
		return e.ignoreDuplicateDelivery(err)
	}

	result, err := e.dispatcher.Dispatch(ctx, destination, req.Carrier, dispatchedAmount, req.RequestedAmount)
	if err != nil {
		return e.fail(ctx, requestID, store.StatusFulfillmentInProgress, store.SubKindRuntimeException, fmt.Sprintf("dispatch error: %v", err))
	}

	if !result.OK {
		e.logError(ctx, store.ErrorKindAirtimeFulfillment, requestID, result.Raw)
		if _, txErr := e.store.TransitionTransaction(ctx, requestID, store.StatusFulfillmentInProgress, func(t *store.Transaction) {
			t.Status = store.StatusReceivedFulfillmentFailed
			t.FallbackAttempted = result.FallbackAttempted
		}); txErr != nil {
			return e.ignoreDuplicateDelivery(txErr)
		}
		return e.initiateReversal(ctx, requestID, req, store.StatusReceivedFulfillmentFailed)
	}

	if result.ReconciliationWarning != "" {
		e.logError(ctx, store.ErrorKindFloatReconciliation, requestID, result.ReconciliationWarning)
	}

	if err := e.store.CreateSale(ctx, store.Sale{
		RequestID:        requestID,
		OriginalAmount:   req.RequestedAmount,
		Bonus:            bonusResult.Bonus,
		DispatchedAmount: dispatchedAmount,
		Carrier:          req.Carrier,
		ProviderUsed:     string(result.Provider),
		DispatchResult:   result.Raw,
		BonusPercentage:  bonusResult.Percentage,
	}); err != nil {
		e.log.Error().Err(err).Str("request_id", requestID).Msg("failed to persist sale after successful dispatch")
	}

	_, err = e.store.TransitionTransaction(ctx, requestID, store.StatusFulfillmentInProgress, func(t *store.Transaction) {
		t.Status = store.StatusCompletedAndFulfilled
		t.ProviderUsed = string(result.Provider)
		t.FallbackAttempted = result.FallbackAttempted
	})
	if err == nil {
		e.notifyAnalytics(ctx, requestID, "sale.completed", map[string]any{
			"requestID":        requestID,
			"originalAmount":   req.RequestedAmount,
			"dispatchedAmount": dispatchedAmount,
			"providerUsed":     string(result.Provider),
		})
	}
	return e.ignoreDuplicateDelivery(err)
}

// destinationForCarrier renders destinationMSISDN in the wire format the
// winning dispatch path needs: dealer-direct format when the home telco
// might be tried, aggregator (E.164) format otherwise. On the home path the
// dispatcher re-renders the dealer-direct form as E.164 before any
// aggregator fallback.
func destinationForCarrier(c carrier.Carrier, destinationMSISDN string) (string, error) {
	if c == carrier.Home {
		return phone.DealerDirect(destinationMSISDN)
	}
	return phone.Aggregator(destinationMSISDN)
}

// initiateReversal submits a reversal request against the rail and records
// the outcome. It is reached either because the confirmed payment failed
// fulfillment, or because the confirmed amount/destination turned out
// invalid after confirmation. preState is the transaction's actual current
// status, supplied by the caller, since it differs between those two entry
// points.
func (e *Engine) initiateReversal(ctx context.Context, requestID string, req store.Request, preState store.Status) error {
	token, err := e.tokens.BearerToken(ctx)
	if err != nil {
		return e.fail(ctx, requestID, preState, store.SubKindRuntimeException, fmt.Sprintf("reversal token fetch failed: %v", err))
	}

	reversalReq := payment.ReversalRequest{
		OriginalRequestID: requestID,
		Amount:            req.RequestedAmount,
		Remarks:           "Airtime fulfillment failed",
		Occasion:          "reversal",
	}
	reversalResult, err := e.payment.Reverse(ctx, token, reversalReq)
	if err != nil {
		e.logError(ctx, store.ErrorKindAirtimeFulfillment, requestID, fmt.Sprintf("reversal submission error: %v", err))
		_, txErr := e.store.TransitionTransaction(ctx, requestID, preState, func(t *store.Transaction) {
			t.Status = store.StatusReversalInitiationFailed
			t.ReconciliationNeeded = true
		})
		return e.ignoreDuplicateDelivery(txErr)
	}

	if !reversalResult.Accepted {
		_, txErr := e.store.TransitionTransaction(ctx, requestID, preState, func(t *store.Transaction) {
			t.Status = store.StatusReversalInitiationFailed
			t.ReconciliationNeeded = true
		})
		if err := e.store.CreateReversalFailed(ctx, store.ReversalFailed{
			RequestID:      requestID,
			Reason:         reversalResult.ResponseDesc,
			OriginalAmount: req.RequestedAmount,
		}); err != nil {
			e.log.Error().Err(err).Str("request_id", requestID).Msg("failed to persist reversal-failed record")
		}
		return e.ignoreDuplicateDelivery(txErr)
	}

	reversalSnapshot, _ := json.Marshal(reversalReq)
	if err := e.store.CreateReversalPending(ctx, store.ReversalPending{
		RequestID:           requestID,
		ConversationID:      reversalResult.OriginatorConversationID,
		OriginalAmount:      req.RequestedAmount,
		PayerMSISDN:         req.PayerMSISDN,
		ReversalRequestData: string(reversalSnapshot),
	}); err != nil {
		e.log.Error().Err(err).Str("request_id", requestID).Msg("failed to persist reversal-pending record")
	}

	_, txErr := e.store.TransitionTransaction(ctx, requestID, preState, func(t *store.Transaction) {
		t.Status = store.StatusReversalPendingConfirmation
	})
	if txErr == nil {
		e.notifyAnalytics(ctx, requestID, "reversal.submitted", map[string]any{
			"requestID": requestID,
			"amount":    req.RequestedAmount,
		})
	}
	return e.ignoreDuplicateDelivery(txErr)
}

// HandleReversalCallback processes the rail's reversal-result callback. The
// callback identifies the reversal by the rail's own conversation id, not our
// request id, so the pending-reversal record created at submission time is
// the only way to resolve which transaction this belongs to.
func (e *Engine) HandleReversalCallback(ctx context.Context, cb payment.ReversalCallback) error {
	pending, err := e.store.FindPendingReversalByConversationID(ctx, cb.OriginatorConversationID)
	if err != nil {
		e.logError(ctx, store.ErrorKindSTKCallback, "", fmt.Sprintf("reversal callback for unknown conversation id %s: %v", cb.OriginatorConversationID, err))
		return nil
	}
	requestID := pending.RequestID

	if cb.Succeeded() {
		_, txErr := e.store.TransitionTransaction(ctx, requestID, store.StatusReversalPendingConfirmation, func(t *store.Transaction) {
			t.Status = store.StatusReversedSuccessfully
		})
		if txErr == nil {
			_ = e.store.ResolveReversalPending(ctx, requestID)
		}
		return e.ignoreDuplicateDelivery(txErr)
	}

	_, txErr := e.store.TransitionTransaction(ctx, requestID, store.StatusReversalPendingConfirmation, func(t *store.Transaction) {
		t.Status = store.StatusReversalFailedConfirmation
		t.ReconciliationNeeded = true
	})
	if txErr == nil {
		_ = e.store.CreateReversalFailed(ctx, store.ReversalFailed{
			RequestID: requestID,
			Reason:    cb.ResultDesc,
		})
	}
	return e.ignoreDuplicateDelivery(txErr)
}

// HandleReversalTimeout processes the rail's reversal-timeout callback. Like
// HandleReversalCallback, the timeout envelope carries the rail's conversation
// id rather than our request id.
func (e *Engine) HandleReversalTimeout(ctx context.Context, cb payment.ReversalCallback) error {
	pending, err := e.store.FindPendingReversalByConversationID(ctx, cb.OriginatorConversationID)
	if err != nil {
		e.logError(ctx, store.ErrorKindSTKCallback, "", fmt.Sprintf("reversal timeout for unknown conversation id %s: %v", cb.OriginatorConversationID, err))
		return nil
	}
	requestID := pending.RequestID

	_, txErr := e.store.TransitionTransaction(ctx, requestID, store.StatusReversalPendingConfirmation, func(t *store.Transaction) {
		t.Status = store.StatusReversalTimedOut
		t.ReconciliationNeeded = true
	})
	if txErr == nil {
		_ = e.store.CreateReversalFailed(ctx, store.ReversalFailed{
			RequestID: requestID,
			Reason:    "reversal timed out in rail queue",
		})
	}
	return e.ignoreDuplicateDelivery(txErr)
}

// ignoreDuplicateDelivery treats ErrStatePrecondition as success: the
// transaction already advanced past the expected pre-state, which means an
// earlier delivery of the same callback already applied this transition.
func (e *Engine) ignoreDuplicateDelivery(err error) error {
	if errors.Is(err, store.ErrStatePrecondition) {
		return nil
	}
	return err
}

// fail routes a transaction to CRITICAL_FULFILLMENT_ERROR from its actual
// current state. preState must be the transaction's real current status, not
// assumed, since steps 3-6 can throw from more than one status.
func (e *Engine) fail(ctx context.Context, requestID string, preState store.Status, subKind store.ErrorSubKind, detail string) error {
	e.logError(ctx, store.ErrorKindCriticalFulfillment, requestID, detail)
	_, err := e.store.TransitionTransaction(ctx, requestID, preState, func(t *store.Transaction) {
		t.Status = store.StatusCriticalFulfillmentError
		t.ReconciliationNeeded = true
	})
	if err != nil && !errors.Is(err, store.ErrStatePrecondition) {
		e.log.Error().Err(err).Str("request_id", requestID).Msg("failed to record critical fulfillment error")
	}
	return fmt.Errorf("lifecycle: %s", detail)
}

func (e *Engine) logError(ctx context.Context, kind store.ErrorKind, requestID, raw string) {
	if err := e.store.LogError(ctx, store.ErrorLogEntry{
		Kind:       kind,
		RequestID:  requestID,
		RawContext: raw,
		Timestamp:  time.Now(),
	}); err != nil {
		e.log.Error().Err(err).Str("request_id", requestID).Msg("failed to write error log entry")
	}
}
