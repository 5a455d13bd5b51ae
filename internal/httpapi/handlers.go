package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/daima/airtime-gateway/internal/bonus"
	"github.com/daima/airtime-gateway/internal/carrier"
	"github.com/daima/airtime-gateway/internal/lifecycle"
	"github.com/daima/airtime-gateway/internal/payment"
	"github.com/daima/airtime-gateway/internal/store"
)

// callbackProcessingTimeout bounds the background engine call spawned after
// a rail callback is acked, so a stuck fulfillment attempt cannot leak a
// goroutine indefinitely.
const callbackProcessingTimeout = 25 * time.Second

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("pong"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("airtime-gateway: ok"))
}

// stkPushRequest is the /stk-push wire body.
type stkPushRequest struct {
	PhoneNumber string          `json:"phoneNumber"`
	Amount      decimal.Decimal `json:"amount"`
	Recipient   string          `json:"recipient"`
}

func (s *Server) handleSTKPush(w http.ResponseWriter, r *http.Request) {
	var body stkPushRequest
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "malformed request body"})
		return
	}

	result, err := s.engine.HandleInitiation(r.Context(), lifecycle.InitiationRequest{
		PhoneNumber: body.PhoneNumber,
		Amount:      body.Amount,
		Recipient:   body.Recipient,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, lifecycle.ErrInvalidAmount) || errors.Is(err, lifecycle.ErrUnknownCarrier) {
			status = http.StatusBadRequest
		}
		s.log.Warn().Err(err).Msg("stk push initiation failed")
		writeJSON(w, status, map[string]any{"success": false, "message": err.Error()})
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{
		"success":           result.Success,
		"message":           result.Message,
		"checkoutRequestID": result.CheckoutRequestID,
	})
}

// handleSTKCallback always answers 200 with ResultCode 0 regardless of the
// inner outcome. A non-2xx or non-zero ResultCode here makes the rail retry
// delivery, which would re-run HandlePaymentCallback against an already
// transitioned record. The idempotency guard in internal/lifecycle makes
// that safe, but there is no reason to invite the retries at all.
//
// The ack is written before HandlePaymentCallback runs: fulfillment can
// chain an outbound dispatch and a reversal attempt, each with its own
// timeout, and the rail's own ack deadline is far shorter than that chain
// can take in the worst case. Processing continues on a context detached
// from the request, bounded by callbackProcessingTimeout.
func (s *Server) handleSTKCallback(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		s.log.Warn().Err(err).Msg("stk callback: failed to read body")
		writeJSON(w, http.StatusOK, ackBody())
		return
	}

	cb, err := payment.DecodePaymentCallback(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("stk callback: failed to decode envelope")
		writeJSON(w, http.StatusOK, ackBody())
		return
	}

	writeJSON(w, http.StatusOK, ackBody())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callbackProcessingTimeout)
		defer cancel()
		if err := s.engine.HandlePaymentCallback(ctx, cb); err != nil {
			s.log.Error().Err(err).Str("checkoutRequestID", cb.CheckoutRequestID).Msg("stk callback: handling failed")
		}
	}()
}

func (s *Server) handleReversalResult(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		s.log.Warn().Err(err).Msg("reversal result: failed to read body")
		writeJSON(w, http.StatusOK, ackBody())
		return
	}
	cb, err := payment.DecodeReversalCallback(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("reversal result: failed to decode envelope")
		writeJSON(w, http.StatusOK, ackBody())
		return
	}
	writeJSON(w, http.StatusOK, ackBody())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callbackProcessingTimeout)
		defer cancel()
		if err := s.engine.HandleReversalCallback(ctx, cb); err != nil {
			s.log.Error().Err(err).Str("originatorConversationID", cb.OriginatorConversationID).Msg("reversal result: handling failed")
		}
	}()
}

func (s *Server) handleReversalTimeout(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(r)
	if err != nil {
		s.log.Warn().Err(err).Msg("reversal timeout: failed to read body")
		writeJSON(w, http.StatusOK, ackBody())
		return
	}
	cb, err := payment.DecodeReversalCallback(raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("reversal timeout: failed to decode envelope")
		writeJSON(w, http.StatusOK, ackBody())
		return
	}
	writeJSON(w, http.StatusOK, ackBody())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callbackProcessingTimeout)
		defer cancel()
		if err := s.engine.HandleReversalTimeout(ctx, cb); err != nil {
			s.log.Error().Err(err).Str("originatorConversationID", cb.OriginatorConversationID).Msg("reversal timeout: handling failed")
		}
	}()
}

func ackBody() map[string]any {
	return map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"}
}

// terminalStatuses are the states after which a transaction's LastUpdated
// timestamp can stand in as its completion time.
var terminalStatuses = map[store.Status]bool{
	store.StatusCompletedAndFulfilled:      true,
	store.StatusReceivedFulfillmentFailed:  true,
	store.StatusReversedSuccessfully:       true,
	store.StatusReversalInitiationFailed:   true,
	store.StatusReversalFailedConfirmation: true,
	store.StatusReversalTimedOut:           true,
	store.StatusCriticalFulfillmentError:   true,
}

func (s *Server) handleTransactionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	req, err := s.status.GetRequest(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "unknown request id"})
		return
	}
	txn, err := s.status.GetTransaction(ctx, id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "unknown request id"})
		return
	}

	var completedAt *time.Time
	if terminalStatuses[txn.Status] {
		t := txn.LastUpdated
		completedAt = &t
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"requestID":            txn.RequestID,
		"status":               txn.Status,
		"createdAt":            req.InitiatedAt,
		"completedAt":          completedAt,
		"amount":               req.RequestedAmount,
		"recipient":            req.DestinationMSISDN,
		"carrier":              req.Carrier,
		"fulfillmentStatus":    txn.FulfillmentStatus,
		"providerUsed":         txn.ProviderUsed,
		"fallbackAttempted":    txn.FallbackAttempted,
		"paymentReceipt":       txn.PaymentReceipt,
		"amountReceived":       txn.AmountReceived,
		"reconciliationNeeded": txn.ReconciliationNeeded,
	})
}

// bonusSettingsBody is the admin API's fixed two-field wire shape: the home
// telco (Safaricom) gets its own percentage, and every non-home telco shares
// a single "africastalking" percentage, applied uniformly across Airtel,
// Telkom, Equitel and Faiba. The aggregator fronts all of them alike.
type bonusSettingsBody struct {
	SafaricomPercentage       decimal.Decimal `json:"safaricomPercentage"`
	AfricasTalkingPercentage  decimal.Decimal `json:"africastalkingPercentage"`
}

func settingsToWire(s bonus.Settings) bonusSettingsBody {
	return bonusSettingsBody{
		SafaricomPercentage:      s.PercentageByTelco[carrier.Safaricom],
		AfricasTalkingPercentage: s.PercentageByTelco[carrier.Airtel],
	}
}

func wireToSettings(body bonusSettingsBody) bonus.Settings {
	return bonus.Settings{
		PercentageByTelco: map[carrier.Carrier]decimal.Decimal{
			carrier.Safaricom: body.SafaricomPercentage,
			carrier.Airtel:    body.AfricasTalkingPercentage,
			carrier.Telkom:    body.AfricasTalkingPercentage,
			carrier.Equitel:   body.AfricasTalkingPercentage,
			carrier.Faiba:     body.AfricasTalkingPercentage,
		},
	}
}

func (s *Server) handleBonusCurrent(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.CurrentSettings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "failed to load bonus settings"})
		return
	}
	writeJSON(w, http.StatusOK, settingsToWire(settings))
}

type bonusUpdateRequest struct {
	bonusSettingsBody
	Actor string `json:"actor"`
}

func (s *Server) handleBonusUpdate(w http.ResponseWriter, r *http.Request) {
	var body bonusUpdateRequest
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "malformed request body"})
		return
	}
	if body.SafaricomPercentage.IsNegative() || body.AfricasTalkingPercentage.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "bonus percentages must not be negative"})
		return
	}
	if body.Actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "actor is required"})
		return
	}

	history, err := s.settings.UpdateSettings(r.Context(), wireToSettings(body.bonusSettingsBody), body.Actor)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "failed to update bonus settings"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":                   true,
		"safaricomPercentage":       body.SafaricomPercentage,
		"africastalkingPercentage":  body.AfricasTalkingPercentage,
		"changes":                   len(history),
	})
}

func (s *Server) handleBonusHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.settings.ListBonusHistory(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "failed to load bonus history"})
		return
	}

	out := make([]map[string]any, 0, len(history))
	for _, h := range history {
		out = append(out, map[string]any{
			"id":        h.ID,
			"telco":     h.Telco,
			"oldPct":    h.OldPct,
			"newPct":    h.NewPct,
			"actor":     h.Actor,
			"timestamp": h.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) handleReconciliationsPending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.status.ListPendingReversals(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "failed to load pending reversals"})
		return
	}
	needed, err := s.status.ListReconciliationNeeded(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "failed to load reconciliation-needed transactions"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pendingReversals":     pending,
		"reconciliationNeeded": needed,
	})
}
