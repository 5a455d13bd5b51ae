package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daima/airtime-gateway/internal/carrier"
	"github.com/daima/airtime-gateway/internal/lifecycle"
	"github.com/daima/airtime-gateway/internal/payment"
	"github.com/daima/airtime-gateway/internal/store"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fakeEngine struct {
	mu sync.Mutex

	initiationResult lifecycle.InitiationResult
	initiationErr    error

	paymentCallbackErr  error
	reversalCallbackErr error
	reversalTimeoutErr  error

	lastInitiation       lifecycle.InitiationRequest
	lastPaymentCallback  payment.PaymentCallback
	lastReversalCallback payment.ReversalCallback
	lastReversalTimeout  payment.ReversalCallback

	// called, when non-nil, receives a value every time any Handle* method
	// runs, so tests can wait for the background goroutine httpapi spawns
	// around callback processing instead of racing on the fields above.
	called chan struct{}
}

func (f *fakeEngine) notify() {
	if f.called != nil {
		f.called <- struct{}{}
	}
}

func (f *fakeEngine) HandleInitiation(ctx context.Context, req lifecycle.InitiationRequest) (lifecycle.InitiationResult, error) {
	f.mu.Lock()
	f.lastInitiation = req
	f.mu.Unlock()
	defer f.notify()
	return f.initiationResult, f.initiationErr
}

func (f *fakeEngine) HandlePaymentCallback(ctx context.Context, cb payment.PaymentCallback) error {
	f.mu.Lock()
	f.lastPaymentCallback = cb
	f.mu.Unlock()
	defer f.notify()
	return f.paymentCallbackErr
}

func (f *fakeEngine) HandleReversalCallback(ctx context.Context, cb payment.ReversalCallback) error {
	f.mu.Lock()
	f.lastReversalCallback = cb
	f.mu.Unlock()
	defer f.notify()
	return f.reversalCallbackErr
}

func (f *fakeEngine) HandleReversalTimeout(ctx context.Context, cb payment.ReversalCallback) error {
	f.mu.Lock()
	f.lastReversalTimeout = cb
	f.mu.Unlock()
	defer f.notify()
	return f.reversalTimeoutErr
}

func (f *fakeEngine) getLastPaymentCallback() payment.PaymentCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPaymentCallback
}

func (f *fakeEngine) getLastReversalCallback() payment.ReversalCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReversalCallback
}

func (f *fakeEngine) getLastReversalTimeout() payment.ReversalCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReversalTimeout
}

func newTestServer(t *testing.T, engine *fakeEngine, st *store.MemStore) *Server {
	t.Helper()
	return New(engine, st, st, zerolog.Nop(), Config{
		PushLimiter:     newTokenBucket(1000, time.Hour),
		CallbackLimiter: newTokenBucket(1000, time.Hour),
	})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestHandleSTKPush_Success(t *testing.T) {
	engine := &fakeEngine{initiationResult: lifecycle.InitiationResult{
		Success:           true,
		Message:           "accepted",
		CheckoutRequestID: "ws_CO_123",
	}}
	srv := newTestServer(t, engine, store.NewMemory())

	body := bytes.NewBufferString(`{"phoneNumber":"0712345678","amount":100,"recipient":"0712345678"}`)
	req := httptest.NewRequest(http.MethodPost, "/stk-push", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	decodeBody(t, rec, &out)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "ws_CO_123", out["checkoutRequestID"])
	assert.True(t, engine.lastInitiation.Amount.Equal(d("100")))
}

func TestHandleSTKPush_InvalidAmountReturns400(t *testing.T) {
	engine := &fakeEngine{initiationErr: lifecycle.ErrInvalidAmount}
	srv := newTestServer(t, engine, store.NewMemory())

	body := bytes.NewBufferString(`{"phoneNumber":"0712345678","amount":1,"recipient":"0712345678"}`)
	req := httptest.NewRequest(http.MethodPost, "/stk-push", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSTKPush_RailRejectionReturns502(t *testing.T) {
	engine := &fakeEngine{initiationErr: assertError("rail down")}
	srv := newTestServer(t, engine, store.NewMemory())

	body := bytes.NewBufferString(`{"phoneNumber":"0712345678","amount":100,"recipient":"0712345678"}`)
	req := httptest.NewRequest(http.MethodPost, "/stk-push", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// TestHandleSTKCallback_AlwaysAcksWithHTTP200 asserts the rail never sees a
// non-2xx or non-zero ResultCode from this endpoint, even when the inner
// handler errors. A failure here must not trigger rail-side retries.
func TestHandleSTKCallback_AlwaysAcksWithHTTP200(t *testing.T) {
	engine := &fakeEngine{paymentCallbackErr: assertError("transition failed"), called: make(chan struct{}, 1)}
	srv := newTestServer(t, engine, store.NewMemory())

	payload := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/stk-callback", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	decodeBody(t, rec, &out)
	assert.EqualValues(t, 0, out["ResultCode"])

	select {
	case <-engine.called:
	case <-time.After(time.Second):
		t.Fatal("HandlePaymentCallback was never invoked")
	}
	assert.Equal(t, "ws_CO_1", engine.getLastPaymentCallback().CheckoutRequestID)
}

func TestHandleSTKCallback_MalformedBodyStillAcks(t *testing.T) {
	engine := &fakeEngine{}
	srv := newTestServer(t, engine, store.NewMemory())

	req := httptest.NewRequest(http.MethodPost, "/stk-callback", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReversalResult_DecodesAndAlwaysAcks(t *testing.T) {
	engine := &fakeEngine{called: make(chan struct{}, 1)}
	srv := newTestServer(t, engine, store.NewMemory())

	payload := []byte(`{"Result":{"ConversationID":"c1","OriginatorConversationID":"conv-1","ResultCode":0,"ResultDesc":"ok"}}`)
	req := httptest.NewRequest(http.MethodPost, "/daraja-reversal-result", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-engine.called:
	case <-time.After(time.Second):
		t.Fatal("HandleReversalCallback was never invoked")
	}
	assert.Equal(t, "conv-1", engine.getLastReversalCallback().OriginatorConversationID)
}

func TestHandleReversalTimeout_DecodesAndAlwaysAcks(t *testing.T) {
	engine := &fakeEngine{called: make(chan struct{}, 1)}
	srv := newTestServer(t, engine, store.NewMemory())

	payload := []byte(`{"Result":{"OriginatorConversationID":"conv-2","ResultCode":1,"ResultDesc":"timeout"}}`)
	req := httptest.NewRequest(http.MethodPost, "/daraja-reversal-timeout", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-engine.called:
	case <-time.After(time.Second):
		t.Fatal("HandleReversalTimeout was never invoked")
	}
	assert.Equal(t, "conv-2", engine.getLastReversalTimeout().OriginatorConversationID)
}

func TestHandleTransactionStatus_NotFound(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, store.NewMemory())

	req := httptest.NewRequest(http.MethodGet, "/transaction-status/unknown", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTransactionStatus_Found(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.CreateRequestAndTransaction(context.Background(), store.Request{
		RequestID:         "ws_CO_9",
		PayerMSISDN:       "0700000001",
		DestinationMSISDN: "0712345678",
		Carrier:           carrier.Safaricom,
		RequestedAmount:   d("100"),
	}))
	srv := newTestServer(t, &fakeEngine{}, st)

	req := httptest.NewRequest(http.MethodGet, "/transaction-status/ws_CO_9", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	decodeBody(t, rec, &out)
	assert.Equal(t, string(store.StatusPushInitiated), out["status"])
	assert.Equal(t, "0712345678", out["recipient"])
}

func TestBonusCurrentAndUpdate_RoundTrip(t *testing.T) {
	st := store.NewMemory()
	srv := newTestServer(t, &fakeEngine{}, st)

	update := bytes.NewBufferString(`{"safaricomPercentage":"5","africastalkingPercentage":"3","actor":"ops-team"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/airtime-bonuses/update", update)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/airtime-bonuses/current", nil)
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var out map[string]any
	decodeBody(t, rec2, &out)
	assert.Equal(t, "5", out["safaricomPercentage"])
	assert.Equal(t, "3", out["africastalkingPercentage"])
}

func TestBonusUpdate_NegativePercentageRejected(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, store.NewMemory())

	body := bytes.NewBufferString(`{"safaricomPercentage":"-1","africastalkingPercentage":"3","actor":"ops-team"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/airtime-bonuses/update", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBonusUpdate_MissingActorRejected(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, store.NewMemory())

	body := bytes.NewBufferString(`{"safaricomPercentage":"5","africastalkingPercentage":"3"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/airtime-bonuses/update", body)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBonusHistory_ReflectsUpdates(t *testing.T) {
	st := store.NewMemory()
	srv := newTestServer(t, &fakeEngine{}, st)

	update := bytes.NewBufferString(`{"safaricomPercentage":"5","africastalkingPercentage":"3","actor":"ops-team"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/airtime-bonuses/update", update)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/airtime-bonuses/history", nil)
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var out map[string]any
	decodeBody(t, rec2, &out)
	history, ok := out["history"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, history)
}

func TestReconciliationsPending_CombinesBothCollections(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.CreateReversalPending(context.Background(), store.ReversalPending{
		RequestID:      "ws_CO_5",
		ConversationID: "conv-5",
		OriginalAmount: d("100"),
		PayerMSISDN:    "0700000001",
	}))
	srv := newTestServer(t, &fakeEngine{}, st)

	req := httptest.NewRequest(http.MethodGet, "/api/reconciliations/pending", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]any
	decodeBody(t, rec, &out)
	pending, ok := out["pendingReversals"].([]any)
	require.True(t, ok)
	assert.Len(t, pending, 1)
	assert.Contains(t, out, "reconciliationNeeded")
}

func TestPingAndHealth(t *testing.T) {
	srv := newTestServer(t, &fakeEngine{}, store.NewMemory())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestRateLimitMiddleware_RejectsOnceQuotaSpent(t *testing.T) {
	engine := &fakeEngine{initiationResult: lifecycle.InitiationResult{Success: true, CheckoutRequestID: "x"}}
	srv := New(engine, store.NewMemory(), store.NewMemory(), zerolog.Nop(), Config{
		PushLimiter:     newTokenBucket(1, time.Hour),
		CallbackLimiter: newTokenBucket(1000, time.Hour),
	})

	body := func() *bytes.Buffer {
		return bytes.NewBufferString(`{"phoneNumber":"0712345678","amount":100,"recipient":"0712345678"}`)
	}

	req1 := httptest.NewRequest(http.MethodPost, "/stk-push", body())
	rec1 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec1, req1)
	assert.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/stk-push", body())
	req2.RemoteAddr = req1.RemoteAddr
	rec2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertError(msg string) error { return simpleError(msg) }
