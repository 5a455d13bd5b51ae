package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotify_PostsEventToConfiguredURL(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, srv.Client(), zerolog.Nop())
	err := n.Notify(context.Background(), Event{Type: "sale", Payload: map[string]any{"requestID": "ws_CO_1"}})

	require.NoError(t, err)
	assert.Equal(t, "sale", received.Type)
}

func TestNotify_EmptyBaseURLIsNoOp(t *testing.T) {
	n := New("", http.DefaultClient, zerolog.Nop())
	err := n.Notify(context.Background(), Event{Type: "sale"})
	assert.NoError(t, err)
}

func TestNotify_UpstreamErrorStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(srv.URL, srv.Client(), zerolog.Nop())
	err := n.Notify(context.Background(), Event{Type: "sale"})
	assert.Error(t, err)
}

func TestAsync_ReportsFailureThroughCallbackWithoutBlocking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := New(srv.URL, srv.Client(), zerolog.Nop())

	var mu sync.Mutex
	var gotErr error
	done := make(chan struct{})

	start := time.Now()
	n.Async(context.Background(), Event{Type: "reversal"}, func(err error) {
		mu.Lock()
		gotErr = err
		mu.Unlock()
		close(done)
	})
	assert.Less(t, time.Since(start), 50*time.Millisecond, "Async must return immediately")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onError callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Error(t, gotErr)
}

func TestAsync_EmptyBaseURLNeverFiresCallback(t *testing.T) {
	n := New("", http.DefaultClient, zerolog.Nop())
	n.Async(context.Background(), Event{Type: "sale"}, func(error) {
		t.Fatal("onError must not fire when analytics is disabled")
	})
}
