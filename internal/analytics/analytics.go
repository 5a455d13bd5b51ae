// Package analytics posts best-effort notifications to a separate
// analytics/reporting service. The call never blocks the caller and never
// returns a failure the caller is expected to act on; failures are reported
// through a callback so the caller can log them under its own error
// taxonomy instead.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// requestTimeout bounds each notification attempt; the analytics service is
// explicitly out of the gateway's critical path, so this stays short.
const requestTimeout = 5 * time.Second

// Notifier posts sale/reversal events to the configured analytics service.
// A Notifier built with an empty baseURL is a deliberate no-op: the
// analytics collaborator is optional.
type Notifier struct {
	http    *http.Client
	baseURL string
	log     zerolog.Logger
}

func New(baseURL string, httpClient *http.Client, log zerolog.Logger) *Notifier {
	return &Notifier{
		http:    httpClient,
		baseURL: baseURL,
		log:     log.With().Str("component", "analytics").Logger(),
	}
}

// Event is the envelope posted to the analytics service: an event type tag
// plus an arbitrary JSON-able payload, so new event shapes never require a
// change to this package.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Notify posts event synchronously and returns any failure. Callers on the
// critical path should use Async instead; Notify exists so tests and
// non-blocking callers (e.g. a queue worker) can observe the outcome directly.
func (n *Notifier) Notify(ctx context.Context, event Event) error {
	if n.baseURL == "" {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("analytics: encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("analytics: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("analytics: service returned %d", resp.StatusCode)
	}
	return nil
}

// Async fires Notify in a background goroutine against a context detached
// from ctx's cancellation: the caller's request may finish, or its HTTP
// context may be cancelled, well before the analytics service responds, and
// this must never gate the core flow. It carries its own fixed deadline
// budget and reports any failure through onError rather than blocking the
// caller on it.
func (n *Notifier) Async(ctx context.Context, event Event, onError func(error)) {
	if n.baseURL == "" {
		return
	}
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := n.Notify(notifyCtx, event); err != nil {
			n.log.Warn().Err(err).Str("eventType", event.Type).Msg("analytics notification failed")
			if onError != nil {
				onError(err)
			}
		}
	}()
}
