// Package httpapi is the inbound HTTP surface: the payment rail's push and
// callback endpoints, the bonus-settings admin API, and a handful of
// operator-facing read endpoints.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/daima/airtime-gateway/internal/bonus"
	"github.com/daima/airtime-gateway/internal/lifecycle"
	"github.com/daima/airtime-gateway/internal/payment"
	"github.com/daima/airtime-gateway/internal/store"
)

// Engine is the subset of *lifecycle.Engine this package drives.
type Engine interface {
	HandleInitiation(ctx context.Context, req lifecycle.InitiationRequest) (lifecycle.InitiationResult, error)
	HandlePaymentCallback(ctx context.Context, cb payment.PaymentCallback) error
	HandleReversalCallback(ctx context.Context, cb payment.ReversalCallback) error
	HandleReversalTimeout(ctx context.Context, cb payment.ReversalCallback) error
}

// SettingsStore is the bonus-admin persistence boundary: current settings,
// updates with history, and a read-back of that history.
type SettingsStore interface {
	CurrentSettings(ctx context.Context) (bonus.Settings, error)
	UpdateSettings(ctx context.Context, next bonus.Settings, actor string) ([]bonus.History, error)
	ListBonusHistory(ctx context.Context) ([]bonus.History, error)
}

// StatusStore backs the transaction-status and reconciliation endpoints.
type StatusStore interface {
	GetRequest(ctx context.Context, requestID string) (store.Request, error)
	GetTransaction(ctx context.Context, requestID string) (store.Transaction, error)
	ListPendingReversals(ctx context.Context) ([]store.ReversalPending, error)
	ListReconciliationNeeded(ctx context.Context) ([]store.Transaction, error)
}

// Server holds every collaborator the router's handlers close over.
type Server struct {
	engine   Engine
	settings SettingsStore
	status   StatusStore
	log      zerolog.Logger

	pushLimiter     RateLimiter
	callbackLimiter RateLimiter
}

// Config bundles the constructor's optional rate limits; zero values fall
// back to the package defaults.
type Config struct {
	PushLimiter     RateLimiter // defaults to 20/min per source IP
	CallbackLimiter RateLimiter // defaults to 100/min per source IP
}

func New(engine Engine, settings SettingsStore, status StatusStore, log zerolog.Logger, cfg Config) *Server {
	pushLimiter := cfg.PushLimiter
	if pushLimiter == nil {
		pushLimiter = newTokenBucket(20, time.Minute)
	}
	callbackLimiter := cfg.CallbackLimiter
	if callbackLimiter == nil {
		callbackLimiter = newTokenBucket(100, time.Minute)
	}

	return &Server{
		engine:          engine,
		settings:        settings,
		status:          status,
		log:             log.With().Str("component", "httpapi").Logger(),
		pushLimiter:     pushLimiter,
		callbackLimiter: callbackLimiter,
	}
}

// Router assembles the chi mux: logging and panic recovery on every request,
// permissive CORS for the admin/status endpoints, and per-endpoint rate
// limiting on the two rail-facing endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		MaxAge:           300,
		AllowCredentials: false,
	}))

	r.Get("/ping", s.handlePing)
	r.Get("/", s.handleHealth)

	r.With(rateLimitMiddleware(s.pushLimiter)).Post("/stk-push", s.handleSTKPush)
	r.With(rateLimitMiddleware(s.callbackLimiter)).Post("/stk-callback", s.handleSTKCallback)
	r.Post("/daraja-reversal-result", s.handleReversalResult)
	r.Post("/daraja-reversal-timeout", s.handleReversalTimeout)

	r.Get("/transaction-status/{id}", s.handleTransactionStatus)

	r.Get("/api/airtime-bonuses/current", s.handleBonusCurrent)
	r.Post("/api/airtime-bonuses/update", s.handleBonusUpdate)
	r.Get("/api/airtime-bonuses/history", s.handleBonusHistory)

	r.Get("/api/reconciliations/pending", s.handleReconciliationsPending)

	return r
}

// loggingMiddleware logs one line per request at Info level with status,
// method, path, and latency.
func loggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
