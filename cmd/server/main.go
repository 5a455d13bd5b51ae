// Command server wires every collaborator (store, ledger, payment rail,
// airtime providers, bonus engine, lifecycle engine, analytics notifier) and
// starts the HTTP API. It is the only place the process reads the environment
// or touches global state.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/daima/airtime-gateway/internal/airtime"
	"github.com/daima/airtime-gateway/internal/analytics"
	"github.com/daima/airtime-gateway/internal/bonus"
	"github.com/daima/airtime-gateway/internal/config"
	"github.com/daima/airtime-gateway/internal/creds"
	"github.com/daima/airtime-gateway/internal/httpapi"
	"github.com/daima/airtime-gateway/internal/ledger"
	"github.com/daima/airtime-gateway/internal/lifecycle"
	"github.com/daima/airtime-gateway/internal/payment"
	"github.com/daima/airtime-gateway/internal/store"
)

// outboundTimeout bounds every call the gateway makes to the payment rail,
// the airtime providers, and the payment-rail and dealer OAuth grants.
const outboundTimeout = 20 * time.Second

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to the database")
	}
	defer pool.Close()

	certPEM, err := os.ReadFile(cfg.CertificatePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CertificatePath).Msg("failed to read security credential certificate")
	}
	if _, err := payment.LoadCertificate(certPEM); err != nil {
		log.Fatal().Err(err).Msg("security credential certificate is not a usable RSA public key")
	}

	httpClient := &http.Client{Timeout: outboundTimeout}

	st := store.New(pool, log)
	floats := ledger.New(pool, log)

	paymentCfg := payment.Config{
		ConsumerKey:            cfg.ConsumerKey,
		ConsumerSecret:         cfg.ConsumerSecret,
		BusinessCode:           cfg.BusinessShortCode,
		PassKey:                cfg.PassKey,
		BaseURL:                cfg.BaseURL,
		CallbackURL:            cfg.CallbackURL,
		ReversalResultURL:      cfg.ReversalResultURL,
		ReversalTimeoutURL:     cfg.ReversalTimeoutURL,
		Initiator:              cfg.Initiator,
		InitiatorPassword:      cfg.InitiatorPassword,
		SecurityCredentialCert: certPEM,
	}
	paymentClient := payment.New(paymentCfg, httpClient, log)

	railTokens := creds.New(payment.NewTokenFetcher(paymentCfg, httpClient, log), st)

	dealerCfg := airtime.DealerConfig{
		GrantURL:     cfg.DealerGrantURL,
		AirtimeURL:   cfg.DealerAirtimeURL,
		Key:          cfg.DealerKey,
		Secret:       cfg.DealerSecret,
		SenderMSISDN: cfg.DealerSenderMSISDN,
	}
	dealerTokens := creds.New(airtime.NewDealerTokenFetcher(dealerCfg, httpClient, log), st)
	dealerDirect := airtime.NewDealerDirect(dealerCfg, httpClient, dealerTokens, log)

	aggregator := airtime.NewAggregator(airtime.AggregatorConfig{
		BaseURL:  cfg.AggregatorBaseURL,
		APIKey:   cfg.AggregatorAPIKey,
		Username: cfg.AggregatorUsername,
	}, httpClient, log)

	dispatcher := airtime.New(dealerDirect, aggregator, floats)
	bonusEngine := bonus.NewEngine(st)
	notifier := analytics.New(cfg.AnalyticsURL, httpClient, log)

	engine := lifecycle.New(st, paymentClient, railTokens, dispatcher, bonusEngine, cfg.CallbackURL, log).
		WithAnalytics(notifier)

	api := httpapi.New(engine, st, st, log, httpapi.Config{})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	log.Info().Str("addr", cfg.ListenAddr).Msg("airtime gateway listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
