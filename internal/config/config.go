// Package config is the single place environment variables are read.
// cmd/server/main.go loads a Config once at startup and injects its fields
// into every collaborator constructor; no other package calls os.Getenv.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full set of environment variables the gateway needs.
// Each field's env var name is set explicitly by its envconfig tag
// (e.g. ListenAddr -> LISTEN_ADDR).
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Payment rail.
	ConsumerKey        string `envconfig:"MPESA_CONSUMER_KEY" required:"true"`
	ConsumerSecret     string `envconfig:"MPESA_CONSUMER_SECRET" required:"true"`
	BusinessShortCode  string `envconfig:"MPESA_BUSINESS_SHORTCODE" required:"true"`
	PassKey            string `envconfig:"MPESA_PASSKEY" required:"true"`
	BaseURL            string `envconfig:"MPESA_BASE_URL" required:"true"`
	CallbackURL        string `envconfig:"MPESA_CALLBACK_URL" required:"true"`
	ReversalResultURL  string `envconfig:"MPESA_REVERSAL_RESULT_URL" required:"true"`
	ReversalTimeoutURL string `envconfig:"MPESA_REVERSAL_TIMEOUT_URL" required:"true"`
	Initiator          string `envconfig:"MPESA_INITIATOR" required:"true"`
	InitiatorPassword  string `envconfig:"MPESA_INITIATOR_PASSWORD" required:"true"`
	CertificatePath    string `envconfig:"MPESA_CERTIFICATE_PATH" required:"true"`

	// Dealer-direct airtime (home telco).
	DealerGrantURL    string `envconfig:"DEALER_GRANT_URL" required:"true"`
	DealerAirtimeURL  string `envconfig:"DEALER_AIRTIME_URL" required:"true"`
	DealerKey         string `envconfig:"DEALER_KEY" required:"true"`
	DealerSecret      string `envconfig:"DEALER_SECRET" required:"true"`
	DealerSenderMSISDN string `envconfig:"DEALER_SENDER_MSISDN" required:"true"`

	// Aggregator airtime (every non-home telco).
	AggregatorBaseURL  string `envconfig:"AGGREGATOR_BASE_URL" required:"true"`
	AggregatorAPIKey   string `envconfig:"AGGREGATOR_API_KEY" required:"true"`
	AggregatorUsername string `envconfig:"AGGREGATOR_USERNAME" required:"true"`

	// Optional best-effort collaborators: absent means disabled.
	AnalyticsURL        string `envconfig:"ANALYTICS_URL"`
	OfflineFulfillmentURL string `envconfig:"OFFLINE_FULFILLMENT_URL"`
}

// Load reads and validates the process environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
