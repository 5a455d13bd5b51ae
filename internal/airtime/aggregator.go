package airtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/daima/airtime-gateway/internal/httpclient"
)

// AggregatorConfig holds the third-party aggregator's credentials.
type AggregatorConfig struct {
	BaseURL  string
	APIKey   string
	Username string
}

// Aggregator dispatches airtime through the third-party aggregator's batch
// API, always sending a single-recipient batch.
type Aggregator struct {
	cfg  AggregatorConfig
	http *httpclient.Client
	log  zerolog.Logger
}

func NewAggregator(cfg AggregatorConfig, httpClient *http.Client, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		cfg: cfg,
		http: &httpclient.Client{
			HTTP:    httpClient,
			BaseURL: cfg.BaseURL,
			Log:     log.With().Str("component", "airtime.aggregator").Logger(),
		},
		log: log.With().Str("component", "airtime.aggregator").Logger(),
	}
}

// Dispatch sends amount to destination, which must already be in E.164
// aggregator format (e.g. "+254712345678").
func (a *Aggregator) Dispatch(ctx context.Context, destination string, amount decimal.Decimal) (Outcome, error) {
	body := map[string]any{
		"username": a.cfg.Username,
		"recipients": []map[string]any{
			{
				"phoneNumber":  destination,
				"amount":       amount.StringFixed(2),
				"currencyCode": "KES",
			},
		},
	}

	resp, err := a.http.DoJSON(ctx, http.MethodPost, "/airtime/send", body, map[string]string{
		"apikey": a.cfg.APIKey,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("airtime: aggregator dispatch request: %w", err)
	}

	var decoded struct {
		Responses []struct {
			Status       string `json:"status"`
			ErrorMessage string `json:"errorMessage"`
			RequestID    string `json:"requestId"`
		} `json:"responses"`
	}
	if err := decodeJSON(resp.Body, &decoded); err != nil {
		return Outcome{}, fmt.Errorf("airtime: decode aggregator response: %w", err)
	}
	if len(decoded.Responses) == 0 {
		return Outcome{Provider: ProviderAggregator, Raw: string(resp.Body), OK: false}, nil
	}

	first := decoded.Responses[0]
	return Outcome{
		Provider:      ProviderAggregator,
		Raw:           fmt.Sprintf("status=%s errorMessage=%s", first.Status, first.ErrorMessage),
		OK:            first.Status == "Sent" && first.ErrorMessage == "None",
		ProviderTxnID: first.RequestID,
	}, nil
}
