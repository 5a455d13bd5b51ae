package airtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/daima/airtime-gateway/internal/creds"
	"github.com/daima/airtime-gateway/internal/httpclient"
)

// DealerConfig holds the dealer-direct credentials. SenderMSISDN identifies
// the dealer account airtime is dispatched from.
type DealerConfig struct {
	GrantURL    string
	AirtimeURL  string
	Key         string
	Secret      string
	SenderMSISDN string
}

// providerTxnPattern matches the dealer's embedded transaction id, e.g.
// "R250101.0001.000001".
var providerTxnPattern = regexp.MustCompile(`R\d{6}\.\d{4}\.\d{6}`)

// newBalancePattern captures the trailing decimal after "New balance is Ksh.".
var newBalancePattern = regexp.MustCompile(`New balance is Ksh\.\s*([0-9]+(?:\.[0-9]+)?)`)

// DealerDirect dispatches airtime directly against the home telco's dealer
// API, authenticating with a cached bearer token and a base64-encoded
// service PIN fetched from the store.
type DealerDirect struct {
	cfg   DealerConfig
	http  *httpclient.Client
	creds *creds.Cache
	log   zerolog.Logger
}

func NewDealerDirect(cfg DealerConfig, httpClient *http.Client, credsCache *creds.Cache, log zerolog.Logger) *DealerDirect {
	return &DealerDirect{
		cfg: cfg,
		http: &httpclient.Client{
			HTTP:    httpClient,
			BaseURL: cfg.AirtimeURL,
			Log:     log.With().Str("component", "airtime.dealer").Logger(),
		},
		creds: credsCache,
		log:   log.With().Str("component", "airtime.dealer").Logger(),
	}
}

// Dispatch sends amount (major units; converted here to minor units per the
// wire contract) to destination, which must already be in dealer-direct
// format (nine digits, no leading zero or country code).
func (d *DealerDirect) Dispatch(ctx context.Context, destination string, amount decimal.Decimal) (Outcome, error) {
	token, err := d.creds.BearerToken(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("airtime: dealer bearer token: %w", err)
	}
	pin, err := d.creds.ServicePIN(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("airtime: dealer service pin: %w", err)
	}
	encodedPIN := base64.StdEncoding.EncodeToString([]byte(pin))

	minorUnits := amount.Mul(decimal.NewFromInt(100)).Truncate(0)

	body := map[string]any{
		"senderMsisdn":   d.cfg.SenderMSISDN,
		"amount":         minorUnits.IntPart(),
		"servicePin":     encodedPIN,
		"receiverMsisdn": destination,
	}

	resp, err := d.http.DoJSON(ctx, http.MethodPost, "", body, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("airtime: dealer dispatch request: %w", err)
	}

	var decoded struct {
		ResponseStatus string `json:"responseStatus"`
		Description    string `json:"responseDescription"`
	}
	if err := decodeJSON(resp.Body, &decoded); err != nil {
		return Outcome{}, fmt.Errorf("airtime: decode dealer response: %w", err)
	}

	out := Outcome{
		Provider: ProviderDealerDirect,
		Raw:      decoded.Description,
		OK:       decoded.ResponseStatus == "200",
	}
	if out.OK {
		if txn := providerTxnPattern.FindString(decoded.Description); txn != "" {
			out.ProviderTxnID = txn
		}
		if match := newBalancePattern.FindStringSubmatch(decoded.Description); len(match) == 2 {
			if bal, err := decimal.NewFromString(match[1]); err == nil {
				out.AuthoritativeBalance = bal
				out.HasAuthoritativeBalance = true
			}
		}
	}
	return out, nil
}
