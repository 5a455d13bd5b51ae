package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// TokenFetcher performs the rail's OAuth client-credentials grant. It
// satisfies internal/creds.TokenFetcher so the credential cache can hold the
// rail's bearer token alongside the airtime dealer's.
type TokenFetcher struct {
	http           *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	log            zerolog.Logger
}

func NewTokenFetcher(cfg Config, httpClient *http.Client, log zerolog.Logger) *TokenFetcher {
	return &TokenFetcher{
		http:           httpClient,
		baseURL:        cfg.BaseURL,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		log:            log.With().Str("component", "payment.token").Logger(),
	}
}

// FetchToken requests a new OAuth token via HTTP Basic against the rail's
// grant endpoint and reports the token's advertised lifetime.
func (f *TokenFetcher) FetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, fmt.Errorf("payment: build token request: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(f.consumerKey + ":" + f.consumerSecret))
	req.Header.Set("Authorization", "Basic "+credentials)

	resp, err := f.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("payment: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("payment: token request returned %d", resp.StatusCode)
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", 0, fmt.Errorf("payment: decode token response: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", 0, fmt.Errorf("payment: token response missing access_token")
	}

	seconds, err := strconv.Atoi(decoded.ExpiresIn)
	if err != nil || seconds <= 0 {
		f.log.Warn().Str("expires_in", decoded.ExpiresIn).Msg("invalid expires_in, defaulting to 1h")
		seconds = int(time.Hour.Seconds())
	}

	return decoded.AccessToken, time.Duration(seconds) * time.Second, nil
}
