package airtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DealerTokenFetcher performs the dealer's HTTP-Basic client-credentials
// grant. It satisfies internal/creds.TokenFetcher.
type DealerTokenFetcher struct {
	http    *http.Client
	grantURL string
	key     string
	secret  string
	log     zerolog.Logger
}

func NewDealerTokenFetcher(cfg DealerConfig, httpClient *http.Client, log zerolog.Logger) *DealerTokenFetcher {
	return &DealerTokenFetcher{
		http:     httpClient,
		grantURL: cfg.GrantURL,
		key:      cfg.Key,
		secret:   cfg.Secret,
		log:      log.With().Str("component", "airtime.dealer.token").Logger(),
	}
}

func (f *DealerTokenFetcher) FetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.grantURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("airtime: build dealer token request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(f.key+":"+f.secret)))

	resp, err := f.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("airtime: dealer token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("airtime: dealer token request returned %d", resp.StatusCode)
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", 0, fmt.Errorf("airtime: decode dealer token response: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", 0, fmt.Errorf("airtime: dealer token response missing access_token")
	}

	lifetime := time.Duration(decoded.ExpiresIn) * time.Second
	if lifetime <= 0 {
		f.log.Warn().Int("expires_in", decoded.ExpiresIn).Msg("invalid expires_in, defaulting to 1h")
		lifetime = time.Hour
	}
	return decoded.AccessToken, lifetime, nil
}
