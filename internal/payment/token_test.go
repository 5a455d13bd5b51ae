package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenFetcher_FetchToken_ParsesExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/v1/generate", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"abc123","expires_in":"3599"}`))
	}))
	defer server.Close()

	fetcher := NewTokenFetcher(Config{
		BaseURL:        server.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
	}, server.Client(), zerolog.Nop())

	token, lifetime, err := fetcher.FetchToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)
	assert.Equal(t, 3599*time.Second, lifetime)
}

func TestTokenFetcher_FetchToken_DefaultsOnBadExpiry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"abc123","expires_in":"not-a-number"}`))
	}))
	defer server.Close()

	fetcher := NewTokenFetcher(Config{BaseURL: server.URL}, server.Client(), zerolog.Nop())

	_, lifetime, err := fetcher.FetchToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Hour, lifetime)
}

func TestTokenFetcher_FetchToken_RejectsNonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	fetcher := NewTokenFetcher(Config{BaseURL: server.URL}, server.Client(), zerolog.Nop())

	_, _, err := fetcher.FetchToken(context.Background())
	require.Error(t, err)
}

func TestTokenFetcher_FetchToken_RejectsMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"expires_in":"3600"}`))
	}))
	defer server.Close()

	fetcher := NewTokenFetcher(Config{BaseURL: server.URL}, server.Client(), zerolog.Nop())

	_, _, err := fetcher.FetchToken(context.Background())
	require.Error(t, err)
}
