// Package creds holds the two process-local, time-bounded credential caches
// the gateway needs: the airtime bearer token and the dealer service PIN.
// Neither is persisted; both die with the process.
package creds

import (
	"context"
	"sync"
	"time"
)

// entry is a cached value with an expiry.
type entry struct {
	value     string
	expiresAt time.Time
}

func (e *entry) valid(now time.Time) bool {
	return e != nil && now.Before(e.expiresAt)
}

// TokenFetcher performs the HTTP Basic grant-credentials exchange against the
// airtime provider's grant URL and reports the advertised token lifetime.
type TokenFetcher interface {
	FetchToken(ctx context.Context) (token string, lifetime time.Duration, err error)
}

// PINFetcher reads the dealer service PIN from the settings store.
type PINFetcher interface {
	FetchPIN(ctx context.Context) (string, error)
}

// safetyMargin is subtracted from the advertised token lifetime so a cached
// token is never handed out a moment before it actually expires upstream.
const safetyMargin = 60 * time.Second

// defaultTokenTTL is used when the fetcher is unable to report a lifetime.
const defaultTokenTTL = time.Hour

// pinTTL is the fixed cache lifetime for the dealer service PIN.
const pinTTL = 10 * time.Minute

// Cache holds the two independent caches behind a single mutex. Readers and
// writers both take the lock; a single mutex keeps this straightforward and
// safe for single-flight reuse.
type Cache struct {
	mu sync.Mutex

	tokenFetcher TokenFetcher
	pinFetcher   PINFetcher

	token *entry
	pin   *entry

	now func() time.Time
}

func New(tokenFetcher TokenFetcher, pinFetcher PINFetcher) *Cache {
	return &Cache{
		tokenFetcher: tokenFetcher,
		pinFetcher:   pinFetcher,
		now:          time.Now,
	}
}

// BearerToken returns a valid bearer token, fetching and caching a new one if
// the cached entry is missing or expired.
func (c *Cache) BearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token.valid(now) {
		return c.token.value, nil
	}

	token, lifetime, err := c.tokenFetcher.FetchToken(ctx)
	if err != nil {
		return "", err
	}
	if lifetime <= safetyMargin {
		lifetime = defaultTokenTTL
	}
	c.token = &entry{value: token, expiresAt: now.Add(lifetime - safetyMargin)}
	return token, nil
}

// InvalidateToken clears the cached bearer token, forcing the next call to
// BearerToken to fetch a fresh one.
func (c *Cache) InvalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}

// ServicePIN returns the raw dealer service PIN, cached for a fixed 10 minutes.
func (c *Cache) ServicePIN(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.pin.valid(now) {
		return c.pin.value, nil
	}

	pin, err := c.pinFetcher.FetchPIN(ctx)
	if err != nil {
		return "", err
	}
	c.pin = &entry{value: pin, expiresAt: now.Add(pinTTL)}
	return pin, nil
}
