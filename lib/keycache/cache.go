// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package keycache

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/foreman-ai/foreman/lib/apierror"
	"github.com/foreman-ai/foreman/lib/clock"
)

// maxDocumentSize bounds the JWKS response body. Real key sets are a
// few kilobytes; 1 MB is far beyond any legitimate document.
const maxDocumentSize = 1024 * 1024

// DefaultFreshness is the freshness window used when Config leaves it
// zero.
const DefaultFreshness = time.Hour

// Config configures a Cache.
type Config struct {
	// JWKSURL is the full URL of the issuer's key-set document.
	// Required.
	JWKSURL string

	// Freshness is how long a fetched set is served without a refresh
	// attempt. Defaults to DefaultFreshness.
	Freshness time.Duration

	// HTTPClient performs the fetches. Defaults to a client with a
	// 10-second timeout.
	HTTPClient *http.Client

	// Clock is the time source. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Cache is the process-wide holder of verification key material. One
// instance is constructed at startup and injected into the verifier.
type Cache struct {
	jwksURL    string
	freshness  time.Duration
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger

	mu        sync.Mutex
	keys      *KeySet
	fetchedAt time.Time
}

// New creates an empty Cache. The first Keys call populates it.
func New(cfg Config) *Cache {
	if cfg.JWKSURL == "" {
		panic("keycache: JWKSURL is required")
	}
	if cfg.Logger == nil {
		panic("keycache: Logger is required")
	}

	freshness := cfg.Freshness
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Cache{
		jwksURL:    cfg.JWKSURL,
		freshness:  freshness,
		httpClient: httpClient,
		clock:      clk,
		logger:     cfg.Logger,
	}
}

// Keys returns a usable key set: the cached one when fresh, a freshly
// fetched one when the cache is empty or past its freshness window,
// or the stale cached one when the refresh fails. The error is a
// key-fetch error only when no cached set exists and the fetch failed
// too.
func (c *Cache) Keys(ctx context.Context) (*KeySet, error) {
	c.mu.Lock()
	cached := c.keys
	age := c.clock.Now().Sub(c.fetchedAt)
	c.mu.Unlock()

	if cached != nil && age < c.freshness {
		return cached, nil
	}

	// The fetch happens outside the mutex: holding a lock across a
	// network call would serialize every verification behind the
	// issuer's latency. Concurrent refreshes are tolerated.
	fetched, err := c.fetch(ctx)
	if err != nil {
		if cached != nil {
			c.logger.Warn("verification key refresh failed; serving stale set",
				"error", err,
				"age", age.Round(time.Second).String(),
			)
			return cached, nil
		}
		return nil, apierror.KeyFetchf(err, "no verification keys available")
	}

	c.mu.Lock()
	c.keys = fetched
	c.fetchedAt = c.clock.Now()
	c.mu.Unlock()

	c.logger.Info("verification keys refreshed", "keys", fetched.Len())
	return fetched, nil
}

// fetch retrieves and parses the JWKS document.
func (c *Cache) fetch(ctx context.Context) (*KeySet, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", c.jwksURL, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", c.jwksURL, response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("reading key document: %w", err)
	}

	keySet, err := ParseKeySet(body)
	if err != nil {
		return nil, fmt.Errorf("parsing key document: %w", err)
	}
	return keySet, nil
}

// KeySet is an immutable parsed verification key set. Lookups are by
// key ID; Raw preserves the exact document bytes as fetched.
type KeySet struct {
	raw  []byte
	keys map[string]*rsa.PublicKey
}

// Key returns the public key with the given ID.
func (s *KeySet) Key(kid string) (*rsa.PublicKey, bool) {
	key, ok := s.keys[kid]
	return key, ok
}

// Len returns the number of usable keys in the set.
func (s *KeySet) Len() int { return len(s.keys) }

// Raw returns the document bytes the set was parsed from.
func (s *KeySet) Raw() []byte { return s.raw }

// jwk is one entry of the JWKS document. Only the RSA fields foreman
// verifies with are modeled; unknown fields are ignored.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// ParseKeySet parses a JWKS document into a KeySet. Non-RSA entries,
// non-signing entries, and entries without a key ID are skipped; the
// document is an error only when it is malformed or yields zero
// usable keys.
func ParseKeySet(document []byte) (*KeySet, error) {
	var parsed struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.Unmarshal(document, &parsed); err != nil {
		return nil, fmt.Errorf("invalid JWKS document: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, entry := range parsed.Keys {
		if entry.Kty != "RSA" || entry.Kid == "" {
			continue
		}
		if entry.Use != "" && entry.Use != "sig" {
			continue
		}
		publicKey, err := entry.rsaPublicKey()
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", entry.Kid, err)
		}
		keys[entry.Kid] = publicKey
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("document contains no usable RSA signing keys")
	}

	// Copy so later mutation of the caller's buffer cannot alias the
	// cached document.
	raw := make([]byte, len(document))
	copy(raw, document)

	return &KeySet{raw: raw, keys: keys}, nil
}

// rsaPublicKey materializes the modulus and exponent into an
// rsa.PublicKey.
func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	modulusBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	exponentBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	if len(modulusBytes) == 0 || len(exponentBytes) == 0 {
		return nil, fmt.Errorf("empty modulus or exponent")
	}

	exponent := new(big.Int).SetBytes(exponentBytes)
	if !exponent.IsInt64() || exponent.Int64() > int64(^uint32(0)) {
		return nil, fmt.Errorf("exponent out of range")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulusBytes),
		E: int(exponent.Int64()),
	}, nil
}
