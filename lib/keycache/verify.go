// Copyright 2026 The Foreman Authors
// SPDX-License-Identifier: Apache-2.0

package keycache

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/foreman-ai/foreman/lib/apierror"
	"github.com/foreman-ai/foreman/lib/clock"
	"github.com/foreman-ai/foreman/lib/scope"
)

// Verifier checks bearer credentials against the cached key set and
// produces the verified identity the scope gate consumes. Verification
// is the cryptographic step only; what the identity may do is decided
// downstream by lib/scope.
type Verifier struct {
	cache *Cache
	clock clock.Clock
}

// NewVerifier creates a Verifier over the given cache. A nil clk
// defaults to clock.Real().
func NewVerifier(cache *Cache, clk clock.Clock) *Verifier {
	if clk == nil {
		clk = clock.Real()
	}
	return &Verifier{cache: cache, clock: clk}
}

// rsaMethods is the accepted signature algorithm set. The issuer signs
// with RSA; accepting anything else (in particular "none" or HMAC with
// a public key as the secret) would be a verification bypass.
var rsaMethods = []string{"RS256", "RS384", "RS512"}

// Verify parses and verifies a bearer token. On success it returns the
// identity carried by the claims: the subject and the space-separated
// scope string.
//
// A key-fetch failure (no cached keys and the issuer unreachable)
// surfaces as an apierror.KeyFetch error; every other failure is an
// ordinary "credential rejected" error for the transport to map to an
// authentication failure.
func (v *Verifier) Verify(ctx context.Context, token string) (scope.Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token header has no key id")
		}

		keys, err := v.cache.Keys(ctx)
		if err != nil {
			return nil, err
		}
		key, ok := keys.Key(kid)
		if !ok {
			return nil, fmt.Errorf("no verification key with id %q", kid)
		}
		return key, nil
	}, jwt.WithValidMethods(rsaMethods), jwt.WithExpirationRequired(), jwt.WithTimeFunc(v.clock.Now))

	if err != nil {
		if apierror.KindOf(err) == apierror.KeyFetch {
			// Not the caller's fault: no key material exists at all.
			return scope.Identity{}, err
		}
		return scope.Identity{}, fmt.Errorf("verifying credential: %w", err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return scope.Identity{}, fmt.Errorf("credential has no subject claim")
	}

	scopes, _ := claims["scope"].(string)
	return scope.Identity{Subject: subject, Scopes: scopes}, nil
}
