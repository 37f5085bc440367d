// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const (
	defaultAuthCookieName = "auth_token"
	mockAuthCookieName    = "mock_auth_user"
)

// userClaims are tried in order for the user id.
var userClaims = []string{"email", "username", "sub"}

// bearerToken returns the JWT from the Authorization header or the cookie.
func bearerToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// userIDFromClaims picks the first non-empty identity claim.
func userIDFromClaims(claims jwt.MapClaims) string {
	for _, name := range userClaims {
		if v, ok := claims[name].(string); ok && strings.TrimSpace(v) != "" {
			return normalizeUserID(v)
		}
	}
	return ""
}

// jwtAuthMiddleware verifies the request's JWT with the shared secret (HS256)
// or against the JWKS endpoint. Requests without a valid token proceed as
// anonymous; the handlers decide what anonymous users may do.
func jwtAuthMiddleware(opts Options, next http.Handler) http.Handler {
	var (
		keys        jwk.Set
		lastRefresh time.Time
		mu          sync.RWMutex
	)
	secret := []byte(opts.AuthSecret)

	// refreshKeys fetches the JWKS from the URL.
	refreshKeys := func() error {
		if opts.AuthJWKSURL == "" {
			return fmt.Errorf("no JWKS URL provided")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		set, err := jwk.Fetch(ctx, opts.AuthJWKSURL)
		if err != nil {
			return fmt.Errorf("failed to fetch JWKS: %w", err)
		}

		mu.Lock()
		keys = set
		lastRefresh = time.Now()
		mu.Unlock()
		return nil
	}

	// Initial fetch attempt (non-fatal if it fails, will retry on request)
	if opts.AuthJWKSURL != "" {
		if err := refreshKeys(); err != nil {
			log.Printf("Warning: Failed to fetch JWKS on startup: %v", err)
		}
	} else if len(secret) == 0 {
		log.Println("Warning: Neither an auth secret nor a JWKS URL is configured. All requests will be anonymous.")
	}

	findKey := func(set jwk.Set, id string) (any, error) {
		if set == nil {
			return nil, fmt.Errorf("JWKS not initialized")
		}
		key, ok := set.LookupKeyID(id)
		if !ok {
			return nil, fmt.Errorf("key %s not found in JWKS", id)
		}
		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, fmt.Errorf("failed to materialize key: %w", err)
		}
		return raw, nil
	}

	keyFunc := func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(secret) == 0 {
				return nil, fmt.Errorf("HMAC token but no secret configured")
			}
			return secret, nil
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA, *jwt.SigningMethodEd25519:
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("token missing 'kid' header")
		}

		mu.RLock()
		localKeys := keys
		localLastRefresh := lastRefresh
		mu.RUnlock()

		key, err := findKey(localKeys, kid)
		if err == nil {
			return key, nil
		}
		// Unknown kid: the keys may have rotated. Refresh at most once a minute.
		if time.Since(localLastRefresh) > time.Minute {
			if err := refreshKeys(); err != nil {
				log.Printf("Error refreshing JWKS: %v", err)
				return nil, err
			}
			mu.RLock()
			localKeys = keys
			mu.RUnlock()
			return findKey(localKeys, kid)
		}
		return nil, err
	}

	cookieName := opts.AuthCookieName
	if cookieName == "" {
		cookieName = defaultAuthCookieName
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r, cookieName)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, err := jwt.Parse(tokenString, keyFunc, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			// Log at debug level only, to avoid log spam from random probes.
			if opts.Debug {
				log.Printf("JWT Validation failed: %v", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if userID := userIDFromClaims(claims); userID != "" {
				ctx := context.WithValue(r.Context(), userIDKey, userID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// mockAuthMiddleware takes the user id from a plain cookie. For tests and
// local use only.
func mockAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(mockAuthCookieName)
		if err == nil && cookie.Value != "" {
			ctx := context.WithValue(r.Context(), userIDKey, normalizeUserID(cookie.Value))
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		next.ServeHTTP(w, r)
	})
}
