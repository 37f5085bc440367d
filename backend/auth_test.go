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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-test-secret-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

// whoAmI serves the user id the middleware put in the context.
var whoAmI = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(getUserID(r)))
})

func TestJWTAuthMiddleware(t *testing.T) {
	h := jwtAuthMiddleware(Options{AuthSecret: testSecret, AuthCookieName: "session"}, whoAmI)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{
			name:   "bearer email",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"email": "Coach@Example.com", "exp": exp}),
			want:   "coach@example.com",
		},
		{
			name:   "cookie",
			cookie: signToken(t, testSecret, jwt.MapClaims{"email": "a@example.com", "exp": exp}),
			want:   "a@example.com",
		},
		{
			name:   "username fallback",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"username": "scorer", "exp": exp}),
			want:   "scorer",
		},
		{
			name:   "sub fallback",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "user-42", "email": "", "exp": exp}),
			want:   "user-42",
		},
		{
			name:   "expired",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"email": "a@example.com", "exp": time.Now().Add(-time.Hour).Unix()}),
			want:   "",
		},
		{
			name:   "no expiry",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{"email": "a@example.com"}),
			want:   "",
		},
		{
			name:   "wrong secret",
			header: "Bearer " + signToken(t, "another-secret-another-secret!!", jwt.MapClaims{"email": "a@example.com", "exp": exp}),
			want:   "",
		},
		{
			name:   "garbage",
			header: "Bearer not.a.token",
			want:   "",
		},
		{
			name: "anonymous",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "session", Value: tt.cookie})
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if got := rr.Body.String(); got != tt.want {
				t.Errorf("user = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJWTAuthMiddlewareDefaultCookie(t *testing.T) {
	h := jwtAuthMiddleware(Options{AuthSecret: testSecret}, whoAmI)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{
		Name:  defaultAuthCookieName,
		Value: signToken(t, testSecret, jwt.MapClaims{"email": "b@example.com", "exp": time.Now().Add(time.Minute).Unix()}),
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Body.String(); got != "b@example.com" {
		t.Errorf("user = %q", got)
	}
}

func TestMockAuthMiddleware(t *testing.T) {
	h := mockAuthMiddleware(whoAmI)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: mockAuthCookieName, Value: " User@Example.com "})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Body.String(); got != "user@example.com" {
		t.Errorf("user = %q", got)
	}
}
