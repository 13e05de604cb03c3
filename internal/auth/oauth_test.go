package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func newTestManager(tokenURL string, opts ...Option) *Manager {
	cfg := &oauth2.Config{
		ClientID:     "client-123",
		ClientSecret: "shh",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://login.example.com/authorize",
			TokenURL: tokenURL,
		},
		Scopes: []string{"openid", "offline_access"},
	}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewManager(cfg, opts...)
}

func writeToken(w http.ResponseWriter, access, refresh string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func TestIsExpiredBoundary(t *testing.T) {
	m := newTestManager("http://unused")

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"ten minutes left", signedToken(t, fixedNow.Add(10*time.Minute)), false},
		{"six minutes left", signedToken(t, fixedNow.Add(6*time.Minute)), false},
		{"exactly five minutes left", signedToken(t, fixedNow.Add(5*time.Minute)), true},
		{"two minutes left", signedToken(t, fixedNow.Add(2*time.Minute)), true},
		{"already expired", signedToken(t, fixedNow.Add(-time.Hour)), true},
		{"garbage", "not-a-jwt", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.IsExpired(tt.token); got != tt.want {
				t.Errorf("IsExpired = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsExpiredWithoutExpClaim(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if !newTestManager("http://unused").IsExpired(tok) {
		t.Error("token without exp should be treated as expired")
	}
}

func TestEnsureValidSkipsRefreshForFreshToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeToken(w, "new", "new-refresh")
	}))
	defer srv.Close()

	m := newTestManager(srv.URL)
	pair := model.TokenPair{AccessToken: signedToken(t, fixedNow.Add(time.Hour)), RefreshToken: "r"}

	got, refreshed, err := m.EnsureValid(context.Background(), pair)
	if err != nil {
		t.Fatalf("EnsureValid returned error: %v", err)
	}
	if refreshed {
		t.Error("did not expect a refresh")
	}
	if got != pair {
		t.Errorf("pair changed: %+v", got)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no token endpoint calls, got %d", calls.Load())
	}
}

func TestEnsureValidRefreshesExpiredToken(t *testing.T) {
	fresh := signedToken(t, fixedNow.Add(time.Hour))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "old-refresh" {
			t.Errorf("unexpected refresh form: %v", r.Form)
		}
		// No rotation: the old refresh token must be kept.
		writeToken(w, fresh, "")
	}))
	defer srv.Close()

	m := newTestManager(srv.URL)
	pair := model.TokenPair{AccessToken: signedToken(t, fixedNow.Add(time.Minute)), RefreshToken: "old-refresh"}

	got, refreshed, err := m.EnsureValid(context.Background(), pair)
	if err != nil {
		t.Fatalf("EnsureValid returned error: %v", err)
	}
	if !refreshed {
		t.Fatal("expected refreshed=true")
	}
	if got.AccessToken != fresh {
		t.Errorf("access token not replaced")
	}
	if got.RefreshToken != "old-refresh" {
		t.Errorf("refresh token = %q, want old-refresh", got.RefreshToken)
	}
}

func TestEnsureValidWithoutRefreshToken(t *testing.T) {
	m := newTestManager("http://unused")
	_, _, err := m.EnsureValid(context.Background(), model.TokenPair{AccessToken: "expired"})
	if !errors.Is(err, apperr.ErrAuthentication) {
		t.Fatalf("expected authentication failure, got %v", err)
	}
}

func TestRefreshRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	}))
	defer srv.Close()

	_, err := newTestManager(srv.URL).Refresh(context.Background(), "revoked", "client-123")
	var aerr *apperr.AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthError, got %T %v", err, err)
	}
	if aerr.Status != http.StatusBadRequest || aerr.Code != "invalid_grant" {
		t.Errorf("unexpected auth error fields: %+v", aerr)
	}
	if !errors.Is(err, apperr.ErrAuthentication) {
		t.Error("expected authentication marker")
	}
}

func TestExchangeFallsBackToBasicOn401(t *testing.T) {
	var attempts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("code_verifier") != "verifier-abc" {
			t.Errorf("missing code_verifier: %v", r.Form)
		}
		user, pass, ok := r.BasicAuth()
		if !ok {
			attempts = append(attempts, "body")
			if r.Form.Get("client_id") != "client-123" {
				t.Errorf("body strategy should send client_id, got %v", r.Form)
			}
			if r.Form.Get("client_secret") != "" {
				t.Error("body strategy should not send the client secret")
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		attempts = append(attempts, "basic")
		if user != "client-123" || pass != "shh" {
			t.Errorf("unexpected basic credentials %q:%q", user, pass)
		}
		writeToken(w, "access", "refresh")
	}))
	defer srv.Close()

	pair, err := newTestManager(srv.URL).ExchangeCode(context.Background(), "client-123", "code-1", "verifier-abc", "http://localhost/cb")
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}
	if strings.Join(attempts, ",") != "body,basic" {
		t.Errorf("attempts = %v", attempts)
	}
	if pair.AccessToken != "access" || pair.RefreshToken != "refresh" {
		t.Errorf("unexpected pair: %+v", pair)
	}
}

func TestExchangeDoesNotFallBackOnOtherErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	_, err := newTestManager(srv.URL).ExchangeCode(context.Background(), "client-123", "code", "verifier", "http://localhost/cb")
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
	var aerr *apperr.AuthError
	if !errors.As(err, &aerr) || aerr.Code != "invalid_grant" || aerr.Description != "code expired" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExchangeExhaustsStrategies(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"access_denied"}`))
	}))
	defer srv.Close()

	_, err := newTestManager(srv.URL).ExchangeCode(context.Background(), "client-123", "code", "verifier", "http://localhost/cb")
	if calls.Load() != 2 {
		t.Errorf("expected both strategies to be tried, got %d calls", calls.Load())
	}
	var aerr *apperr.AuthError
	if !errors.As(err, &aerr) || aerr.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildAuthorizationURL(t *testing.T) {
	m := newTestManager("http://unused", WithAudience("https://api.example.com"))
	ch := GenerateChallenge()
	if ch.Method != "S256" || len(ch.Verifier) < 43 || ch.Challenge == "" {
		t.Fatalf("unexpected challenge: %+v", ch)
	}

	raw, err := m.BuildAuthorizationURL("client-123", "http://localhost/cb", ch.Challenge, "state-1")
	if err != nil {
		t.Fatalf("BuildAuthorizationURL returned error: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	want := map[string]string{
		"response_type":         "code",
		"client_id":             "client-123",
		"redirect_uri":          "http://localhost/cb",
		"code_challenge":        ch.Challenge,
		"code_challenge_method": "S256",
		"scope":                 "openid offline_access",
		"audience":              "https://api.example.com",
		"state":                 "state-1",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestBuildAuthorizationURLValidation(t *testing.T) {
	m := newTestManager("http://unused")
	if _, err := m.BuildAuthorizationURL("", "http://localhost/cb", "c", "s"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation failure for empty client id, got %v", err)
	}
	if _, err := m.BuildAuthorizationURL("id", "http://localhost/cb", "", "s"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation failure for empty challenge, got %v", err)
	}
}

func TestStrategiesByName(t *testing.T) {
	got, err := StrategiesByName([]string{"basic", "body"})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Name() != "basic" || got[1].Name() != "body" {
		t.Errorf("order not preserved: %v, %v", got[0].Name(), got[1].Name())
	}
	if _, err := StrategiesByName([]string{"mtls"}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
