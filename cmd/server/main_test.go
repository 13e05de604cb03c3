package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/danwrong/yotohero/internal/app"
	"github.com/danwrong/yotohero/internal/auth"
	"github.com/danwrong/yotohero/internal/card"
	"github.com/danwrong/yotohero/internal/config"
	"github.com/danwrong/yotohero/internal/crypto"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/platform/memory"
	"github.com/danwrong/yotohero/internal/secret"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.DevMode = true

	fake := memory.New(nil, "")
	manager := auth.NewManager(&oauth2.Config{
		ClientID: "client-1",
		Endpoint: oauth2.Endpoint{AuthURL: "https://login.example.com/authorize", TokenURL: "http://127.0.0.1:1/token"},
	})
	application, err := app.New(&app.Services{
		Config:       &cfg,
		Logger:       logging.NewNop(),
		Secrets:      secret.Bundle{SessionSecret: "test-secret"},
		Encryptor:    crypto.NewMockEncryptor(),
		Auth:         manager,
		Platform:     fake,
		FakePlatform: fake,
		Cards:        card.NewSynchronizer(fake),
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	srv := httptest.NewServer(newRouter(application, "", logging.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func noRedirect(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

func TestAdapterServesLambdaRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("expected the chi request id to be echoed")
	}
}

func TestAdapterWritesMultiValueCookies(t *testing.T) {
	srv := newTestServer(t)
	client := &http.Client{CheckRedirect: noRedirect}

	resp, err := client.Get(srv.URL + "/auth/demo-login")
	if err != nil {
		t.Fatalf("GET demo-login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("demo-login = %d", resp.StatusCode)
	}
	var found bool
	for _, c := range resp.Header.Values("Set-Cookie") {
		if strings.HasPrefix(c, "session_token=") {
			found = true
		}
	}
	if !found {
		t.Errorf("no session cookie in %v", resp.Header.Values("Set-Cookie"))
	}
}

func TestRouterMountsFakePlatform(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/platform/content/mine", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET content: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("content/mine = %d", resp.StatusCode)
	}
}

func TestPlatformURL(t *testing.T) {
	tests := map[string]string{
		":8080":          "http://localhost:8080/platform",
		"127.0.0.1:9000": "http://127.0.0.1:9000/platform",
	}
	for addr, want := range tests {
		if got := platformURL(addr); got != want {
			t.Errorf("platformURL(%q) = %q, want %q", addr, got, want)
		}
	}
}
