package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/oauth2"

	"github.com/danwrong/yotohero/internal/auth"
	"github.com/danwrong/yotohero/internal/card"
	"github.com/danwrong/yotohero/internal/config"
	"github.com/danwrong/yotohero/internal/crypto"
	"github.com/danwrong/yotohero/internal/platform/memory"
	"github.com/danwrong/yotohero/internal/secret"
	"github.com/danwrong/yotohero/internal/session"
	"github.com/danwrong/yotohero/internal/transcode"
	"github.com/danwrong/yotohero/internal/workflow"
)

type stubSynth struct{}

func (stubSynth) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

func noWait(context.Context, time.Duration) error { return nil }

func newTestApp(t *testing.T, devMode bool, originVerify string) *App {
	t.Helper()
	cfg := config.Default()
	cfg.DevMode = devMode
	cfg.TTS.DefaultVoice = "narrator"

	fake := memory.New(nil, "")
	fake.TranscodeDelay = 0
	manager := auth.NewManager(&oauth2.Config{
		ClientID: "client-1",
		Endpoint: oauth2.Endpoint{AuthURL: "https://login.example.com/authorize", TokenURL: "http://127.0.0.1:1/token"},
	})
	cards := card.NewSynchronizer(fake)

	svc := &Services{
		Config:       &cfg,
		Secrets:      secret.Bundle{SessionSecret: "test-secret", OriginVerify: originVerify},
		Encryptor:    crypto.NewMockEncryptor(),
		Auth:         manager,
		Platform:     fake,
		FakePlatform: fake,
		Cards:        cards,
		Orchestrator: workflow.NewOrchestrator(workflow.Deps{
			Tokens:      manager,
			Synthesizer: stubSynth{},
			Uploader:    transcode.NewUploader(fake, transcode.WithSleeper(noWait)),
			Cards:       cards,
		}, workflow.Settings{DefaultVoice: cfg.TTS.DefaultVoice, MaxWords: cfg.Story.MaxWords}),
	}
	application, err := New(svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return application
}

func request(method, path, body string, headers map[string]string) events.APIGatewayProxyRequest {
	if headers == nil {
		headers = map[string]string{}
	}
	return events.APIGatewayProxyRequest{HTTPMethod: method, Path: path, Body: body, Headers: headers}
}

func sessionCookie(t *testing.T, resp events.APIGatewayProxyResponse) string {
	t.Helper()
	for _, c := range resp.MultiValueHeaders["Set-Cookie"] {
		if strings.HasPrefix(c, session.CookieName+"=") {
			first, _, _ := strings.Cut(c, ";")
			return first
		}
	}
	t.Fatalf("no session cookie in %v", resp.MultiValueHeaders)
	return ""
}

func TestDemoLoginSubmitAndReadCard(t *testing.T) {
	application := newTestApp(t, true, "")
	ctx := context.Background()

	resp, _ := application.HandleRequest(ctx, request("GET", "/api/auth/demo-login", "", nil))
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("demo login = %d %s", resp.StatusCode, resp.Body)
	}
	cookie := sessionCookie(t, resp)

	for _, text := range []string{"# The Fox\n\nOnce upon a time.", "A second story about a bear."} {
		resp, _ = application.HandleRequest(ctx, request("POST", "/api/stories", `{"text":`+quote(text)+`}`, map[string]string{"Cookie": cookie}))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("submit = %d %s", resp.StatusCode, resp.Body)
		}
	}

	resp, _ = application.HandleRequest(ctx, request("GET", "/card", "", map[string]string{"cookie": cookie}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("card = %d %s", resp.StatusCode, resp.Body)
	}
	var got struct {
		Title    string `json:"title"`
		Chapters []struct {
			Key string `json:"key"`
		} `json:"chapters"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &got); err != nil {
		t.Fatal(err)
	}
	if got.Title != card.CardTitle || len(got.Chapters) != 2 || got.Chapters[1].Key != "02" {
		t.Errorf("unexpected card %s", resp.Body)
	}
	if resp.Headers["Access-Control-Allow-Origin"] != "http://localhost:3000" || resp.Headers["X-Request-Id"] == "" {
		t.Errorf("missing cors or request id headers: %v", resp.Headers)
	}
}

func TestRoutingBasics(t *testing.T) {
	application := newTestApp(t, true, "")
	ctx := context.Background()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"OPTIONS", "/api/stories", http.StatusNoContent},
		{"GET", "/healthz", http.StatusOK},
		{"GET", "/api/nope", http.StatusNotFound},
		{"GET", "/stories", http.StatusNotFound},
		{"POST", "/api/stories", http.StatusUnauthorized},
		{"GET", "/api/auth/status", http.StatusOK},
	}
	for _, tt := range tests {
		resp, err := application.HandleRequest(ctx, request(tt.method, tt.path, "", nil))
		if err != nil {
			t.Fatalf("%s %s: %v", tt.method, tt.path, err)
		}
		if resp.StatusCode != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	application := newTestApp(t, true, "")
	resp, _ := application.HandleRequest(context.Background(), request("GET", "/healthz", "", map[string]string{"x-request-id": "req-42"}))
	if resp.Headers["X-Request-Id"] != "req-42" {
		t.Errorf("X-Request-Id = %q", resp.Headers["X-Request-Id"])
	}
}

func TestOriginGate(t *testing.T) {
	application := newTestApp(t, false, "cdn-secret")
	ctx := context.Background()

	resp, _ := application.HandleRequest(ctx, request("GET", "/api/auth/status", "", nil))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("missing header = %d, want 403", resp.StatusCode)
	}
	resp, _ = application.HandleRequest(ctx, request("GET", "/api/auth/status", "", map[string]string{"x-origin-verify": "wrong"}))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("wrong header = %d, want 403", resp.StatusCode)
	}
	resp, _ = application.HandleRequest(ctx, request("GET", "/api/auth/status", "", map[string]string{"X-Origin-Verify": "cdn-secret"}))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid header = %d, want 200", resp.StatusCode)
	}
	resp, _ = application.HandleRequest(ctx, request("GET", "/healthz", "", nil))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz should bypass the gate, got %d", resp.StatusCode)
	}
	resp, _ = application.HandleRequest(ctx, request("GET", "/api/auth/demo-login", "", map[string]string{"X-Origin-Verify": "cdn-secret"}))
	if resp.StatusCode != http.StatusFound {
		t.Errorf("demo login with fake platform = %d", resp.StatusCode)
	}
}

func TestNewRequiresSessionSecretOutsideDevMode(t *testing.T) {
	cfg := config.Default()
	svc := &Services{Config: &cfg, Encryptor: crypto.NewMockEncryptor()}
	if _, err := New(svc); err == nil {
		t.Error("expected an error without a session secret")
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
