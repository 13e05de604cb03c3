package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/config"
)

func TestElevenLabsSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/voice-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != outputFormat {
			t.Errorf("missing output format: %s", r.URL.RawQuery)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		var body speechRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Text != "Once upon a time." || body.ModelID != "eleven_turbo" {
			t.Errorf("unexpected body %+v", body)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	e := NewElevenLabs(srv.URL+"/", "key", WithModel("eleven_turbo"))
	audio, err := e.Synthesize(context.Background(), "Once upon a time.", "voice-1")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(audio) != "ID3-audio" {
		t.Errorf("audio = %q", audio)
	}
}

// Every outcome is either audio or a classified error.
func TestElevenLabsFailuresAreTyped(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		text    string
		voice   string
		wantErr error
	}{
		{"upstream error", http.StatusInternalServerError, "boom", "hello", "v", apperr.ErrExternalService},
		{"quota", http.StatusUnauthorized, `{"detail":"quota_exceeded"}`, "hello", "v", apperr.ErrExternalService},
		{"empty audio", http.StatusOK, "", "hello", "v", apperr.ErrExternalService},
		{"empty text", http.StatusOK, "x", "  ", "v", apperr.ErrValidation},
		{"no voice", http.StatusOK, "x", "hello", "", apperr.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			audio, err := NewElevenLabs(srv.URL, "key").Synthesize(context.Background(), tt.text, tt.voice)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if audio != nil {
				t.Errorf("expected no audio on failure, got %d bytes", len(audio))
			}
		})
	}
}

func TestElevenLabsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewElevenLabs(srv.URL, "key").Synthesize(context.Background(), "hello", "v")
	if !errors.Is(err, apperr.ErrExternalService) {
		t.Fatalf("expected external service failure, got %v", err)
	}
}

func TestGoogleSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text:synthesize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Input struct {
				Text string `json:"text"`
			} `json:"input"`
			Voice struct {
				LanguageCode string `json:"languageCode"`
				Name         string `json:"name"`
			} `json:"voice"`
			AudioConfig struct {
				AudioEncoding string `json:"audioEncoding"`
			} `json:"audioConfig"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Input.Text != "hello" || body.Voice.Name != "en-GB-Neural2-A" || body.Voice.LanguageCode != "en-GB" {
			t.Errorf("unexpected request %+v", body)
		}
		if body.AudioConfig.AudioEncoding != "MP3" {
			t.Errorf("encoding = %q", body.AudioConfig.AudioEncoding)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString([]byte("mp3-bytes")),
		})
	}))
	defer srv.Close()

	g, err := NewGoogle(context.Background(), "key", "en-GB", nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("NewGoogle returned error: %v", err)
	}
	audio, err := g.Synthesize(context.Background(), "hello", "en-GB-Neural2-A")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(audio) != "mp3-bytes" {
		t.Errorf("audio = %q", audio)
	}
}

func TestGoogleUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":403,"message":"API key not valid"}}`)
	}))
	defer srv.Close()

	g, err := NewGoogle(context.Background(), "key", "", nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Synthesize(context.Background(), "hello", "v"); !errors.Is(err, apperr.ErrExternalService) {
		t.Fatalf("expected external service failure, got %v", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := config.Default()
	s, err := New(context.Background(), &cfg, "key", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*ElevenLabs); !ok {
		t.Errorf("expected ElevenLabs, got %T", s)
	}

	cfg.TTS.Provider = "festival"
	if _, err := New(context.Background(), &cfg, "key", nil); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("expected configuration failure, got %v", err)
	}
}
