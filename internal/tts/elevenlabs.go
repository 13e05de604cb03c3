package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/logging"
)

const (
	defaultElevenLabsURL = "https://api.elevenlabs.io/v1"
	outputFormat         = "mp3_44100_128"
	errorBodyLimit       = 2048
)

// ElevenLabs calls the ElevenLabs text-to-speech REST API.
type ElevenLabs struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

type ElevenLabsOption func(*ElevenLabs)

func WithModel(model string) ElevenLabsOption {
	return func(e *ElevenLabs) {
		if model != "" {
			e.model = model
		}
	}
}

func WithHTTPClient(client *http.Client) ElevenLabsOption {
	return func(e *ElevenLabs) {
		if client != nil {
			e.httpClient = client
		}
	}
}

func WithLogger(logger *slog.Logger) ElevenLabsOption {
	return func(e *ElevenLabs) {
		e.logger = logging.NewComponentLogger(logger, "tts")
	}
}

func NewElevenLabs(baseURL, apiKey string, opts ...ElevenLabsOption) *ElevenLabs {
	if baseURL == "" {
		baseURL = defaultElevenLabsURL
	}
	e := &ElevenLabs{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      "eleven_multilingual_v2",
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logging.NewComponentLogger(nil, "tts"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type speechRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if err := checkInput(text, voiceID); err != nil {
		return nil, err
	}
	if e.apiKey == "" {
		return nil, apperr.Wrap(apperr.ErrConfiguration, "tts", "synthesize", "elevenlabs api key missing", nil)
	}

	payload, err := json.Marshal(speechRequest{Text: text, ModelID: e.model})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}
	endpoint := e.baseURL + "/text-to-speech/" + url.PathEscape(voiceID) + "?output_format=" + outputFormat
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build speech request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrExternalService, "tts", "synthesize", "elevenlabs request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, apperr.Wrap(apperr.ErrExternalService, "tts", "synthesize",
			fmt.Sprintf("elevenlabs returned %s", resp.Status),
			errors.New(strings.TrimSpace(string(body))))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrExternalService, "tts", "synthesize", "read audio", err)
	}
	if len(audio) == 0 {
		return nil, apperr.Wrap(apperr.ErrExternalService, "tts", "synthesize", "elevenlabs returned no audio", nil)
	}

	e.logger.Info("speech synthesized",
		logging.String("provider", "elevenlabs"),
		logging.String("voice", voiceID),
		logging.Int("characters", len(text)),
		logging.Int("audio_bytes", len(audio)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return audio, nil
}
