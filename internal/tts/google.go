package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/logging"
)

// Google calls Cloud Text-to-Speech. Voice ids are Cloud voice names such as
// "en-GB-Neural2-A".
type Google struct {
	service      *texttospeech.Service
	languageCode string
	logger       *slog.Logger
}

// NewGoogle authenticates with an API key. Extra client options are appended
// after the key, so tests can redirect the endpoint.
func NewGoogle(ctx context.Context, apiKey, languageCode string, logger *slog.Logger, opts ...option.ClientOption) (*Google, error) {
	if apiKey == "" && len(opts) == 0 {
		return nil, apperr.Wrap(apperr.ErrConfiguration, "tts", "new", "google api key missing", nil)
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	clientOpts = append(clientOpts, opts...)
	srv, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrConfiguration, "tts", "new", "create text-to-speech client", err)
	}
	if languageCode == "" {
		languageCode = "en-GB"
	}
	return &Google{
		service:      srv,
		languageCode: languageCode,
		logger:       logging.NewComponentLogger(logger, "tts"),
	}, nil
}

func (g *Google) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if err := checkInput(text, voiceID); err != nil {
		return nil, err
	}

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.languageCode,
			Name:         voiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}

	start := time.Now()
	resp, err := g.service.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return nil, apperr.Wrap(apperr.ErrExternalService, "tts", "synthesize",
				fmt.Sprintf("google returned %d", gerr.Code), err)
		}
		return nil, apperr.Wrap(apperr.ErrExternalService, "tts", "synthesize", "google request failed", err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrExternalService, "tts", "synthesize", "decode audio content", err)
	}
	if len(audio) == 0 {
		return nil, apperr.Wrap(apperr.ErrExternalService, "tts", "synthesize", "google returned no audio", nil)
	}

	g.logger.Info("speech synthesized",
		logging.String("provider", "google"),
		logging.String("voice", voiceID),
		logging.Int("characters", len(text)),
		logging.Int("audio_bytes", len(audio)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return audio, nil
}
