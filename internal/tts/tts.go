// Package tts synthesizes story audio.
package tts

import (
	"context"
	"log/slog"
	"strings"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/config"
)

// Synthesizer turns prose into encoded audio. Implementations return a
// non-empty buffer or an error; they never return empty audio with a nil error.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// New builds the configured provider. apiKey is the resolved provider secret.
func New(ctx context.Context, cfg *config.Config, apiKey string, logger *slog.Logger) (Synthesizer, error) {
	switch cfg.TTS.Provider {
	case config.TTSProviderElevenLabs, "":
		return NewElevenLabs(cfg.TTS.BaseURL, apiKey,
			WithModel(cfg.TTS.Model),
			WithLogger(logger),
		), nil
	case config.TTSProviderGoogle:
		return NewGoogle(ctx, apiKey, cfg.TTS.LanguageCode, logger)
	default:
		return nil, apperr.Wrap(apperr.ErrConfiguration, "tts", "new", "unknown provider "+cfg.TTS.Provider, nil)
	}
}

func checkInput(text, voiceID string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.Validation("story text is empty")
	}
	if strings.TrimSpace(voiceID) == "" {
		return apperr.Wrap(apperr.ErrConfiguration, "tts", "synthesize", "no voice configured", nil)
	}
	return nil
}
