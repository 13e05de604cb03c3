package secret

import (
	"context"
	"errors"
	"fmt"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/config"
)

// Bundle holds every secret the service needs after startup.
type Bundle struct {
	ClientSecret  string
	TTSAPIKey     string
	LLMAPIKey     string
	SessionSecret string
	OriginVerify  string
}

// Load fills a Bundle, preferring values already present in cfg.
// Only the TTS key is required; the others degrade features when absent.
func Load(ctx context.Context, r Resolver, cfg *config.Config) (Bundle, error) {
	b := Bundle{
		ClientSecret: cfg.Auth.ClientSecret,
		TTSAPIKey:    cfg.TTS.APIKey,
		LLMAPIKey:    cfg.LLM.APIKey,
	}

	fetches := []struct {
		param    string
		dst      *string
		required bool
	}{
		{cfg.Secrets.ClientSecretParam, &b.ClientSecret, false},
		{cfg.Secrets.TTSKeyParam, &b.TTSAPIKey, true},
		{cfg.Secrets.LLMKeyParam, &b.LLMAPIKey, false},
		{cfg.Secrets.SessionSecretParam, &b.SessionSecret, false},
		{cfg.Secrets.OriginVerifyParam, &b.OriginVerify, false},
	}
	for _, f := range fetches {
		if *f.dst != "" || f.param == "" {
			continue
		}
		val, err := r.GetSecret(ctx, f.param)
		switch {
		case err == nil:
			*f.dst = val
		case errors.Is(err, ErrNotFound) && !f.required:
		default:
			return Bundle{}, apperr.Wrap(apperr.ErrConfiguration, "secret", "load", fmt.Sprintf("resolve %s", f.param), err)
		}
	}
	return b, nil
}

// NewResolver picks the backend named by cfg.Secrets.Backend.
func NewResolver(cfg *config.Config, ssmClient SSMClient) Resolver {
	if cfg.Secrets.Backend == config.SecretBackendSSM && ssmClient != nil {
		return NewSSMResolver(ssmClient)
	}
	return NewEnvResolver()
}
