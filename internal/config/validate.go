package config

import (
	"fmt"

	"github.com/danwrong/yotohero/internal/apperr"
)

// Validate ensures the configuration is usable. Failures are ConfigurationFailure.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateEnvironment,
		c.validatePlatform,
		c.validateAuth,
		c.validateTTS,
		c.validateCache,
		c.validateSecrets,
		c.validateStory,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return apperr.Wrap(apperr.ErrConfiguration, "config", "validate", "", err)
		}
	}
	return nil
}

func (c *Config) validateEnvironment() error {
	switch c.Environment {
	case EnvironmentDevelopment, EnvironmentProduction:
		return nil
	default:
		return fmt.Errorf("environment must be %q or %q, got %q", EnvironmentDevelopment, EnvironmentProduction, c.Environment)
	}
}

func (c *Config) validatePlatform() error {
	if c.Platform.BaseURL == "" && !c.DevMode {
		return fmt.Errorf("platform.base_url must be set")
	}
	if c.Platform.PollIntervalMillis <= 0 {
		return fmt.Errorf("platform.poll_interval_ms must be positive")
	}
	if c.Platform.PollAttempts <= 0 {
		return fmt.Errorf("platform.poll_attempts must be positive")
	}
	if c.Platform.TimeoutSeconds <= 0 {
		return fmt.Errorf("platform.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.DevMode {
		return nil
	}
	if c.Auth.ClientID == "" {
		return fmt.Errorf("auth.client_id is required. Set YOTO_CLIENT_ID or edit the config file (create with 'yotohero config init')")
	}
	if c.Auth.AuthURL == "" || c.Auth.TokenURL == "" {
		return fmt.Errorf("auth.auth_url and auth.token_url must be set")
	}
	if len(c.Auth.CredentialStrategies) == 0 {
		return fmt.Errorf("auth.credential_strategies must list at least one strategy")
	}
	for _, name := range c.Auth.CredentialStrategies {
		if name != "body" && name != "basic" {
			return fmt.Errorf("auth.credential_strategies: unknown strategy %q", name)
		}
	}
	return nil
}

func (c *Config) validateTTS() error {
	switch c.TTS.Provider {
	case TTSProviderElevenLabs, TTSProviderGoogle:
		return nil
	default:
		return fmt.Errorf("tts.provider must be %q or %q, got %q", TTSProviderElevenLabs, TTSProviderGoogle, c.TTS.Provider)
	}
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case CacheBackendFile:
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.dir must be set for the file backend")
		}
	case CacheBackendDynamoDB:
		if c.Cache.Table == "" {
			return fmt.Errorf("cache.table must be set for the dynamodb backend")
		}
	case CacheBackendNone:
	default:
		return fmt.Errorf("cache.backend must be file, dynamodb or none, got %q", c.Cache.Backend)
	}
	if c.Cache.TTLHours < 0 {
		return fmt.Errorf("cache.ttl_hours must not be negative")
	}
	return nil
}

func (c *Config) validateSecrets() error {
	switch c.Secrets.Backend {
	case SecretBackendSSM, SecretBackendEnv:
		return nil
	default:
		return fmt.Errorf("secrets.backend must be %q or %q, got %q", SecretBackendSSM, SecretBackendEnv, c.Secrets.Backend)
	}
}

func (c *Config) validateStory() error {
	if c.Story.MaxWords <= 0 {
		return fmt.Errorf("story.max_words must be positive")
	}
	return nil
}
