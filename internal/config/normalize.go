package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()

	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = EnvironmentDevelopment
	}
	c.Platform.BaseURL = strings.TrimRight(strings.TrimSpace(c.Platform.BaseURL), "/")
	c.Platform.CardTitle = strings.TrimSpace(c.Platform.CardTitle)
	if c.Platform.CardTitle == "" {
		c.Platform.CardTitle = defaultCardTitle
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.TTS.Provider = strings.ToLower(strings.TrimSpace(c.TTS.Provider))
	c.Secrets.Backend = strings.ToLower(strings.TrimSpace(c.Secrets.Backend))

	// DEV_MODE mirrors the Lambda deployment's switch: env secrets, mock KMS,
	// in-process platform.
	if c.DevMode {
		c.Secrets.Backend = SecretBackendEnv
	}
	if c.IsProduction() {
		c.Cache.Backend = CacheBackendNone
	}

	var err error
	if c.Cache.Dir, err = expandPath(c.Cache.Dir); err != nil {
		return fmt.Errorf("cache.dir: %w", err)
	}
	if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
		return fmt.Errorf("logging.file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if value, ok := lookupEnv("DEV_MODE"); ok {
		c.DevMode, _ = strconv.ParseBool(value)
	}
	if value, ok := lookupEnv("YOTOHERO_ENV"); ok {
		c.Environment = value
	}
	setString(&c.Platform.BaseURL, "YOTO_API_BASE_URL")
	setString(&c.Auth.ClientID, "YOTO_CLIENT_ID")
	setString(&c.Auth.RedirectURL, "YOTO_REDIRECT_URL")
	setString(&c.Auth.ClientSecret, "YOTO_CLIENT_SECRET")
	setString(&c.TTS.Provider, "TTS_PROVIDER")
	setString(&c.TTS.DefaultVoice, "TTS_DEFAULT_VOICE")
	setString(&c.TTS.APIKey, "TTS_API_KEY")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.Cache.Backend, "TRANSCODE_CACHE_BACKEND")
	setString(&c.Cache.Dir, "TRANSCODE_CACHE_DIR")
	setString(&c.Cache.Table, "TRANSCODE_CACHE_TABLE")
	setString(&c.Server.FrontendURL, "FRONTEND_URL")
	setString(&c.Server.Addr, "SERVER_ADDR")
	setString(&c.AWS.Region, "AWS_REGION")
	setString(&c.AWS.Endpoint, "AWS_ENDPOINT_URL")
	setString(&c.AWS.KMSKeyID, "KMS_KEY_ID")
	setString(&c.AWS.PlatformTable, "FAKE_PLATFORM_TABLE")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func setString(dst *string, key string) {
	if value, ok := lookupEnv(key); ok {
		*dst = value
	}
}
