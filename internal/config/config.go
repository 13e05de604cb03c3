// Package config loads the TOML configuration and applies environment overrides.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Platform configures the card platform API.
type Platform struct {
	BaseURL            string `toml:"base_url"`
	CardTitle          string `toml:"card_title"`
	PollIntervalMillis int    `toml:"poll_interval_ms"`
	PollAttempts       int    `toml:"poll_attempts"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
}

// Auth configures the OAuth2 PKCE client.
type Auth struct {
	AuthURL              string   `toml:"auth_url"`
	TokenURL             string   `toml:"token_url"`
	ClientID             string   `toml:"client_id"`
	Audience             string   `toml:"audience"`
	RedirectURL          string   `toml:"redirect_url"`
	Scopes               []string `toml:"scopes"`
	CredentialStrategies []string `toml:"credential_strategies"`
	// ClientSecret is optional and normally resolved through [secrets].
	ClientSecret string `toml:"client_secret"`
}

// TTS configures the speech synthesis provider.
type TTS struct {
	Provider     string `toml:"provider"`
	BaseURL      string `toml:"base_url"`
	Model        string `toml:"model"`
	DefaultVoice string `toml:"default_voice"`
	LanguageCode string `toml:"language_code"`
	APIKey       string `toml:"api_key"`
}

// LLM configures the story generation and moderation client.
type LLM struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Cache configures the transcode result cache.
type Cache struct {
	Backend  string `toml:"backend"`
	Dir      string `toml:"dir"`
	Table    string `toml:"table"`
	TTLHours int    `toml:"ttl_hours"`
}

// Server configures the HTTP surface.
type Server struct {
	Addr            string `toml:"addr"`
	FrontendURL     string `toml:"frontend_url"`
	SessionTTLHours int    `toml:"session_ttl_hours"`
}

// Secrets names the parameters resolved at startup.
type Secrets struct {
	Backend            string `toml:"backend"`
	ClientSecretParam  string `toml:"client_secret_param"`
	TTSKeyParam        string `toml:"tts_key_param"`
	LLMKeyParam        string `toml:"llm_key_param"`
	SessionSecretParam string `toml:"session_secret_param"`
	OriginVerifyParam  string `toml:"origin_verify_param"`
}

// AWS configures the AWS clients. Endpoint points at LocalStack in development.
type AWS struct {
	Region        string `toml:"region"`
	Endpoint      string `toml:"endpoint"`
	KMSKeyID      string `toml:"kms_key_id"`
	PlatformTable string `toml:"platform_table"`
}

// Logging configures log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Story holds limits applied to submitted stories.
type Story struct {
	MaxWords    int    `toml:"max_words"`
	DefaultIcon string `toml:"default_icon"`
}

// Config encapsulates all configuration values.
type Config struct {
	Environment string   `toml:"environment"`
	DevMode     bool     `toml:"dev_mode"`
	Platform    Platform `toml:"platform"`
	Auth        Auth     `toml:"auth"`
	TTS         TTS      `toml:"tts"`
	LLM         LLM      `toml:"llm"`
	Cache       Cache    `toml:"cache"`
	Server      Server   `toml:"server"`
	Secrets     Secrets  `toml:"secrets"`
	AWS         AWS      `toml:"aws"`
	Logging     Logging  `toml:"logging"`
	Story       Story    `toml:"story"`
}

// DefaultConfigPath returns the absolute path to the default configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/yotohero/config.toml")
}

// Load locates, parses, normalizes and validates a configuration file.
// A missing file is not an error; defaults and environment overrides apply.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if env, ok := os.LookupEnv("YOTOHERO_CONFIG"); ok {
			path = strings.TrimSpace(env)
		}
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("yotohero.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// IsProduction reports whether the deployment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// PollInterval returns the transcode poll spacing.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Platform.PollIntervalMillis) * time.Millisecond
}

// PlatformTimeout returns the per-request timeout for platform calls.
func (c *Config) PlatformTimeout() time.Duration {
	return time.Duration(c.Platform.TimeoutSeconds) * time.Second
}

// SessionTTL returns the lifetime of the session cookie.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Server.SessionTTLHours) * time.Hour
}

// CacheTTL returns how long DynamoDB cache items are retained. Zero keeps them
// until explicitly cleared.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ExpandPath exposes the path expansion rules to other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
