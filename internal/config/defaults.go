package config

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"

	CacheBackendFile     = "file"
	CacheBackendDynamoDB = "dynamodb"
	CacheBackendNone     = "none"

	TTSProviderElevenLabs = "elevenlabs"
	TTSProviderGoogle     = "google"

	SecretBackendSSM = "ssm"
	SecretBackendEnv = "env"
)

const (
	defaultPlatformBaseURL     = "https://api.yotoplay.com"
	defaultCardTitle           = "Yoto Hero Stories"
	defaultPollIntervalMillis  = 500
	defaultPollAttempts        = 60
	defaultPlatformTimeout     = 30
	defaultAuthURL             = "https://login.yotoplay.com/authorize"
	defaultTokenURL            = "https://login.yotoplay.com/oauth/token"
	defaultAudience            = "https://api.yotoplay.com"
	defaultRedirectURL         = "http://localhost:8080/auth/callback"
	defaultElevenLabsBaseURL   = "https://api.elevenlabs.io/v1"
	defaultElevenLabsModel     = "eleven_multilingual_v2"
	defaultTTSLanguage         = "en-GB"
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "google/gemini-2.5-flash"
	defaultLLMTimeoutSeconds   = 60
	defaultCacheDir            = "~/.cache/yotohero/transcodes"
	defaultCacheTable          = "TranscodeCache"
	defaultServerAddr          = ":8080"
	defaultFrontendURL         = "http://localhost:3000"
	defaultSessionTTLHours     = 24
	defaultClientSecretParam   = "/yotohero/client-secret"
	defaultTTSKeyParam         = "/yotohero/tts-api-key"
	defaultLLMKeyParam         = "/yotohero/llm-api-key"
	defaultSessionSecretParam  = "/yotohero/session-secret"
	defaultOriginVerifyParam   = "/yotohero/api-gateway-secret"
	defaultKMSKeyID            = "alias/yotohero-token-key"
	defaultPlatformTable       = "FakePlatformCards"
	defaultLogLevel            = "info"
	defaultLogFormat           = "console"
	defaultMaxWords            = 1200
	defaultIcon                = "yoto:#aUm9i3ex3qqAMYBv-i-O-pYMKuMJGICtR3Vhf289u2Q"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Environment: EnvironmentDevelopment,
		Platform: Platform{
			BaseURL:            defaultPlatformBaseURL,
			CardTitle:          defaultCardTitle,
			PollIntervalMillis: defaultPollIntervalMillis,
			PollAttempts:       defaultPollAttempts,
			TimeoutSeconds:     defaultPlatformTimeout,
		},
		Auth: Auth{
			AuthURL:              defaultAuthURL,
			TokenURL:             defaultTokenURL,
			Audience:             defaultAudience,
			RedirectURL:          defaultRedirectURL,
			Scopes:               []string{"openid", "profile", "offline_access"},
			CredentialStrategies: []string{"body", "basic"},
		},
		TTS: TTS{
			Provider:     TTSProviderElevenLabs,
			BaseURL:      defaultElevenLabsBaseURL,
			Model:        defaultElevenLabsModel,
			LanguageCode: defaultTTSLanguage,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Cache: Cache{
			Backend: CacheBackendFile,
			Dir:     defaultCacheDir,
			Table:   defaultCacheTable,
		},
		Server: Server{
			Addr:            defaultServerAddr,
			FrontendURL:     defaultFrontendURL,
			SessionTTLHours: defaultSessionTTLHours,
		},
		Secrets: Secrets{
			Backend:            SecretBackendSSM,
			ClientSecretParam:  defaultClientSecretParam,
			TTSKeyParam:        defaultTTSKeyParam,
			LLMKeyParam:        defaultLLMKeyParam,
			SessionSecretParam: defaultSessionSecretParam,
			OriginVerifyParam:  defaultOriginVerifyParam,
		},
		AWS: AWS{
			KMSKeyID:      defaultKMSKeyID,
			PlatformTable: defaultPlatformTable,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Story: Story{
			MaxWords:    defaultMaxWords,
			DefaultIcon: defaultIcon,
		},
	}
}
