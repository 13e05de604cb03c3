package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/oauth2"

	"github.com/danwrong/yotohero/internal/auth"
	"github.com/danwrong/yotohero/internal/cache"
	"github.com/danwrong/yotohero/internal/card"
	"github.com/danwrong/yotohero/internal/config"
	"github.com/danwrong/yotohero/internal/crypto"
	"github.com/danwrong/yotohero/internal/llm"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/platform"
	"github.com/danwrong/yotohero/internal/platform/memory"
	"github.com/danwrong/yotohero/internal/secret"
	"github.com/danwrong/yotohero/internal/transcode"
	"github.com/danwrong/yotohero/internal/tts"
	"github.com/danwrong/yotohero/internal/workflow"
)

// Services is the story pipeline and everything it depends on. Both the
// HTTP app and the CLI are built on it.
type Services struct {
	Config  *config.Config
	Logger  *slog.Logger
	Secrets secret.Bundle

	Encryptor crypto.Encryptor
	Auth      *auth.Manager
	Platform  platform.API
	// FakePlatform is set when Platform is the in-process fake.
	FakePlatform *memory.Platform
	Cache        cache.Cache
	Cards        *card.Synchronizer
	Orchestrator *workflow.Orchestrator
	// Storyteller is nil when no LLM key is configured.
	Storyteller *workflow.Storyteller
}

// Option adjusts how NewServices wires the pipeline.
type Option func(*options)

type options struct {
	platform platform.API
}

// WithPlatform uses api instead of the platform implied by cfg.
func WithPlatform(api platform.API) Option {
	return func(o *options) {
		o.platform = api
	}
}

// NewServices wires the pipeline from cfg. AWS clients are created up front;
// they only make calls when a backend that needs them is selected.
func NewServices(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Services, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})
	ssmClient := ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})

	resolver := secret.NewResolver(cfg, ssmClient)
	logger.Info("resolving secrets", logging.String("backend", cfg.Secrets.Backend))
	bundle, err := secret.Load(ctx, resolver, cfg)
	if err != nil {
		return nil, err
	}

	var encryptor crypto.Encryptor
	if cfg.DevMode {
		logger.Info("using mock encryptor (dev mode)")
		encryptor = crypto.NewMockEncryptor()
	} else {
		kmsClient := kms.NewFromConfig(awsCfg, func(o *kms.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		encryptor = crypto.NewKMSService(kmsClient, cfg.AWS.KMSKeyID)
	}

	svc := &Services{
		Config:    cfg,
		Logger:    logger,
		Secrets:   bundle,
		Encryptor: encryptor,
	}

	if svc.Auth, err = NewAuthManager(cfg, bundle.ClientSecret, logger); err != nil {
		return nil, err
	}

	switch {
	case o.platform != nil:
		svc.Platform = o.platform
	case cfg.DevMode:
		// Without an explicit endpoint there is no LocalStack to persist to.
		var store memory.DynamoAPI
		if cfg.AWS.Endpoint != "" {
			store = dynamoClient
		}
		svc.FakePlatform = memory.New(store, cfg.AWS.PlatformTable)
		svc.Platform = svc.FakePlatform
		logger.Info("using in-process platform (dev mode)", logging.Bool("persistent", store != nil))
	default:
		svc.Platform = platform.NewClient(cfg.Platform.BaseURL, cfg.PlatformTimeout(), platform.WithLogger(logger))
	}

	if svc.Cache, err = cache.New(cfg, cache.Deps{Dynamo: dynamoClient, Logger: logger}); err != nil {
		return nil, fmt.Errorf("transcode cache: %w", err)
	}

	synth, err := tts.New(ctx, cfg, bundle.TTSAPIKey, logger)
	if err != nil {
		return nil, err
	}

	svc.Cards = card.NewSynchronizer(svc.Platform,
		card.WithTitle(cfg.Platform.CardTitle),
		card.WithDefaultIcon(cfg.Story.DefaultIcon),
		card.WithLogger(logger),
	)
	uploader := transcode.NewUploader(svc.Platform,
		transcode.WithPollInterval(cfg.PollInterval()),
		transcode.WithMaxAttempts(cfg.Platform.PollAttempts),
		transcode.WithLogger(logger),
	)
	svc.Orchestrator = workflow.NewOrchestrator(workflow.Deps{
		Tokens:      svc.Auth,
		Cache:       svc.Cache,
		Synthesizer: synth,
		Uploader:    uploader,
		Cards:       svc.Cards,
		Logger:      logger,
	}, workflow.Settings{
		DefaultVoice: cfg.TTS.DefaultVoice,
		MaxWords:     cfg.Story.MaxWords,
	})

	if bundle.LLMAPIKey != "" {
		client := llm.NewClient(llm.Config{
			APIKey:         bundle.LLMAPIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			Referer:        cfg.Server.FrontendURL,
			Title:          "Yoto Hero",
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		}, llm.WithLogger(logger))
		svc.Storyteller = workflow.NewStoryteller(client, client, svc.Orchestrator, logger)
	} else {
		logger.Info("story generation disabled: no llm api key")
	}

	return svc, nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// NewAuthManager builds the token manager for the OAuth client in cfg.
func NewAuthManager(cfg *config.Config, clientSecret string, logger *slog.Logger) (*auth.Manager, error) {
	strategies, err := auth.StrategiesByName(cfg.Auth.CredentialStrategies)
	if err != nil {
		return nil, fmt.Errorf("auth.credential_strategies: %w", err)
	}
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: clientSecret,
		RedirectURL:  cfg.Auth.RedirectURL,
		Scopes:       cfg.Auth.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.Auth.AuthURL,
			TokenURL: cfg.Auth.TokenURL,
		},
	}
	return auth.NewManager(oauthConfig,
		auth.WithStrategies(strategies...),
		auth.WithAudience(cfg.Auth.Audience),
		auth.WithLogger(logger),
	), nil
}
