// Package workflow runs a story submission end to end: token check, cache,
// speech synthesis, upload and transcode, then the card merge.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/cache"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/textprep"
	"github.com/danwrong/yotohero/internal/tts"
)

// TokenManager keeps the caller's token pair usable.
type TokenManager interface {
	EnsureValid(ctx context.Context, pair model.TokenPair) (model.TokenPair, bool, error)
}

// Uploader turns audio into a transcoded platform asset.
type Uploader interface {
	UploadAndTranscode(ctx context.Context, audio []byte, accessToken string) (model.TranscodeResult, error)
}

// CardSyncer reads and writes the shared card.
type CardSyncer interface {
	FindExistingCard(ctx context.Context, accessToken string) *model.Card
	CreateCard(ctx context.Context, meta model.StoryMetadata, result model.TranscodeResult, accessToken string) (*model.Card, error)
	UpdateCard(ctx context.Context, existing *model.Card, meta model.StoryMetadata, result model.TranscodeResult, accessToken string) (*model.Card, error)
}

// Result is the uniform outcome of a submission. Tokens is set whenever the
// pair was refreshed, including on failure, so the caller can store it.
type Result struct {
	Success         bool                   `json:"success"`
	CardID          string                 `json:"cardId,omitempty"`
	TranscodeInfo   *model.TranscodeResult `json:"transcodeInfo,omitempty"`
	Cached          bool                   `json:"cached,omitempty"`
	Error           string                 `json:"error,omitempty"`
	Kind            string                 `json:"kind,omitempty"`
	Tokens          model.TokenPair        `json:"-"`
	TokensRefreshed bool                   `json:"-"`
}

// Deps are the collaborators of an Orchestrator. Cache may be nil.
type Deps struct {
	Tokens      TokenManager
	Cache       cache.Cache
	Synthesizer tts.Synthesizer
	Uploader    Uploader
	Cards       CardSyncer
	Logger      *slog.Logger
}

// Settings holds the request limits and defaults.
type Settings struct {
	DefaultVoice string
	MaxWords     int
}

type Orchestrator struct {
	deps     Deps
	settings Settings
	logger   *slog.Logger
}

func NewOrchestrator(deps Deps, settings Settings) *Orchestrator {
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	return &Orchestrator{
		deps:     deps,
		settings: settings,
		logger:   logging.NewComponentLogger(deps.Logger, "workflow"),
	}
}

// Run submits one story. It never panics and never returns an error; every
// failure is logged and reported in the Result.
func (o *Orchestrator) Run(ctx context.Context, storyText string, meta model.StoryMetadata, tokens model.TokenPair) (result Result) {
	logger := logging.WithContext(ctx, o.logger)
	start := time.Now()
	result.Tokens = tokens

	defer func() {
		if r := recover(); r != nil {
			err := apperr.Wrap(apperr.ErrExternalService, "workflow", "run", fmt.Sprintf("panic: %v", r), nil)
			logging.ErrorWithContext(logger, "story workflow panicked", "workflow_panic",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "this is a bug; check the stack in the platform logs"),
			)
			result = o.failure(result, err)
		}
	}()

	text := textprep.Plain(storyText)
	if err := o.validate(text); err != nil {
		logger.Info("story rejected", logging.String("reason", err.Error()))
		return o.failure(result, err)
	}

	pair, refreshed, err := o.deps.Tokens.EnsureValid(ctx, tokens)
	if err != nil {
		return o.fail(logger, result, "token refresh failed", err)
	}
	if refreshed {
		result.Tokens = pair
		result.TokensRefreshed = true
	}
	accessToken := pair.AccessToken

	key := cache.Key(storyText)
	logger = logger.With(logging.String(logging.FieldCacheKey, key[:12]))

	var transcoded model.TranscodeResult
	if entry, ok := o.deps.Cache.Get(ctx, key); ok {
		transcoded = entry.TranscodeResult
		result.Cached = true
	} else {
		voice := strings.TrimSpace(meta.Voice)
		if voice == "" {
			voice = o.settings.DefaultVoice
		}
		if voice == "" {
			return o.fail(logger, result, "no voice available",
				apperr.Wrap(apperr.ErrConfiguration, "workflow", "select voice", "no voice requested and no default configured", nil))
		}

		audio, err := o.deps.Synthesizer.Synthesize(ctx, text, voice)
		if err != nil {
			return o.fail(logger, result, "speech synthesis failed", err,
				logging.String("voice", voice),
				logging.Int("words", textprep.WordCount(text)))
		}

		transcoded, err = o.deps.Uploader.UploadAndTranscode(ctx, audio, accessToken)
		if err != nil {
			return o.fail(logger, result, "upload and transcode failed", err, logging.Int("audio_bytes", len(audio)))
		}
		o.deps.Cache.Put(ctx, key, transcoded)
	}

	var written *model.Card
	if existing := o.deps.Cards.FindExistingCard(ctx, accessToken); existing != nil {
		written, err = o.deps.Cards.UpdateCard(ctx, existing, meta, transcoded, accessToken)
	} else {
		written, err = o.deps.Cards.CreateCard(ctx, meta, transcoded, accessToken)
	}
	if err != nil {
		return o.fail(logger, result, "card write failed", err, logging.String("content_hash", transcoded.ContentHash))
	}

	result.Success = true
	result.CardID = written.CardID
	result.TranscodeInfo = &transcoded
	logger.Info("story added to card",
		logging.String(logging.FieldCardID, written.CardID),
		logging.Int(logging.FieldChapterCount, len(written.Content.Chapters)),
		logging.Bool("cached", result.Cached),
		logging.Bool("tokens_refreshed", result.TokensRefreshed),
		logging.Duration("elapsed", time.Since(start)),
	)
	return result
}

func (o *Orchestrator) validate(text string) error {
	words := textprep.WordCount(text)
	if words == 0 {
		return apperr.Validation("story text is empty")
	}
	if o.settings.MaxWords > 0 && words > o.settings.MaxWords {
		return apperr.Validation(fmt.Sprintf("story is %d words; the limit is %d", words, o.settings.MaxWords))
	}
	return nil
}

func (o *Orchestrator) fail(logger *slog.Logger, result Result, msg string, err error, attrs ...logging.Attr) Result {
	attrs = append(attrs,
		logging.Error(err),
		logging.String(logging.FieldErrorKind, apperr.Kind(err)),
		logging.String(logging.FieldImpact, "story was not added to the card"),
	)
	logging.ErrorWithContext(logger, msg, "workflow_failed", attrs...)
	return o.failure(result, err)
}

func (o *Orchestrator) failure(result Result, err error) Result {
	result.Success = false
	result.CardID = ""
	result.TranscodeInfo = nil
	result.Error = apperr.UserMessage(err)
	result.Kind = apperr.Kind(err)
	return result
}
