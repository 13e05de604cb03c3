// Package transcode pushes synthesized audio to the platform and waits for
// the transcoder to publish a content hash.
package transcode

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/platform"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxAttempts  = 60
)

// Sleeper waits between polls. It returns early with ctx.Err() when ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Uploader uploads audio and polls for the transcode result.
// Calls are not idempotent: the same bytes uploaded twice produce two uploads.
type Uploader struct {
	api          platform.API
	pollInterval time.Duration
	maxAttempts  int
	sleep        Sleeper
	logger       *slog.Logger
}

type Option func(*Uploader)

func WithPollInterval(d time.Duration) Option {
	return func(u *Uploader) {
		if d > 0 {
			u.pollInterval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.maxAttempts = n
		}
	}
}

// WithSleeper replaces the wait between polls. Tests use it to avoid real delays.
func WithSleeper(s Sleeper) Option {
	return func(u *Uploader) {
		if s != nil {
			u.sleep = s
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		u.logger = logging.NewComponentLogger(logger, "transcode")
	}
}

// NewUploader constructs an Uploader over api.
func NewUploader(api platform.API, opts ...Option) *Uploader {
	u := &Uploader{
		api:          api,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		sleep:        sleepContext,
		logger:       logging.NewComponentLogger(nil, "transcode"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// UploadAndTranscode requests an upload slot, PUTs audio to it and polls until
// the transcoder reports a content hash or the attempt ceiling is reached.
func (u *Uploader) UploadAndTranscode(ctx context.Context, audio []byte, accessToken string) (model.TranscodeResult, error) {
	if len(audio) == 0 {
		return model.TranscodeResult{}, apperr.Wrap(apperr.ErrUpload, "transcode", "upload", "audio buffer is empty", nil)
	}

	slot, err := u.api.RequestUploadSlot(ctx, accessToken)
	if err != nil {
		return model.TranscodeResult{}, apperr.Wrap(apperr.ErrUpload, "transcode", "request upload slot", "", err)
	}
	if strings.TrimSpace(slot.UploadURL) == "" {
		return model.TranscodeResult{}, apperr.Wrap(apperr.ErrUpload, "transcode", "request upload slot", "platform returned no upload url", nil)
	}
	if strings.TrimSpace(slot.UploadID) == "" {
		return model.TranscodeResult{}, apperr.Wrap(apperr.ErrUpload, "transcode", "request upload slot", "platform returned no upload id", nil)
	}

	logger := u.logger.With(logging.String(logging.FieldUploadID, slot.UploadID))
	if err := u.api.PutAudio(ctx, slot.UploadURL, audio); err != nil {
		return model.TranscodeResult{}, apperr.Wrap(apperr.ErrUpload, "transcode", "put audio", "", err)
	}
	logger.Info("audio uploaded", logging.Int("bytes", len(audio)))

	return u.poll(ctx, slot.UploadID, accessToken, logger)
}

func (u *Uploader) poll(ctx context.Context, uploadID, accessToken string, logger *slog.Logger) (model.TranscodeResult, error) {
	start := time.Now()
	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		status, err := u.api.TranscodeStatus(ctx, uploadID, accessToken)
		switch {
		case err != nil:
			logging.WarnWithContext(logger, "transcode status poll failed", "transcode_poll_failed",
				logging.Int(logging.FieldAttempt, attempt),
				logging.Error(err),
				logging.String(logging.FieldImpact, "poll counted as an attempt; retrying"),
			)
		case status.Ready && status.Result.ContentHash != "":
			logger.Info("transcode complete",
				logging.Int(logging.FieldAttempt, attempt),
				logging.Duration("elapsed", time.Since(start)),
				logging.Float64("duration_seconds", status.Result.Duration),
				logging.Int64("file_size_bytes", status.Result.FileSizeBytes),
			)
			return status.Result, nil
		default:
			logger.Debug("transcode pending", logging.Int(logging.FieldAttempt, attempt))
		}

		if attempt == u.maxAttempts {
			break
		}
		if err := u.sleep(ctx, u.pollInterval); err != nil {
			return model.TranscodeResult{}, apperr.Wrap(apperr.ErrExternalService, "transcode", "poll", "cancelled while waiting for transcode", err)
		}
	}

	return model.TranscodeResult{}, &apperr.TranscodeTimeoutError{UploadID: uploadID, Attempts: u.maxAttempts}
}
