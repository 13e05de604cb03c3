// Package cache remembers transcode results by story text so iterating on the
// same story does not pay for TTS, upload and transcode again.
//
// The cache is a development aid. Production always gets Nop, and failures
// never reach the caller: a broken cache only costs a re-synthesis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/danwrong/yotohero/internal/config"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
)

// ErrMiss is returned by a Store when it holds no usable entry for a key.
var ErrMiss = errors.New("cache miss")

// Cache is the best-effort view the workflow uses.
type Cache interface {
	Get(ctx context.Context, key string) (model.CachedTranscodeEntry, bool)
	Put(ctx context.Context, key string, result model.TranscodeResult)
}

// Store is a cache backend that reports its errors.
type Store interface {
	Load(ctx context.Context, key string) (model.CachedTranscodeEntry, error)
	Save(ctx context.Context, entry model.CachedTranscodeEntry) error
}

// Key returns the hex SHA-256 of the NFC-normalized, trimmed story text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}

func validKey(key string) bool {
	if len(key) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

// Nop never hits and never stores.
type Nop struct{}

func (Nop) Get(context.Context, string) (model.CachedTranscodeEntry, bool) {
	return model.CachedTranscodeEntry{}, false
}

func (Nop) Put(context.Context, string, model.TranscodeResult) {}

// BestEffort adapts a Store to Cache, logging instead of returning errors.
type BestEffort struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewBestEffort(store Store, logger *slog.Logger) *BestEffort {
	return &BestEffort{
		store:  store,
		logger: logging.NewComponentLogger(logger, "cache"),
		now:    time.Now,
	}
}

func (c *BestEffort) Get(ctx context.Context, key string) (model.CachedTranscodeEntry, bool) {
	entry, err := c.store.Load(ctx, key)
	switch {
	case err == nil:
		c.logger.Info("transcode cache hit", logging.String(logging.FieldCacheKey, key))
		return entry, true
	case errors.Is(err, ErrMiss):
		c.logger.Debug("transcode cache miss", logging.String(logging.FieldCacheKey, key))
	default:
		logging.WarnWithContext(c.logger, "transcode cache read failed", "cache_get_failed",
			logging.String(logging.FieldCacheKey, key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "treated as a miss; audio will be synthesized"),
		)
	}
	return model.CachedTranscodeEntry{}, false
}

func (c *BestEffort) Put(ctx context.Context, key string, result model.TranscodeResult) {
	entry := model.CachedTranscodeEntry{
		StoryTextHash:   key,
		TranscodeResult: result,
		CreatedAt:       c.now().UTC(),
	}
	if err := c.store.Save(ctx, entry); err != nil {
		logging.WarnWithContext(c.logger, "transcode cache write failed", "cache_put_failed",
			logging.String(logging.FieldCacheKey, key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next identical story is synthesized again"),
		)
		return
	}
	c.logger.Debug("transcode cached", logging.String(logging.FieldCacheKey, key))
}

// Deps carries the clients a backend may need.
type Deps struct {
	Dynamo DynamoAPI
	Logger *slog.Logger
}

// New picks the backend named in cfg. Production always gets Nop.
func New(cfg *config.Config, deps Deps) (Cache, error) {
	if cfg.IsProduction() {
		return Nop{}, nil
	}
	switch cfg.Cache.Backend {
	case config.CacheBackendFile:
		fc, err := NewFileCache(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		return NewBestEffort(fc, deps.Logger), nil
	case config.CacheBackendDynamoDB:
		if deps.Dynamo == nil {
			return nil, errors.New("dynamodb cache backend requires a dynamodb client")
		}
		return NewBestEffort(NewDynamoCache(deps.Dynamo, cfg.Cache.Table, cfg.CacheTTL()), deps.Logger), nil
	default:
		return Nop{}, nil
	}
}
