package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/danwrong/yotohero/internal/model"
)

const lockRetryDelay = 10 * time.Millisecond

// FileCache stores one JSON file per key. Each key has its own lock file, so
// writers of different keys never wait on each other.
type FileCache struct {
	dir string
}

// NewFileCache initialises a cache rooted at dir.
func NewFileCache(dir string) (*FileCache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("cache directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

// Dir exposes the backing directory for inspection.
func (c *FileCache) Dir() string { return c.dir }

// Load reads an entry. Missing and corrupt files are both misses.
func (c *FileCache) Load(ctx context.Context, key string) (model.CachedTranscodeEntry, error) {
	if !validKey(key) {
		return model.CachedTranscodeEntry{}, fmt.Errorf("invalid cache key %q", key)
	}
	unlock, err := c.lock(ctx, key, false)
	if err != nil {
		return model.CachedTranscodeEntry{}, err
	}
	defer unlock()

	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.CachedTranscodeEntry{}, ErrMiss
		}
		return model.CachedTranscodeEntry{}, fmt.Errorf("read cache entry: %w", err)
	}
	var entry model.CachedTranscodeEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.TranscodeResult.ContentHash == "" {
		return model.CachedTranscodeEntry{}, ErrMiss
	}
	return entry, nil
}

// Save writes an entry atomically under the key's exclusive lock.
func (c *FileCache) Save(ctx context.Context, entry model.CachedTranscodeEntry) error {
	key := entry.StoryTextHash
	if !validKey(key) {
		return fmt.Errorf("invalid cache key %q", key)
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("ensure cache dir: %w", err)
	}

	unlock, err := c.lock(ctx, key, true)
	if err != nil {
		return err
	}
	defer unlock()
	return writeFileAtomic(c.entryPath(key), data, 0o644)
}

// List returns every readable entry, newest first.
func (c *FileCache) List() ([]model.CachedTranscodeEntry, error) {
	paths, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	entries := make([]model.CachedTranscodeEntry, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry model.CachedTranscodeEntry
		if json.Unmarshal(data, &entry) != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// Clear removes every entry and lock file and reports how many entries were removed.
func (c *FileCache) Clear() (int, error) {
	entries, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("list cache entries: %w", err)
	}
	locks, _ := filepath.Glob(filepath.Join(c.dir, "*.lock"))
	removed := 0
	for _, path := range entries {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", filepath.Base(path), err)
		}
		removed++
	}
	for _, path := range locks {
		_ = os.Remove(path)
	}
	return removed, nil
}

func (c *FileCache) lock(ctx context.Context, key string, exclusive bool) (func(), error) {
	fl := flock.New(filepath.Join(c.dir, key+".lock"))
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("lock cache key: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock cache key %s: not acquired", key)
	}
	return func() { _ = fl.Unlock() }, nil
}

func (c *FileCache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
