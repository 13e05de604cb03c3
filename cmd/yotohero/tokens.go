package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/danwrong/yotohero/internal/model"
)

var errNotLoggedIn = errors.New("not logged in (run `yotohero auth login`)")

// tokenStore keeps the token pair in a 0600 JSON file. A sibling lock file
// serializes concurrent CLI runs that refresh at the same time.
type tokenStore struct {
	path string
}

func newTokenStore(path string) *tokenStore {
	return &tokenStore{path: path}
}

func (s *tokenStore) Path() string { return s.path }

func (s *tokenStore) Load() (model.TokenPair, error) {
	unlock, err := s.lock(false)
	if err != nil {
		return model.TokenPair{}, err
	}
	defer unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.TokenPair{}, errNotLoggedIn
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("read token file: %w", err)
	}
	var pair model.TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return model.TokenPair{}, fmt.Errorf("decode token file %s: %w", s.path, err)
	}
	if pair.AccessToken == "" {
		return model.TokenPair{}, errNotLoggedIn
	}
	return pair, nil
}

func (s *tokenStore) Save(pair model.TokenPair) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	unlock, err := s.lock(true)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod token file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	return os.Rename(tmpName, s.path)
}

func (s *tokenStore) lock(exclusive bool) (func(), error) {
	if _, err := os.Stat(filepath.Dir(s.path)); errors.Is(err, os.ErrNotExist) {
		return func() {}, nil
	}
	fl := flock.New(s.path + ".lock")
	var err error
	if exclusive {
		err = fl.Lock()
	} else {
		err = fl.RLock()
	}
	if err != nil {
		return nil, fmt.Errorf("lock token file: %w", err)
	}
	return func() { _ = fl.Unlock() }, nil
}
