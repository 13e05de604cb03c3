// Package platform talks to the media hosting and content management API
// that stores transcoded audio and cards.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danwrong/yotohero/internal/model"
)

var (
	// ErrNotFound is returned when a requested card or upload does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is returned when the platform rejects the access token.
	ErrUnauthorized = errors.New("access token rejected")
)

// API is the set of platform operations the uploader and card synchronizer use.
type API interface {
	RequestUploadSlot(ctx context.Context, accessToken string) (model.UploadSlot, error)
	// PutAudio uploads to a pre-signed URL; it carries no bearer token.
	PutAudio(ctx context.Context, uploadURL string, audio []byte) error
	TranscodeStatus(ctx context.Context, uploadID, accessToken string) (TranscodeStatus, error)
	ListContent(ctx context.Context, accessToken string) ([]model.CardSummary, error)
	GetContent(ctx context.Context, cardID, accessToken string) (*model.Card, error)
	// WriteContent creates a card when card.CardID is empty and replaces it otherwise.
	WriteContent(ctx context.Context, card model.Card, accessToken string) (*model.Card, error)
}

// TranscodeStatus is one poll of the transcoder. Ready is true once a content hash exists.
type TranscodeStatus struct {
	Ready  bool
	Result model.TranscodeResult
}

// StatusError is a non-2xx platform response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("platform %s %s returned %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("platform %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return nil
	}
}
