// Package apperr defines the failure taxonomy shared by every component.
//
// Components tag errors with one of the sentinel markers below so the
// workflow orchestrator can classify a failure without inspecting strings.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration    = errors.New("configuration failure")
	ErrAuthentication   = errors.New("authentication failure")
	ErrValidation       = errors.New("validation failure")
	ErrExternalService  = errors.New("external service failure")
	ErrTranscodeTimeout = errors.New("transcode timeout")
	ErrCardWrite        = errors.New("card write failure")
	ErrUpload           = errors.New("upload failure")
)

// Wrap builds an error that carries component context and is tagged with the
// provided marker. A nil marker is treated as ErrExternalService.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalService
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Validation returns a ValidationFailure whose message is safe to show to end users.
func Validation(message string) error {
	return &ValidationError{Message: message}
}

// ValidationError is caller input that cannot be processed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AuthError is returned by the token manager when the authorization server
// rejects an exchange or refresh.
type AuthError struct {
	Op          string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString("auth ")
	b.WriteString(e.Op)
	if e.Status > 0 {
		fmt.Fprintf(&b, ": http %d", e.Status)
	}
	if e.Code != "" {
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	if e.Description != "" {
		b.WriteString(" (")
		b.WriteString(e.Description)
		b.WriteString(")")
	}
	if e.Err != nil && e.Code == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuthentication}
	}
	return []error{ErrAuthentication, e.Err}
}

// TranscodeTimeoutError reports that the transcoder never produced a content hash.
type TranscodeTimeoutError struct {
	UploadID string
	Attempts int
}

func (e *TranscodeTimeoutError) Error() string {
	return fmt.Sprintf("transcode not ready after %d attempts (upload %s)", e.Attempts, e.UploadID)
}

func (e *TranscodeTimeoutError) Unwrap() []error {
	return []error{ErrTranscodeTimeout, ErrExternalService}
}

// CardWriteError reports a rejected create or update of the card.
type CardWriteError struct {
	CardID       string
	ChapterCount int
	Err          error
}

func (e *CardWriteError) Error() string {
	target := "new card"
	if e.CardID != "" {
		target = "card " + e.CardID
	}
	msg := fmt.Sprintf("write %s with %d chapters", target, e.ChapterCount)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CardWriteError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCardWrite}
	}
	return []error{ErrCardWrite, e.Err}
}

// Kind returns a stable label for the failure class of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrCardWrite):
		return "card_write"
	case errors.Is(err, ErrUpload):
		return "upload"
	case errors.Is(err, ErrTranscodeTimeout):
		return "transcode_timeout"
	default:
		return "external_service"
	}
}

// UserMessage maps err to the text that may be returned to the caller.
// Internal detail is only exposed for validation and card write failures.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrAuthentication):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrConfiguration):
		return "The service is not configured correctly."
	case errors.Is(err, ErrCardWrite):
		return err.Error()
	default:
		return "The audio service is temporarily unavailable. Please try again later."
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
