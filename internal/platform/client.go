package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
)

const (
	AudioContentType = "audio/mpeg"

	errorBodyLimit = 4096
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client implements API over HTTPS.
type Client struct {
	baseURL string
	client  HTTPDoer
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "platform")
	}
}

// NewClient constructs a platform client for baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(nil, "platform"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RequestUploadSlot(ctx context.Context, accessToken string) (model.UploadSlot, error) {
	var resp uploadSlotResponse
	if err := c.doJSONRequest(ctx, http.MethodGet, "/media/transcode/audio/uploadUrl", nil, accessToken, &resp); err != nil {
		return model.UploadSlot{}, err
	}
	return resp.Upload, nil
}

func (c *Client) PutAudio(ctx context.Context, uploadURL string, audio []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(audio))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", AudioContentType)
	req.ContentLength = int64(len(audio))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The pre-signed URL carries credentials in its query; keep them out of errors.
		return statusError(resp, http.MethodPut, redactQuery(uploadURL))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) TranscodeStatus(ctx context.Context, uploadID, accessToken string) (TranscodeStatus, error) {
	path := fmt.Sprintf("/media/upload/%s/transcoded?loudnorm=false", url.PathEscape(uploadID))
	var resp transcodeResponse
	if err := c.doJSONRequest(ctx, http.MethodGet, path, nil, accessToken, &resp); err != nil {
		return TranscodeStatus{}, err
	}
	return resp.status(), nil
}

func (c *Client) ListContent(ctx context.Context, accessToken string) ([]model.CardSummary, error) {
	var resp listResponse
	if err := c.doJSONRequest(ctx, http.MethodGet, "/content/mine", nil, accessToken, &resp); err != nil {
		return nil, err
	}
	out := make([]model.CardSummary, 0, len(resp.Cards))
	for _, w := range resp.Cards {
		out = append(out, model.CardSummary{
			CardID:    w.CardID,
			Title:     w.Title,
			CreatedAt: parseTimestamp(w.CreatedAt),
		})
	}
	return out, nil
}

func (c *Client) GetContent(ctx context.Context, cardID, accessToken string) (*model.Card, error) {
	var raw json.RawMessage
	if err := c.doJSONRequest(ctx, http.MethodGet, "/content/"+url.PathEscape(cardID), nil, accessToken, &raw); err != nil {
		return nil, err
	}
	return DecodeCard(raw)
}

func (c *Client) WriteContent(ctx context.Context, card model.Card, accessToken string) (*model.Card, error) {
	var raw json.RawMessage
	if err := c.doJSONRequest(ctx, http.MethodPost, "/content", writeRequest(card), accessToken, &raw); err != nil {
		return nil, err
	}

	written := card
	if len(bytes.TrimSpace(raw)) > 0 {
		if decoded, err := DecodeCard(raw); err == nil {
			written = *decoded
		} else {
			c.logger.Debug("write response not decodable, using request body", logging.Error(err))
		}
	}
	if written.CardID == "" {
		written.CardID = card.CardID
	}
	return &written, nil
}

func (c *Client) doJSONRequest(ctx context.Context, method, path string, body any, accessToken string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("platform %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("platform request",
		logging.String("method", method),
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp, method, path)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response, method, path string) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &StatusError{
		Method: method,
		Path:   path,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(bodyBytes)),
	}
}

func redactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<upload url>"
	}
	u.RawQuery = ""
	return u.String()
}
