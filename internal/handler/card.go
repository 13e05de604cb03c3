package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/workflow"
)

// CardFinder looks up the shared card.
type CardFinder interface {
	FindExistingCard(ctx context.Context, accessToken string) *model.Card
}

// CardHandler exposes the current state of the shared card.
type CardHandler struct {
	tokens   workflow.TokenManager
	cards    CardFinder
	sessions *Sessions
	logger   *slog.Logger
}

func NewCardHandler(tokens workflow.TokenManager, cards CardFinder, sessions *Sessions, logger *slog.Logger) *CardHandler {
	return &CardHandler{
		tokens:   tokens,
		cards:    cards,
		sessions: sessions,
		logger:   logging.NewComponentLogger(logger, "handler.card"),
	}
}

type chapterSummary struct {
	Key      string  `json:"key"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Icon     string  `json:"icon,omitempty"`
}

type cardResponse struct {
	CardID    string               `json:"cardId"`
	Title     string               `json:"title"`
	CreatedAt time.Time            `json:"createdAt,omitzero"`
	Media     model.AggregateMedia `json:"media"`
	Chapters  []chapterSummary     `json:"chapters"`
}

func summarize(c *model.Card) cardResponse {
	resp := cardResponse{
		CardID:    c.CardID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		Media:     c.Metadata.Media,
		Chapters:  make([]chapterSummary, 0, len(c.Content.Chapters)),
	}
	for _, ch := range c.Content.Chapters {
		s := chapterSummary{Key: ch.Key, Title: ch.Title, Icon: ch.Display.Icon16x16}
		for _, tr := range ch.Tracks {
			s.Duration += tr.Duration
		}
		resp.Chapters = append(resp.Chapters, s)
	}
	return resp
}

// Get returns the shared card, or 404 if none exists yet.
func (h *CardHandler) Get(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	pair, err := h.sessions.Tokens(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}

	pair, refreshed, err := h.tokens.EnsureValid(ctx, pair)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, h.logger), "token refresh failed", "token_refresh_failed", logging.Error(err))
		resp := jsonResponse(http.StatusUnauthorized, errorBody{Error: apperr.UserMessage(err), Kind: apperr.Kind(err)})
		return withCookies(resp, h.sessions.Clear()), nil
	}

	var resp events.APIGatewayProxyResponse
	if c := h.cards.FindExistingCard(ctx, pair.AccessToken); c != nil {
		resp = jsonResponse(http.StatusOK, summarize(c))
	} else {
		resp = errorResponse(http.StatusNotFound, "No story card yet")
	}

	resp, err = h.sessions.Reseal(ctx, resp, pair, refreshed)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, h.logger), "could not store refreshed tokens", "session_reseal_failed", logging.Error(err))
	}
	return resp, nil
}
