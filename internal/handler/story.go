package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/workflow"
)

// Runner submits finished story text.
type Runner interface {
	Run(ctx context.Context, storyText string, meta model.StoryMetadata, tokens model.TokenPair) workflow.Result
}

// Teller writes a story from a prompt and submits it.
type Teller interface {
	Tell(ctx context.Context, prompt string, meta model.StoryMetadata, tokens model.TokenPair) workflow.Result
}

type storyRequest struct {
	Text   string `json:"text"`
	Prompt string `json:"prompt"`
	Title  string `json:"title"`
	IconID string `json:"iconId"`
	Author string `json:"author"`
	Voice  string `json:"voice"`
}

func (r storyRequest) metadata() model.StoryMetadata {
	return model.StoryMetadata{
		Title:  strings.TrimSpace(r.Title),
		IconID: strings.TrimSpace(r.IconID),
		Author: strings.TrimSpace(r.Author),
		Voice:  strings.TrimSpace(r.Voice),
	}
}

// StoryHandler accepts story submissions.
type StoryHandler struct {
	runner   Runner
	teller   Teller
	sessions *Sessions
	logger   *slog.Logger
}

// NewStoryHandler returns a StoryHandler. teller may be nil when story
// generation is not configured.
func NewStoryHandler(runner Runner, teller Teller, sessions *Sessions, logger *slog.Logger) *StoryHandler {
	return &StoryHandler{
		runner:   runner,
		teller:   teller,
		sessions: sessions,
		logger:   logging.NewComponentLogger(logger, "handler.story"),
	}
}

// Submit narrates the posted text and adds it to the shared card.
func (h *StoryHandler) Submit(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	pair, err := h.sessions.Tokens(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}

	var body storyRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	result := h.runner.Run(ctx, body.Text, body.metadata(), pair)
	return h.respond(ctx, result), nil
}

// Generate writes a story from a prompt, then submits it like Submit.
func (h *StoryHandler) Generate(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if h.teller == nil {
		return errorResponse(http.StatusNotImplemented, "Story generation is not configured."), nil
	}
	pair, err := h.sessions.Tokens(ctx, req)
	if err != nil {
		return unauthorized(err), nil
	}

	var body storyRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	result := h.teller.Tell(ctx, body.Prompt, body.metadata(), pair)
	return h.respond(ctx, result), nil
}

// respond renders result and stores refreshed tokens, which happens even when
// the submission failed after the refresh.
func (h *StoryHandler) respond(ctx context.Context, result workflow.Result) events.APIGatewayProxyResponse {
	resp := jsonResponse(statusForKind(result.Kind), result)
	resp, err := h.sessions.Reseal(ctx, resp, result.Tokens, result.TokensRefreshed)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, h.logger), "could not store refreshed tokens", "session_reseal_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next request refreshes again"),
		)
	}
	return resp
}
