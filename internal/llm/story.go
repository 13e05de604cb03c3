package llm

import (
	"context"
	"strings"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
)

// Generator writes story text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Moderator scores story text for suitability.
type Moderator interface {
	Score(ctx context.Context, text string) (model.ModerationScore, error)
}

var (
	_ Generator = (*Client)(nil)
	_ Moderator = (*Client)(nil)
)

// Generate writes a story for prompt. The result is usually light markdown.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", apperr.Validation("story prompt is empty")
	}
	payload := chatCompletionRequest{
		Messages: []chatMessage{
			{Role: "system", Content: StoryPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.8,
	}
	story, err := c.complete(ctx, payload, "generate")
	if err != nil {
		return "", err
	}
	c.logger.Info("story generated", logging.Int("characters", len(story)))
	return story, nil
}

// Score asks the model whether text suits young children. A reply that
// cannot be parsed is an error, never a pass.
func (c *Client) Score(ctx context.Context, text string) (model.ModerationScore, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ModerationScore{}, apperr.Validation("story text is empty")
	}
	payload := chatCompletionRequest{
		Messages: []chatMessage{
			{Role: "system", Content: ModerationPrompt},
			{Role: "user", Content: text},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	content, err := c.complete(ctx, payload, "moderate")
	if err != nil {
		return model.ModerationScore{}, err
	}

	var score model.ModerationScore
	if err := DecodeJSON(content, &score); err != nil {
		return model.ModerationScore{}, apperr.Wrap(apperr.ErrExternalService, "llm", "moderate", "parse verdict", err)
	}
	score.Score = min(max(score.Score, 0), 1)
	score.Reasoning = strings.TrimSpace(score.Reasoning)

	c.logger.Info("story moderated",
		logging.Bool("appropriate", score.IsAppropriate),
		logging.Float64("score", score.Score),
	)
	return score, nil
}
