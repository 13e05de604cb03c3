package workflow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/llm"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/textprep"
)

const moderationRejected = "story did not pass moderation"

// Storyteller writes a story from a prompt, moderates it and submits it.
type Storyteller struct {
	generator llm.Generator
	moderator llm.Moderator
	runner    *Orchestrator
	logger    *slog.Logger
}

func NewStoryteller(generator llm.Generator, moderator llm.Moderator, runner *Orchestrator, logger *slog.Logger) *Storyteller {
	return &Storyteller{
		generator: generator,
		moderator: moderator,
		runner:    runner,
		logger:    logging.NewComponentLogger(logger, "storyteller"),
	}
}

// Tell generates, moderates and runs. Moderation fails closed: an error from
// the moderator rejects the story exactly like a negative verdict.
func (s *Storyteller) Tell(ctx context.Context, prompt string, meta model.StoryMetadata, tokens model.TokenPair) Result {
	logger := logging.WithContext(ctx, s.logger)
	base := Result{Tokens: tokens}

	if strings.TrimSpace(prompt) == "" {
		return s.runner.failure(base, apperr.Validation("story prompt is empty"))
	}

	story, err := s.generator.Generate(ctx, prompt)
	if err == nil && strings.TrimSpace(story) == "" {
		err = apperr.Wrap(apperr.ErrExternalService, "storyteller", "generate", "generator returned no text", nil)
	}
	if err != nil {
		return s.runner.fail(logger, base, "story generation failed", err)
	}

	score, err := s.moderator.Score(ctx, story)
	switch {
	case err != nil:
		logging.WarnWithContext(logger, "moderation failed; rejecting story", "moderation_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "generated story discarded"),
		)
		return s.runner.failure(base, apperr.Validation(moderationRejected))
	case !score.IsAppropriate:
		logger.Info("story rejected by moderation",
			logging.Float64("score", score.Score),
			logging.String("reasoning", score.Reasoning),
		)
		return s.runner.failure(base, apperr.Validation(moderationRejected))
	}

	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = textprep.Title(story)
	}
	return s.runner.Run(ctx, story, meta, tokens)
}
