package workflow

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/cache"
	"github.com/danwrong/yotohero/internal/card"
	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/platform"
	"github.com/danwrong/yotohero/internal/platform/memory"
	"github.com/danwrong/yotohero/internal/transcode"
)

type fakeTokens struct {
	refreshTo *model.TokenPair
	err       error
	calls     int
}

func (f *fakeTokens) EnsureValid(_ context.Context, pair model.TokenPair) (model.TokenPair, bool, error) {
	f.calls++
	if f.err != nil {
		return model.TokenPair{}, false, f.err
	}
	if f.refreshTo != nil {
		return *f.refreshTo, true, nil
	}
	return pair, false, nil
}

type fakeSynth struct {
	calls  int
	voices []string
	texts  []string
	err    error
	panic  bool
}

func (f *fakeSynth) Synthesize(_ context.Context, text, voiceID string) ([]byte, error) {
	f.calls++
	if f.panic {
		panic("synthesizer exploded")
	}
	f.voices = append(f.voices, voiceID)
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("audio:" + text), nil
}

type harness struct {
	platform *memory.Platform
	tokens   *fakeTokens
	synth    *fakeSynth
	orch     *Orchestrator
}

func noWait(context.Context, time.Duration) error { return nil }

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	p := memory.New(nil, "")
	store, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{platform: p, tokens: &fakeTokens{}, synth: &fakeSynth{}}
	h.orch = NewOrchestrator(Deps{
		Tokens:      h.tokens,
		Cache:       cache.NewBestEffort(store, nil),
		Synthesizer: h.synth,
		Uploader:    transcode.NewUploader(p, transcode.WithSleeper(noWait)),
		Cards:       card.NewSynchronizer(p),
	}, settings)
	return h
}

var session = model.TokenPair{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}

func TestRunCreatesCard(t *testing.T) {
	h := newHarness(t, Settings{DefaultVoice: "narrator", MaxWords: 100})

	res := h.orch.Run(context.Background(), "# The Fox\n\nThe fox slept.", model.StoryMetadata{Title: "The Fox"}, session)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.CardID == "" || res.TranscodeInfo == nil || res.TranscodeInfo.ContentHash == "" {
		t.Fatalf("incomplete result %+v", res)
	}
	if res.TokensRefreshed || res.Tokens != session {
		t.Errorf("tokens should be unchanged: %+v", res.Tokens)
	}
	if h.synth.texts[0] != "The Fox.\n\nThe fox slept." {
		t.Errorf("synthesizer got markdown: %q", h.synth.texts[0])
	}
	if h.synth.voices[0] != "narrator" {
		t.Errorf("voice = %q, want default", h.synth.voices[0])
	}
}

func TestRunReturnsRefreshedTokens(t *testing.T) {
	h := newHarness(t, Settings{DefaultVoice: "narrator"})
	fresh := model.TokenPair{AccessToken: "fresh", RefreshToken: "refresh", TokenType: "Bearer"}
	h.tokens.refreshTo = &fresh

	res := h.orch.Run(context.Background(), "A story.", model.StoryMetadata{}, session)
	if !res.Success || !res.TokensRefreshed || res.Tokens != fresh {
		t.Fatalf("expected refreshed tokens on success, got %+v", res)
	}

	h.synth.err = errors.New("tts down")
	res = h.orch.Run(context.Background(), "Another story.", model.StoryMetadata{}, session)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !res.TokensRefreshed || res.Tokens != fresh {
		t.Errorf("refreshed tokens must survive a later failure, got %+v", res)
	}
}

func TestRunCacheHitSkipsSynthesis(t *testing.T) {
	h := newHarness(t, Settings{DefaultVoice: "narrator"})
	ctx := context.Background()

	first := h.orch.Run(ctx, "Same story.", model.StoryMetadata{Title: "One"}, session)
	second := h.orch.Run(ctx, "  Same story.  ", model.StoryMetadata{Title: "Two"}, session)
	if !first.Success || !second.Success {
		t.Fatalf("runs failed: %+v / %+v", first, second)
	}
	if h.synth.calls != 1 {
		t.Errorf("synthesizer calls = %d, want 1", h.synth.calls)
	}
	if !second.Cached || first.Cached {
		t.Errorf("cached flags = %v, %v", first.Cached, second.Cached)
	}
	if second.TranscodeInfo.ContentHash != first.TranscodeInfo.ContentHash {
		t.Error("cache hit should reuse the transcode")
	}

	stored, err := h.platform.GetContent(ctx, second.CardID, "access")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Content.Chapters) != 2 || first.CardID != second.CardID {
		t.Errorf("expected both stories on one card, got %d chapters", len(stored.Content.Chapters))
	}
}

func TestRunValidation(t *testing.T) {
	h := newHarness(t, Settings{DefaultVoice: "narrator", MaxWords: 3})

	tests := []struct {
		name string
		text string
		want string
	}{
		{"empty", "   ", "story text is empty"},
		{"markdown only", "```\ncode\n```", "story text is empty"},
		{"too long", "one two three four", "story is 4 words; the limit is 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.orch.Run(context.Background(), tt.text, model.StoryMetadata{}, session)
			if res.Success || res.Kind != "validation" || res.Error != tt.want {
				t.Errorf("unexpected result %+v", res)
			}
		})
	}
	if h.synth.calls != 0 || h.tokens.calls != 0 {
		t.Errorf("validation failures must not reach collaborators (synth=%d tokens=%d)", h.synth.calls, h.tokens.calls)
	}
}

func TestRunWithoutVoice(t *testing.T) {
	h := newHarness(t, Settings{})
	res := h.orch.Run(context.Background(), "A story.", model.StoryMetadata{}, session)
	if res.Success || res.Kind != "configuration" {
		t.Fatalf("expected configuration failure, got %+v", res)
	}

	res = h.orch.Run(context.Background(), "A story.", model.StoryMetadata{Voice: "custom"}, session)
	if !res.Success || h.synth.voices[0] != "custom" {
		t.Fatalf("requested voice should be used, got %+v (%v)", res, h.synth.voices)
	}
}

func TestRunAuthenticationFailure(t *testing.T) {
	h := newHarness(t, Settings{DefaultVoice: "narrator"})
	h.tokens.err = &apperr.AuthError{Op: "refresh", Code: "invalid_grant"}

	res := h.orch.Run(context.Background(), "A story.", model.StoryMetadata{}, session)
	if res.Success || res.Kind != "authentication" {
		t.Fatalf("expected authentication failure, got %+v", res)
	}
	if !strings.Contains(res.Error, "log in again") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRunHidesUpstreamDetail(t *testing.T) {
	h := newHarness(t, Settings{DefaultVoice: "narrator"})
	h.synth.err = apperr.Wrap(apperr.ErrExternalService, "tts", "synthesize", "elevenlabs returned 500", errors.New("secret upstream body"))

	res := h.orch.Run(context.Background(), "A story.", model.StoryMetadata{}, session)
	if res.Kind != "external_service" || strings.Contains(res.Error, "secret") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	h := newHarness(t, Settings{DefaultVoice: "narrator"})
	h.synth.panic = true

	res := h.orch.Run(context.Background(), "A story.", model.StoryMetadata{}, session)
	if res.Success || res.Error == "" {
		t.Fatalf("expected a failure result, got %+v", res)
	}
}

// rejectingWrites serves reads from the wrapped platform and refuses every card write.
type rejectingWrites struct {
	platform.API
}

func (rejectingWrites) WriteContent(context.Context, model.Card, string) (*model.Card, error) {
	return nil, &platform.StatusError{Method: http.MethodPost, Path: "/content", Status: http.StatusForbidden, Body: "card is locked"}
}

func TestRunReportsRejectedCardWrite(t *testing.T) {
	ctx := context.Background()
	p := memory.New(nil, "")
	p.TranscodeDelay = 0
	existing := model.Card{CardID: "abc", Title: card.CardTitle, CreatedAt: time.Now(), Content: model.CardContent{Chapters: []model.Chapter{
		{Key: "01", Title: "One"},
		{Key: "02", Title: "Two"},
	}}}
	if err := p.Seed(ctx, existing); err != nil {
		t.Fatal(err)
	}
	orch := NewOrchestrator(Deps{
		Tokens:      &fakeTokens{},
		Synthesizer: &fakeSynth{},
		Uploader:    transcode.NewUploader(p, transcode.WithSleeper(noWait)),
		Cards:       card.NewSynchronizer(rejectingWrites{API: p}),
	}, Settings{DefaultVoice: "narrator"})

	res := orch.Run(ctx, "A third story.", model.StoryMetadata{Title: "Three"}, session)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Kind != "card_write" {
		t.Errorf("kind = %q, want card_write", res.Kind)
	}
	if !strings.Contains(res.Error, "3 chapters") || !strings.Contains(res.Error, "card abc") {
		t.Errorf("error should name the card and chapter count, got %q", res.Error)
	}
}

type fakeGenerator struct {
	story string
	err   error
}

func (f fakeGenerator) Generate(context.Context, string) (string, error) { return f.story, f.err }

type fakeModerator struct {
	score model.ModerationScore
	err   error
}

func (f fakeModerator) Score(context.Context, string) (model.ModerationScore, error) {
	return f.score, f.err
}

func TestStorytellerTell(t *testing.T) {
	h := newHarness(t, Settings{DefaultVoice: "narrator"})
	teller := NewStoryteller(
		fakeGenerator{story: "# Moon Boat\n\nA boat sailed to the moon."},
		fakeModerator{score: model.ModerationScore{IsAppropriate: true, Score: 0.97}},
		h.orch, nil,
	)

	res := teller.Tell(context.Background(), "a boat to the moon", model.StoryMetadata{}, session)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	stored, err := h.platform.GetContent(context.Background(), res.CardID, "access")
	if err != nil {
		t.Fatal(err)
	}
	if got := stored.Content.Chapters[0].Title; got != "Moon Boat" {
		t.Errorf("chapter title = %q, want heading from story", got)
	}
}

func TestStorytellerModerationFailsClosed(t *testing.T) {
	tests := []struct {
		name      string
		moderator fakeModerator
	}{
		{"moderator error", fakeModerator{err: errors.New("moderation service down")}},
		{"inappropriate", fakeModerator{score: model.ModerationScore{IsAppropriate: false, Score: 0.2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Settings{DefaultVoice: "narrator"})
			teller := NewStoryteller(fakeGenerator{story: "A story."}, tt.moderator, h.orch, nil)

			res := teller.Tell(context.Background(), "idea", model.StoryMetadata{}, session)
			if res.Success || res.Kind != "validation" || res.Error != moderationRejected {
				t.Fatalf("expected moderation rejection, got %+v", res)
			}
			if h.synth.calls != 0 {
				t.Error("rejected story must not be synthesized")
			}
		})
	}
}

func TestStorytellerEmptyGeneration(t *testing.T) {
	h := newHarness(t, Settings{DefaultVoice: "narrator"})
	teller := NewStoryteller(fakeGenerator{story: "  "}, fakeModerator{}, h.orch, nil)

	res := teller.Tell(context.Background(), "idea", model.StoryMetadata{}, session)
	if res.Success || res.Kind != "external_service" {
		t.Fatalf("expected external service failure, got %+v", res)
	}
}
