// Package card merges story chapters into the single shared playlist card.
//
// Every write sends the whole card document. Chapter keys, overlay labels and
// the aggregate media totals are rebuilt from the merged chapter list on each
// write, so a stale or partial earlier write cannot drift them. Two writers
// working from the same snapshot race; the later write wins and the other
// chapter is lost.
package card

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/danwrong/yotohero/internal/apperr"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/platform"
)

// CardTitle identifies the one card this service manages. Caller titles name
// chapters, never the card, so lookups always converge on it.
const CardTitle = "Yoto Hero Stories"

const (
	trackType     = "audio"
	defaultFormat = "aac"
)

var errEmptyResponse = errors.New("platform returned no card")

// Synchronizer reads, merges and writes the shared card.
type Synchronizer struct {
	api         platform.API
	title       string
	defaultIcon string
	logger      *slog.Logger
}

type Option func(*Synchronizer)

// WithTitle overrides CardTitle. Intended for test environments sharing an account.
func WithTitle(title string) Option {
	return func(s *Synchronizer) {
		if strings.TrimSpace(title) != "" {
			s.title = title
		}
	}
}

// WithDefaultIcon sets the icon used when a story has none.
func WithDefaultIcon(icon string) Option {
	return func(s *Synchronizer) {
		s.defaultIcon = icon
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logging.NewComponentLogger(logger, "card")
	}
}

func NewSynchronizer(api platform.API, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		api:    api,
		title:  CardTitle,
		logger: logging.NewComponentLogger(nil, "card"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Title is the card title this synchronizer manages.
func (s *Synchronizer) Title() string { return s.title }

// FindExistingCard returns the newest card carrying the managed title with its
// chapters loaded, or nil. Lookup failures are logged and read as "no card yet",
// which is safe because creation converges on the same title.
func (s *Synchronizer) FindExistingCard(ctx context.Context, accessToken string) *model.Card {
	summaries, err := s.api.ListContent(ctx, accessToken)
	if err != nil {
		logging.WarnWithContext(s.logger, "list content failed", "card_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a new card will be created"),
		)
		return nil
	}

	var matches []model.CardSummary
	for _, summary := range summaries {
		if summary.Title == s.title {
			matches = append(matches, summary)
		}
	}
	if len(matches) == 0 {
		s.logger.Info("no existing card", logging.Int("cards_listed", len(summaries)))
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if len(matches) > 1 {
		s.logger.Warn("multiple cards share the managed title; using the newest",
			logging.Int("matches", len(matches)),
			logging.String(logging.FieldCardID, matches[0].CardID),
		)
	}

	card, err := s.api.GetContent(ctx, matches[0].CardID, accessToken)
	if err != nil || card == nil {
		logging.WarnWithContext(s.logger, "fetch card detail failed", "card_lookup_failed",
			logging.String(logging.FieldCardID, matches[0].CardID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a new card will be created"),
		)
		return nil
	}
	if card.CardID == "" {
		card.CardID = matches[0].CardID
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = matches[0].CreatedAt
	}
	return card
}

// CreateCard writes a new card holding a single chapter keyed "01".
func (s *Synchronizer) CreateCard(ctx context.Context, meta model.StoryMetadata, result model.TranscodeResult, accessToken string) (*model.Card, error) {
	chapters := []model.Chapter{s.newChapter(1, meta, result)}
	card := model.Card{
		Title:   s.title,
		Content: model.CardContent{Chapters: chapters},
		Metadata: model.CardMetadata{
			Media: Aggregate(chapters),
		},
	}

	written, err := s.api.WriteContent(ctx, card, accessToken)
	if err != nil {
		return nil, &apperr.CardWriteError{ChapterCount: 1, Err: err}
	}
	if written == nil {
		return nil, &apperr.CardWriteError{ChapterCount: 1, Err: errEmptyResponse}
	}
	s.logger.Info("card created",
		logging.String(logging.FieldCardID, written.CardID),
		logging.Int(logging.FieldChapterCount, 1),
	)
	return written, nil
}

// UpdateCard appends a chapter to existing and writes the full merged card.
// If existing came from a list view without chapters, the detail is fetched first.
func (s *Synchronizer) UpdateCard(ctx context.Context, existing *model.Card, meta model.StoryMetadata, result model.TranscodeResult, accessToken string) (*model.Card, error) {
	if existing == nil || existing.CardID == "" {
		return nil, apperr.Validation("update requires an existing card id")
	}
	logger := s.logger.With(logging.String(logging.FieldCardID, existing.CardID))

	current := existing
	if current.Content.Chapters == nil {
		fetched, err := s.api.GetContent(ctx, existing.CardID, accessToken)
		if err == nil && fetched == nil {
			err = errEmptyResponse
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrExternalService, "card", "fetch chapters", existing.CardID, err)
		}
		current = fetched
		logger.Debug("fetched chapters for update", logging.Int(logging.FieldChapterCount, len(current.Content.Chapters)))
	}

	chapters := Merge(current.Content.Chapters, s.newChapter(len(current.Content.Chapters)+1, meta, result), s.defaultIcon)
	card := model.Card{
		CardID:  existing.CardID,
		Title:   s.title,
		Content: model.CardContent{Chapters: chapters},
		Metadata: model.CardMetadata{
			Media: Aggregate(chapters),
		},
	}

	written, err := s.api.WriteContent(ctx, card, accessToken)
	if err != nil {
		return nil, &apperr.CardWriteError{CardID: existing.CardID, ChapterCount: len(chapters), Err: err}
	}
	if written == nil {
		written = &card
	}
	if written.CardID == "" {
		written.CardID = existing.CardID
	}
	logger.Info("card updated",
		logging.Int(logging.FieldChapterCount, len(chapters)),
		logging.Float64("total_duration_seconds", card.Metadata.Media.Duration),
		logging.Int64("total_file_size_bytes", card.Metadata.Media.FileSize),
	)
	return written, nil
}

// Sync updates the managed card, creating it when none exists.
func (s *Synchronizer) Sync(ctx context.Context, meta model.StoryMetadata, result model.TranscodeResult, accessToken string) (*model.Card, error) {
	if existing := s.FindExistingCard(ctx, accessToken); existing != nil {
		return s.UpdateCard(ctx, existing, meta, result, accessToken)
	}
	return s.CreateCard(ctx, meta, result, accessToken)
}

func (s *Synchronizer) newChapter(position int, meta model.StoryMetadata, result model.TranscodeResult) model.Chapter {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = "Story " + strconv.Itoa(position)
	}
	display := model.Display{Icon16x16: IconRef(meta.IconID, s.defaultIcon)}
	return model.Chapter{
		Title:   title,
		Display: display,
		Tracks: []model.Track{{
			Title:    title,
			TrackURL: result.MediaURI(),
			Duration: result.Duration,
			FileSize: result.FileSizeBytes,
			Channels: result.ChannelLayout,
			Format:   result.Format,
			Type:     trackType,
			Display:  display,
		}},
	}
}

// Merge returns existing chapters followed by next, normalized to the write
// shape and re-keyed by position. existing is not modified.
func Merge(existing []model.Chapter, next model.Chapter, defaultIcon string) []model.Chapter {
	merged := make([]model.Chapter, 0, len(existing)+1)
	for _, ch := range existing {
		merged = append(merged, normalizeChapter(ch, defaultIcon))
	}
	merged = append(merged, normalizeChapter(next, defaultIcon))
	for i := range merged {
		applyPosition(&merged[i], i+1)
	}
	return merged
}

// Aggregate sums track duration and size across all chapters.
func Aggregate(chapters []model.Chapter) model.AggregateMedia {
	var total model.AggregateMedia
	for _, ch := range chapters {
		for _, tr := range ch.Tracks {
			total.Duration += tr.Duration
			total.FileSize += tr.FileSize
		}
	}
	return total
}

// ChapterKey formats a one-based position as a two-digit key.
func ChapterKey(position int) string {
	return fmt.Sprintf("%02d", position)
}

// IconRef turns an icon id into a media reference, falling back to fallback.
func IconRef(iconID, fallback string) string {
	iconID = strings.TrimSpace(iconID)
	switch {
	case iconID == "":
		return fallback
	case strings.HasPrefix(iconID, "yoto:#"):
		return iconID
	default:
		return "yoto:#" + iconID
	}
}

func normalizeChapter(ch model.Chapter, defaultIcon string) model.Chapter {
	out := model.Chapter{
		Title:   strings.TrimSpace(ch.Title),
		Display: ch.Display,
		Tracks:  make([]model.Track, 0, len(ch.Tracks)),
	}
	if out.Display.Icon16x16 == "" {
		out.Display.Icon16x16 = defaultIcon
	}
	for _, tr := range ch.Tracks {
		if tr.Type == "" {
			tr.Type = trackType
		}
		if tr.Format == "" {
			tr.Format = defaultFormat
		}
		if tr.Title == "" {
			tr.Title = out.Title
		}
		if tr.Display.Icon16x16 == "" {
			tr.Display = out.Display
		}
		out.Tracks = append(out.Tracks, tr)
	}
	return out
}

func applyPosition(ch *model.Chapter, position int) {
	label := strconv.Itoa(position)
	ch.Key = ChapterKey(position)
	ch.OverlayLabel = label
	for i := range ch.Tracks {
		ch.Tracks[i].Key = ChapterKey(i + 1)
		ch.Tracks[i].OverlayLabel = label
	}
}
