package platform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danwrong/yotohero/internal/model"
)

type uploadSlotResponse struct {
	Upload model.UploadSlot `json:"upload"`
}

type transcodeResponse struct {
	Transcode wireTranscode `json:"transcode"`
}

type wireTranscode struct {
	TranscodedSha256 string        `json:"transcodedSha256"`
	TranscodedInfo   wireMediaInfo `json:"transcodedInfo"`
}

type wireMediaInfo struct {
	Duration flexFloat  `json:"duration"`
	FileSize flexFloat  `json:"fileSize"`
	Channels flexString `json:"channels"`
	Format   string     `json:"format"`
}

func (r transcodeResponse) status() TranscodeStatus {
	t := r.Transcode
	hash := strings.TrimSpace(t.TranscodedSha256)
	if hash == "" {
		return TranscodeStatus{}
	}
	return TranscodeStatus{
		Ready: true,
		Result: model.TranscodeResult{
			ContentHash:   hash,
			Duration:      float64(t.TranscodedInfo.Duration),
			FileSizeBytes: int64(t.TranscodedInfo.FileSize),
			ChannelLayout: string(t.TranscodedInfo.Channels),
			Format:        t.TranscodedInfo.Format,
		},
	}
}

type listResponse struct {
	Cards []wireSummary `json:"cards"`
}

type wireSummary struct {
	CardID    string `json:"cardId"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
}

// wireCard tolerates the loose typing the content API uses for numbers.
type wireCard struct {
	CardID    string       `json:"cardId"`
	Title     string       `json:"title"`
	Content   *wireContent `json:"content"`
	Metadata  wireMetadata `json:"metadata"`
	CreatedAt string       `json:"createdAt"`
}

type wireContent struct {
	Chapters []wireChapter `json:"chapters"`
}

type wireMetadata struct {
	Media wireMediaInfo `json:"media"`
}

type wireChapter struct {
	Key          string        `json:"key"`
	Title        string        `json:"title"`
	OverlayLabel string        `json:"overlayLabel"`
	Tracks       []wireTrack   `json:"tracks"`
	Display      model.Display `json:"display"`
}

type wireTrack struct {
	Key          string        `json:"key"`
	Title        string        `json:"title"`
	TrackURL     string        `json:"trackUrl"`
	Duration     flexFloat     `json:"duration"`
	FileSize     flexFloat     `json:"fileSize"`
	Channels     flexString    `json:"channels"`
	Format       string        `json:"format"`
	Type         string        `json:"type"`
	OverlayLabel string        `json:"overlayLabel"`
	Display      model.Display `json:"display"`
}

// DecodeCard reads a card detail body in either the nested {"card":{...}}
// shape or the flat shape. A card without a content object has nil Chapters.
func DecodeCard(raw []byte) (*model.Card, error) {
	var envelope struct {
		Card json.RawMessage `json:"card"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode card: %w", err)
	}
	body := raw
	if trimmed := bytes.TrimSpace(envelope.Card); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		body = trimmed
	}

	var w wireCard
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode card: %w", err)
	}

	card := &model.Card{
		CardID:    w.CardID,
		Title:     w.Title,
		CreatedAt: parseTimestamp(w.CreatedAt),
	}
	card.Metadata.Media = model.AggregateMedia{
		Duration: float64(w.Metadata.Media.Duration),
		FileSize: int64(w.Metadata.Media.FileSize),
	}
	if w.Content != nil {
		card.Content.Chapters = make([]model.Chapter, 0, len(w.Content.Chapters))
		for _, wc := range w.Content.Chapters {
			card.Content.Chapters = append(card.Content.Chapters, wc.model())
		}
	}
	return card, nil
}

func (wc wireChapter) model() model.Chapter {
	ch := model.Chapter{
		Key:          wc.Key,
		Title:        wc.Title,
		OverlayLabel: wc.OverlayLabel,
		Display:      wc.Display,
		Tracks:       make([]model.Track, 0, len(wc.Tracks)),
	}
	for _, wt := range wc.Tracks {
		ch.Tracks = append(ch.Tracks, model.Track{
			Key:          wt.Key,
			Title:        wt.Title,
			TrackURL:     wt.TrackURL,
			Duration:     float64(wt.Duration),
			FileSize:     int64(wt.FileSize),
			Channels:     string(wt.Channels),
			Format:       wt.Format,
			Type:         wt.Type,
			OverlayLabel: wt.OverlayLabel,
			Display:      wt.Display,
		})
	}
	return ch
}

// writeBody is the document POSTed to /content. createdAt is server-owned.
type writeBody struct {
	CardID   string             `json:"cardId,omitempty"`
	Title    string             `json:"title"`
	Content  model.CardContent  `json:"content"`
	Metadata model.CardMetadata `json:"metadata"`
}

func writeRequest(card model.Card) writeBody {
	content := card.Content
	if content.Chapters == nil {
		content.Chapters = []model.Chapter{}
	}
	return writeBody{
		CardID:   card.CardID,
		Title:    card.Title,
		Content:  content,
		Metadata: card.Metadata,
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts the timestamp layouts seen from the content API.
// Unparseable values become the zero time and so sort last.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

// flexFloat decodes a JSON number or numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	*f = flexFloat(v)
	return nil
}

// flexString decodes a JSON string or number as text.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(trimmed)
	return nil
}
