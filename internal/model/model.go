package model

import "time"

// TokenPair is the OAuth2 credential set owned by the calling session.
// It is never persisted server-side.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// TranscodeResult is the platform's description of a transcoded audio asset.
type TranscodeResult struct {
	ContentHash   string  `json:"content_hash" dynamodbav:"content_hash"`
	Duration      float64 `json:"duration" dynamodbav:"duration"`
	FileSizeBytes int64   `json:"file_size_bytes" dynamodbav:"file_size_bytes"`
	ChannelLayout string  `json:"channel_layout" dynamodbav:"channel_layout"`
	Format        string  `json:"format" dynamodbav:"format"`
}

// MediaURI is the track URL that references this transcode.
func (r TranscodeResult) MediaURI() string {
	return "yoto:#" + r.ContentHash
}

// CachedTranscodeEntry is a transcode result remembered for a story text digest.
type CachedTranscodeEntry struct {
	StoryTextHash   string          `json:"story_text_hash" dynamodbav:"story_text_hash"`
	TranscodeResult TranscodeResult `json:"transcode_result" dynamodbav:"transcode_result"`
	CreatedAt       time.Time       `json:"created_at" dynamodbav:"created_at"`
	TTL             int64           `json:"-" dynamodbav:"ttl,omitempty"`
}

// StoryMetadata is caller-supplied information about a story submission.
type StoryMetadata struct {
	Title  string `json:"title"`
	IconID string `json:"icon_id,omitempty"`
	Author string `json:"author,omitempty"`
	Voice  string `json:"voice,omitempty"`
}

// UploadSlot is a one-time audio upload target.
type UploadSlot struct {
	UploadURL string `json:"uploadUrl"`
	UploadID  string `json:"uploadId"`
}

// Track is a single playable segment. Chapters in this system carry exactly one.
type Track struct {
	Key          string  `json:"key"`
	Title        string  `json:"title"`
	TrackURL     string  `json:"trackUrl"`
	Duration     float64 `json:"duration"`
	FileSize     int64   `json:"fileSize"`
	Channels     string  `json:"channels"`
	Format       string  `json:"format"`
	Type         string  `json:"type"`
	OverlayLabel string  `json:"overlayLabel"`
	Display      Display `json:"display"`
}

// Display carries the icon shown on the player.
type Display struct {
	Icon16x16 string `json:"icon16x16,omitempty"`
}

// Chapter is one story's entry within a card.
type Chapter struct {
	Key          string  `json:"key"`
	Title        string  `json:"title"`
	OverlayLabel string  `json:"overlayLabel"`
	Tracks       []Track `json:"tracks"`
	Display      Display `json:"display"`
}

// CardContent holds the ordered chapters of a card.
type CardContent struct {
	Chapters []Chapter `json:"chapters"`
}

// AggregateMedia is the sum of every chapter's track duration and size.
type AggregateMedia struct {
	Duration float64 `json:"duration"`
	FileSize int64   `json:"fileSize"`
}

// CardMetadata wraps aggregate media metadata.
type CardMetadata struct {
	Media AggregateMedia `json:"media"`
}

// Card is the shared remote playlist document.
type Card struct {
	CardID    string       `json:"cardId,omitempty"`
	Title     string       `json:"title"`
	Content   CardContent  `json:"content"`
	Metadata  CardMetadata `json:"metadata"`
	CreatedAt time.Time    `json:"createdAt,omitzero"`
}

// CardSummary is the list-view representation of a card.
type CardSummary struct {
	CardID    string    `json:"cardId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// ModerationScore is the outcome of content moderation.
type ModerationScore struct {
	IsAppropriate bool    `json:"isAppropriate"`
	Score         float64 `json:"score"`
	Reasoning     string  `json:"reasoning"`
}
