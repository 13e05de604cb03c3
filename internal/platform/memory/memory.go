// Package memory is an in-process stand-in for the media and content platform.
// It backs DEV_MODE and tests.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/danwrong/yotohero/internal/model"
	"github.com/danwrong/yotohero/internal/platform"
)

const (
	// UploadScheme prefixes upload URLs handed out by the fake.
	UploadScheme = "memory://uploads/"

	maxDemoAudioSize = 20 * 1024 * 1024
	maxDemoCardCount = 50
	demoBitrate      = 128000
	itemTTL          = 24 * time.Hour
)

// DynamoAPI is the subset of *dynamodb.Client used for dev-mode persistence.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// CardItem is the DynamoDB row for a stored card.
// Items are encoded with json tags so the nested card keeps its API field names.
type CardItem struct {
	PK        string     `json:"pk"`
	Kind      string     `json:"kind"`
	Card      model.Card `json:"card"`
	UpdatedAt time.Time  `json:"updated_at"`
	TTL       int64      `json:"ttl"`
}

type upload struct {
	id         string
	audio      []byte
	received   bool
	polls      int
	contentSum string
}

// Platform implements platform.API.
// If client is nil, cards live in a map. If client is set, they are persisted to DynamoDB.
type Platform struct {
	client DynamoAPI
	table  string

	mu      sync.RWMutex
	cards   map[string]model.Card
	uploads map[string]*upload

	// TranscodeDelay is how many status polls report "pending" after the audio arrives.
	TranscodeDelay int
	now            func() time.Time
}

// New returns a fake platform. table is ignored when client is nil.
func New(client DynamoAPI, table string) *Platform {
	if table == "" {
		table = "FakePlatformCards"
	}
	return &Platform{
		client:         client,
		table:          table,
		cards:          make(map[string]model.Card),
		uploads:        make(map[string]*upload),
		TranscodeDelay: 2,
		now:            time.Now,
	}
}

var _ platform.API = (*Platform)(nil)

func unauthorized(method, path string) error {
	return &platform.StatusError{Method: method, Path: path, Status: http.StatusUnauthorized, Body: "missing bearer token"}
}

func (p *Platform) RequestUploadSlot(_ context.Context, accessToken string) (model.UploadSlot, error) {
	if accessToken == "" {
		return model.UploadSlot{}, unauthorized(http.MethodGet, "/media/transcode/audio/uploadUrl")
	}
	id := uuid.NewString()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploads[id] = &upload{id: id}
	return model.UploadSlot{UploadURL: UploadScheme + id, UploadID: id}, nil
}

func (p *Platform) PutAudio(_ context.Context, uploadURL string, audio []byte) error {
	id, ok := strings.CutPrefix(uploadURL, UploadScheme)
	if !ok {
		return &platform.StatusError{Method: http.MethodPut, Path: uploadURL, Status: http.StatusBadRequest, Body: "unknown upload url"}
	}
	if len(audio) == 0 || len(audio) > maxDemoAudioSize {
		return &platform.StatusError{Method: http.MethodPut, Path: uploadURL, Status: http.StatusRequestEntityTooLarge, Body: fmt.Sprintf("audio must be 1..%d bytes", maxDemoAudioSize)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	up, ok := p.uploads[id]
	if !ok {
		return &platform.StatusError{Method: http.MethodPut, Path: uploadURL, Status: http.StatusNotFound, Body: "upload slot expired"}
	}
	sum := sha256.Sum256(audio)
	up.audio = append([]byte(nil), audio...)
	up.contentSum = hex.EncodeToString(sum[:])
	up.received = true
	return nil
}

func (p *Platform) TranscodeStatus(_ context.Context, uploadID, accessToken string) (platform.TranscodeStatus, error) {
	path := "/media/upload/" + uploadID + "/transcoded"
	if accessToken == "" {
		return platform.TranscodeStatus{}, unauthorized(http.MethodGet, path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	up, ok := p.uploads[uploadID]
	if !ok {
		return platform.TranscodeStatus{}, &platform.StatusError{Method: http.MethodGet, Path: path, Status: http.StatusNotFound}
	}
	if !up.received {
		return platform.TranscodeStatus{}, nil
	}
	up.polls++
	if up.polls <= p.TranscodeDelay {
		return platform.TranscodeStatus{}, nil
	}
	return platform.TranscodeStatus{
		Ready: true,
		Result: model.TranscodeResult{
			ContentHash:   up.contentSum,
			Duration:      float64(len(up.audio)*8) / demoBitrate,
			FileSizeBytes: int64(len(up.audio)),
			ChannelLayout: "mono",
			Format:        "aac",
		},
	}, nil
}

func (p *Platform) ListContent(ctx context.Context, accessToken string) ([]model.CardSummary, error) {
	if accessToken == "" {
		return nil, unauthorized(http.MethodGet, "/content/mine")
	}
	cards, err := p.allCards(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.CardSummary, 0, len(cards))
	for _, c := range cards {
		out = append(out, model.CardSummary{CardID: c.CardID, Title: c.Title, CreatedAt: c.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return out, nil
}

func (p *Platform) GetContent(ctx context.Context, cardID, accessToken string) (*model.Card, error) {
	if accessToken == "" {
		return nil, unauthorized(http.MethodGet, "/content/"+cardID)
	}
	card, ok, err := p.getCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &platform.StatusError{Method: http.MethodGet, Path: "/content/" + cardID, Status: http.StatusNotFound}
	}
	return &card, nil
}

// WriteContent replaces the whole card document, as the real content API does.
func (p *Platform) WriteContent(ctx context.Context, card model.Card, accessToken string) (*model.Card, error) {
	if accessToken == "" {
		return nil, unauthorized(http.MethodPost, "/content")
	}
	if strings.TrimSpace(card.Title) == "" {
		return nil, &platform.StatusError{Method: http.MethodPost, Path: "/content", Status: http.StatusBadRequest, Body: "title is required"}
	}

	now := p.now().UTC()
	if card.CardID == "" {
		cards, err := p.allCards(ctx)
		if err != nil {
			return nil, err
		}
		if len(cards) >= maxDemoCardCount {
			return nil, &platform.StatusError{Method: http.MethodPost, Path: "/content", Status: http.StatusForbidden, Body: fmt.Sprintf("demo limit of %d cards reached", maxDemoCardCount)}
		}
		card.CardID = uuid.NewString()[:8]
		card.CreatedAt = now
	} else {
		existing, ok, err := p.getCard(ctx, card.CardID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &platform.StatusError{Method: http.MethodPost, Path: "/content", Status: http.StatusNotFound, Body: "card not found"}
		}
		card.CreatedAt = existing.CreatedAt
	}
	if card.Content.Chapters == nil {
		card.Content.Chapters = []model.Chapter{}
	}

	if err := p.putCard(ctx, card, now); err != nil {
		return nil, err
	}
	return &card, nil
}

// Seed stores a card as-is, keeping its id and createdAt. Used by tests and demos.
func (p *Platform) Seed(ctx context.Context, card model.Card) error {
	if card.CardID == "" {
		card.CardID = uuid.NewString()[:8]
	}
	return p.putCard(ctx, card, p.now().UTC())
}

func (p *Platform) allCards(ctx context.Context) ([]model.Card, error) {
	if p.client == nil {
		p.mu.RLock()
		defer p.mu.RUnlock()
		out := make([]model.Card, 0, len(p.cards))
		for _, c := range p.cards {
			out = append(out, cloneCard(c))
		}
		return out, nil
	}

	// Scan is acceptable at demo scale.
	out, err := p.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(p.table),
		FilterExpression: aws.String("kind = :kind"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":kind": &types.AttributeValueMemberS{Value: "card"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan cards: %w", err)
	}
	var items []CardItem
	if err := attributevalue.UnmarshalListOfMapsWithOptions(out.Items, &items, useJSONTags); err != nil {
		return nil, fmt.Errorf("unmarshal cards: %w", err)
	}
	cards := make([]model.Card, 0, len(items))
	for _, item := range items {
		cards = append(cards, item.Card)
	}
	return cards, nil
}

func (p *Platform) getCard(ctx context.Context, cardID string) (model.Card, bool, error) {
	if p.client == nil {
		p.mu.RLock()
		defer p.mu.RUnlock()
		c, ok := p.cards[cardID]
		return cloneCard(c), ok, nil
	}

	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(p.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: cardKey(cardID)},
		},
	})
	if err != nil {
		return model.Card{}, false, fmt.Errorf("get card %s: %w", cardID, err)
	}
	if out.Item == nil {
		return model.Card{}, false, nil
	}
	var item CardItem
	if err := attributevalue.UnmarshalMapWithOptions(out.Item, &item, useJSONTags); err != nil {
		return model.Card{}, false, fmt.Errorf("unmarshal card %s: %w", cardID, err)
	}
	return item.Card, true, nil
}

func (p *Platform) putCard(ctx context.Context, card model.Card, now time.Time) error {
	if p.client == nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.cards[card.CardID] = cloneCard(card)
		return nil
	}

	item, err := attributevalue.MarshalMapWithOptions(CardItem{
		PK:        cardKey(card.CardID),
		Kind:      "card",
		Card:      card,
		UpdatedAt: now,
		TTL:       now.Add(itemTTL).Unix(),
	}, encodeJSONTags)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
	}
	if _, err := p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put card %s: %w", card.CardID, err)
	}
	return nil
}

// cloneCard copies the chapter and track slices so callers never share backing arrays with the store.
func cloneCard(c model.Card) model.Card {
	if c.Content.Chapters == nil {
		return c
	}
	chapters := make([]model.Chapter, len(c.Content.Chapters))
	for i, ch := range c.Content.Chapters {
		ch.Tracks = append([]model.Track(nil), ch.Tracks...)
		chapters[i] = ch
	}
	c.Content.Chapters = chapters
	return c
}

func cardKey(id string) string { return "card#" + id }

func useJSONTags(o *attributevalue.DecoderOptions) { o.TagKey = "json" }

func encodeJSONTags(o *attributevalue.EncoderOptions) { o.TagKey = "json" }
