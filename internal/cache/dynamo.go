package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/danwrong/yotohero/internal/model"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoCache.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoCache keeps entries in a table keyed by story_text_hash.
// Entries never expire on read. A positive ttl only sets the item's ttl
// attribute, for tables that have DynamoDB TTL enabled.
type DynamoCache struct {
	client DynamoAPI
	table  string
	ttl    time.Duration
}

func NewDynamoCache(client DynamoAPI, table string, ttl time.Duration) *DynamoCache {
	return &DynamoCache{client: client, table: table, ttl: ttl}
}

func (c *DynamoCache) Load(ctx context.Context, key string) (model.CachedTranscodeEntry, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"story_text_hash": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return model.CachedTranscodeEntry{}, fmt.Errorf("get cache item: %w", err)
	}
	if out.Item == nil {
		return model.CachedTranscodeEntry{}, ErrMiss
	}

	var entry model.CachedTranscodeEntry
	if err := attributevalue.UnmarshalMap(out.Item, &entry); err != nil || entry.TranscodeResult.ContentHash == "" {
		return model.CachedTranscodeEntry{}, ErrMiss
	}
	return entry, nil
}

func (c *DynamoCache) Save(ctx context.Context, entry model.CachedTranscodeEntry) error {
	if c.ttl > 0 {
		entry.TTL = entry.CreatedAt.Add(c.ttl).Unix()
	}
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("marshal cache item: %w", err)
	}
	if _, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put cache item: %w", err)
	}
	return nil
}
