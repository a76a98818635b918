package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// counterGrace keeps counter items past their retention so a late
// submission still sees the exhausted budget.
const counterGrace = time.Hour

// DynamoDBAttemptCounter implements RateLimiter as a lifetime counter per key.
// Unlike DynamoDBRateLimiter there is no window rollover: the count for a key
// only grows until DynamoDB expires the item. Keys must identify a single
// challenge (see AttemptKey).
//
// Item layout in the rate limit table:
//   - PK: "AC#" + key
//   - Count: submissions seen for the key
//   - TTL: first submission + retention + 1h
type DynamoDBAttemptCounter struct {
	client    DynamoDBAPI
	tableName string
	limit     int
	retention time.Duration
	now       func() time.Time
}

// NewDynamoDBAttemptCounter creates a counter allowing limit requests per key.
// retention must cover the lifetime of a key; for challenges that is the TTL.
func NewDynamoDBAttemptCounter(client DynamoDBAPI, tableName string, limit int, retention time.Duration) (*DynamoDBAttemptCounter, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %v", retention)
	}
	if client == nil {
		return nil, errors.New("DynamoDB client cannot be nil")
	}
	if tableName == "" {
		return nil, errors.New("tableName cannot be empty")
	}

	return &DynamoDBAttemptCounter{
		client:    client,
		tableName: tableName,
		limit:     limit,
		retention: retention,
		now:       time.Now,
	}, nil
}

// Allow atomically increments the count for key and reports whether it is
// still within the limit. A blocked key has no retry time: it stays blocked.
// DynamoDB errors fail open.
func (c *DynamoDBAttemptCounter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	ttl := c.now().Add(c.retention).Add(counterGrace).Unix()

	output, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			attrPK: &types.AttributeValueMemberS{Value: "AC#" + key},
		},
		UpdateExpression: aws.String("ADD #count :one SET #ttl = if_not_exists(#ttl, :ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#count": attrCount,
			"#ttl":   attrTTL,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		log.Printf("ratelimit: DynamoDB error on attempt counter (failing open): %v", err)
		return true, 0, err
	}

	if parseCount(output.Attributes[attrCount]) > c.limit {
		return false, 0, nil
	}
	return true, 0, nil
}

var _ RateLimiter = (*DynamoDBAttemptCounter)(nil)
