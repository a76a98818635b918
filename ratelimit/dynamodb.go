package ratelimit

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI defines the DynamoDB operations needed for rate limiting.
// This interface enables testing with mock implementations.
type DynamoDBAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoDB attribute names.
const (
	attrPK          = "PK"
	attrCount       = "Count"
	attrWindowStart = "WindowStart"
	attrTTL         = "TTL"
)

// DynamoDBRateLimiter implements RateLimiter using a fixed window counter in DynamoDB.
// Uses atomic UpdateItem to increment counters safely across Lambda instances.
//
// Table schema:
//   - PK: "RL#" + key (e.g., "RL#issue#+15551234567")
//   - WindowStart: RFC3339 timestamp of current window start
//   - Count: Number of requests in current window
//   - TTL: Unix timestamp for DynamoDB TTL (window end + 1h)
type DynamoDBRateLimiter struct {
	client    DynamoDBAPI
	tableName string
	config    Config
	now       func() time.Time
}

// NewDynamoDBRateLimiter creates a new DynamoDB-backed rate limiter.
// The tableName must reference a table with a String partition key named "PK".
func NewDynamoDBRateLimiter(client DynamoDBAPI, tableName string, cfg Config) (*DynamoDBRateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("DynamoDB client cannot be nil")
	}
	if tableName == "" {
		return nil, errors.New("tableName cannot be empty")
	}

	return &DynamoDBRateLimiter{
		client:    client,
		tableName: tableName,
		config:    cfg,
		now:       time.Now,
	}, nil
}

// Allow checks if a request should be allowed for the given key.
// DynamoDB errors fail open: the request is allowed and the error returned.
func (r *DynamoDBRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := r.now()
	windowStart := now.Truncate(r.config.Window)

	// Increment within the current window; the condition fails once the window rolls over.
	output, err := r.client.UpdateItem(ctx, r.updateInput(key, windowStart, false))
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			log.Printf("ratelimit: DynamoDB error (failing open): %v", err)
			return true, 0, err
		}
		output, err = r.client.UpdateItem(ctx, r.updateInput(key, windowStart, true))
		if err != nil {
			log.Printf("ratelimit: DynamoDB error on reset (failing open): %v", err)
			return true, 0, err
		}
	}

	if parseCount(output.Attributes[attrCount]) > r.config.RequestsPerWindow {
		return false, windowStart.Add(r.config.Window).Sub(now), nil
	}
	return true, 0, nil
}

// updateInput builds the increment (reset=false) or window reset (reset=true) request.
func (r *DynamoDBRateLimiter) updateInput(key string, windowStart time.Time, reset bool) *dynamodb.UpdateItemInput {
	ttl := windowStart.Add(r.config.Window).Add(time.Hour).Unix()

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			attrPK: &types.AttributeValueMemberS{Value: "RL#" + key},
		},
		ExpressionAttributeNames: map[string]string{
			"#count": attrCount,
			"#ws":    attrWindowStart,
			"#ttl":   attrTTL,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ws":  &types.AttributeValueMemberS{Value: windowStart.UTC().Format(time.RFC3339)},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	}

	if reset {
		input.UpdateExpression = aws.String("SET #count = :one, #ws = :ws, #ttl = :ttl")
		return input
	}

	input.UpdateExpression = aws.String("SET #count = if_not_exists(#count, :zero) + :one, #ws = if_not_exists(#ws, :ws), #ttl = :ttl")
	input.ConditionExpression = aws.String("attribute_not_exists(#ws) OR #ws = :ws")
	input.ExpressionAttributeValues[":zero"] = &types.AttributeValueMemberN{Value: "0"}
	return input
}

// parseCount extracts the count value from a DynamoDB attribute.
// Returns 0 if the attribute is nil or cannot be parsed.
func parseCount(attr types.AttributeValue) int {
	n, ok := attr.(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	count, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0
	}
	return count
}

var _ RateLimiter = (*DynamoDBRateLimiter)(nil)
