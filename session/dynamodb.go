package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	smsotperrors "github.com/byteness/smsotp/errors"
)

// dynamoDBAPI defines the DynamoDB operations used by DynamoDBNotes.
// This interface enables testing with mock implementations.
type dynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoDBNotes implements NoteStore using AWS DynamoDB.
//
// Table schema assumptions (created externally via Terraform/CloudFormation):
//   - Partition key: attempt_id (String)
//   - TTL attribute: ttl (Number, Unix timestamp)
//   - notes stored as a String map attribute
type DynamoDBNotes struct {
	client    dynamoDBAPI
	tableName string
	now       func() time.Time
}

// NewDynamoDBNotes creates a new DynamoDBNotes using the provided AWS configuration.
func NewDynamoDBNotes(cfg aws.Config, tableName string) *DynamoDBNotes {
	return newDynamoDBNotesWithClient(dynamodb.NewFromConfig(cfg), tableName)
}

// newDynamoDBNotesWithClient creates a DynamoDBNotes with a custom client.
// This is primarily used for testing with mock clients.
func newDynamoDBNotesWithClient(client dynamoDBAPI, tableName string) *DynamoDBNotes {
	return &DynamoDBNotes{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// notesItem is the DynamoDB item structure for one attempt.
type notesItem struct {
	AttemptID string            `dynamodbav:"attempt_id"`
	Notes     map[string]string `dynamodbav:"notes"`
	UpdatedAt string            `dynamodbav:"updated_at"` // RFC3339Nano
	TTL       int64             `dynamodbav:"ttl"`        // Unix timestamp for DynamoDB TTL
}

func (s *DynamoDBNotes) key(attemptID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"attempt_id": &types.AttributeValueMemberS{Value: attemptID},
	}
}

// Load reads the attempt item with a consistent read. Items whose ttl has
// passed but that DynamoDB has not yet swept are treated as absent.
func (s *DynamoDBNotes) Load(ctx context.Context, attemptID string) (map[string]string, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(attemptID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, smsotperrors.WrapDynamoDBError(err, s.tableName, "GetItem")
	}

	if output.Item == nil {
		return map[string]string{}, nil
	}

	var item notesItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, fmt.Errorf("%w: unmarshal item: %v", ErrCorruptNotes, err)
	}

	if item.TTL > 0 && s.now().Unix() >= item.TTL {
		return map[string]string{}, nil
	}

	return copyNotes(item.Notes), nil
}

// Save overwrites the attempt item.
func (s *DynamoDBNotes) Save(ctx context.Context, attemptID string, notes map[string]string, retainUntil time.Time) error {
	av, err := attributevalue.MarshalMap(&notesItem{
		AttemptID: attemptID,
		Notes:     copyNotes(notes),
		UpdatedAt: s.now().UTC().Format(time.RFC3339Nano),
		TTL:       retainUntil.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal notes: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return smsotperrors.WrapDynamoDBError(err, s.tableName, "PutItem")
	}

	return nil
}

// Delete removes the attempt item. DeleteItem on a missing key succeeds.
func (s *DynamoDBNotes) Delete(ctx context.Context, attemptID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(attemptID),
	})
	if err != nil {
		return smsotperrors.WrapDynamoDBError(err, s.tableName, "DeleteItem")
	}
	return nil
}
