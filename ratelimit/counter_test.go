package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// counterTable applies the counter's ADD/if_not_exists update to an in-memory item set.
type counterTable struct {
	counts map[string]int
	ttls   map[string]string
}

func newCounterTable() *counterTable {
	return &counterTable{counts: map[string]int{}, ttls: map[string]string{}}
}

func (c *counterTable) update(_ context.Context, input *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
	pk := input.Key["PK"].(*types.AttributeValueMemberS).Value
	c.counts[pk]++
	if _, ok := c.ttls[pk]; !ok {
		c.ttls[pk] = input.ExpressionAttributeValues[":ttl"].(*types.AttributeValueMemberN).Value
	}
	return &dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{
			"PK":    &types.AttributeValueMemberS{Value: pk},
			"Count": &types.AttributeValueMemberN{Value: strconv.Itoa(c.counts[pk])},
			"TTL":   &types.AttributeValueMemberN{Value: c.ttls[pk]},
		},
	}, nil
}

func TestDynamoDBAttemptCounter_NoWindowRollover(t *testing.T) {
	table := newCounterTable()
	counter, err := NewDynamoDBAttemptCounter(&mockDynamoDBClient{updateItemFn: table.update}, "smsotp-ratelimit", 3, 5*time.Minute)
	if err != nil {
		t.Fatalf("NewDynamoDBAttemptCounter() error = %v", err)
	}

	// Challenge issued at 10:04:00 with a 5 minute TTL; submissions straddle 10:05:00.
	issued := time.Date(2026, 1, 15, 10, 4, 0, 0, time.UTC)
	key := AttemptKey("+15551234567", issued.Add(5*time.Minute).UnixMilli())

	allowed := 0
	for i := 0; i < 8; i++ {
		now := issued.Add(time.Duration(30+i*10) * time.Second)
		counter.now = func() time.Time { return now }

		ok, retryAfter, err := counter.Allow(context.Background(), key)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if ok {
			allowed++
		} else if retryAfter != 0 {
			t.Errorf("retryAfter = %v, want 0 for an exhausted challenge", retryAfter)
		}
	}

	if allowed != 3 {
		t.Errorf("allowed %d submissions against one challenge, want 3", allowed)
	}

	wantTTL := strconv.FormatInt(issued.Add(30*time.Second).Add(5*time.Minute).Add(time.Hour).Unix(), 10)
	if got := table.ttls["AC#"+key]; got != wantTTL {
		t.Errorf("TTL = %s, want %s (first submission + retention + 1h)", got, wantTTL)
	}
}

func TestDynamoDBAttemptCounter_KeysAreIndependent(t *testing.T) {
	table := newCounterTable()
	counter, err := NewDynamoDBAttemptCounter(&mockDynamoDBClient{updateItemFn: table.update}, "smsotp-ratelimit", 1, time.Minute)
	if err != nil {
		t.Fatalf("NewDynamoDBAttemptCounter() error = %v", err)
	}

	first := AttemptKey("+15551234567", 1000)
	second := AttemptKey("+15551234567", 2000)

	for _, tc := range []struct {
		key  string
		want bool
	}{
		{first, true},
		{first, false},
		{second, true},
	} {
		ok, _, err := counter.Allow(context.Background(), tc.key)
		if err != nil {
			t.Fatalf("Allow(%s) error = %v", tc.key, err)
		}
		if ok != tc.want {
			t.Errorf("Allow(%s) = %v, want %v", tc.key, ok, tc.want)
		}
	}
}

func TestDynamoDBAttemptCounter_UpdateInput(t *testing.T) {
	mock := &mockDynamoDBClient{
		updateItemFn: func(ctx context.Context, input *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			return countOutput(1), nil
		},
	}
	counter, err := NewDynamoDBAttemptCounter(mock, "smsotp-ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("NewDynamoDBAttemptCounter() error = %v", err)
	}

	if _, _, err := counter.Allow(context.Background(), "verify#x"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	input := mock.calls[0]
	if aws.ToString(input.TableName) != "smsotp-ratelimit" {
		t.Errorf("TableName = %q", aws.ToString(input.TableName))
	}
	if input.ConditionExpression != nil {
		t.Errorf("ConditionExpression = %q, want none", aws.ToString(input.ConditionExpression))
	}
	if got := input.Key["PK"].(*types.AttributeValueMemberS).Value; got != "AC#verify#x" {
		t.Errorf("PK = %q", got)
	}
}

func TestDynamoDBAttemptCounter_FailsOpen(t *testing.T) {
	mock := &mockDynamoDBClient{
		updateItemFn: func(ctx context.Context, input *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
			return nil, errors.New("service unavailable")
		},
	}
	counter, err := NewDynamoDBAttemptCounter(mock, "smsotp-ratelimit", 1, time.Minute)
	if err != nil {
		t.Fatalf("NewDynamoDBAttemptCounter() error = %v", err)
	}

	ok, _, err := counter.Allow(context.Background(), "verify#x")
	if err == nil || !ok {
		t.Errorf("Allow() = %v, %v; want allowed with error", ok, err)
	}
}

func TestNewDynamoDBAttemptCounter_Validation(t *testing.T) {
	client := &mockDynamoDBClient{}
	tests := []struct {
		name      string
		client    DynamoDBAPI
		table     string
		limit     int
		retention time.Duration
	}{
		{"zero limit", client, "t", 0, time.Minute},
		{"zero retention", client, "t", 1, 0},
		{"nil client", nil, "t", 1, time.Minute},
		{"empty table", client, "", 1, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDynamoDBAttemptCounter(tt.client, tt.table, tt.limit, tt.retention); err == nil {
				t.Error("expected error")
			}
		})
	}
}
