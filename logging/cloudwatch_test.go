package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

// MockCloudWatchAPI records PutLogEvents calls.
type MockCloudWatchAPI struct {
	mu        sync.Mutex
	calls     []*cloudwatchlogs.PutLogEventsInput
	putErr    error
	nextToken *string
}

func (m *MockCloudWatchAPI) PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &cloudwatchlogs.PutLogEventsOutput{NextSequenceToken: m.nextToken}, nil
}

func newTestCloudWatchLogger(mock *MockCloudWatchAPI) (*CloudWatchLogger, *bytes.Buffer) {
	logger := NewCloudWatchLoggerWithClient(mock, &CloudWatchConfig{
		LogGroupName:  "/smsotp/audit",
		LogStreamName: "smsotp-lambda",
	})
	var errOut bytes.Buffer
	logger.errOut = &errOut
	logger.now = func() time.Time { return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC) }
	return logger, &errOut
}

func TestCloudWatchLogger_LogChallenge(t *testing.T) {
	mock := &MockCloudWatchAPI{}
	logger, _ := newTestCloudWatchLogger(mock)

	entry := NewChallengeLogEntry(time.Now(), "***-***-4567", "challenged")
	logger.LogChallenge(entry)

	if len(mock.calls) != 1 {
		t.Fatalf("expected 1 PutLogEvents call, got %d", len(mock.calls))
	}
	input := mock.calls[0]
	if aws.ToString(input.LogGroupName) != "/smsotp/audit" || aws.ToString(input.LogStreamName) != "smsotp-lambda" {
		t.Errorf("group/stream = %s/%s", aws.ToString(input.LogGroupName), aws.ToString(input.LogStreamName))
	}
	if len(input.LogEvents) != 1 {
		t.Fatalf("expected 1 log event, got %d", len(input.LogEvents))
	}
	event := input.LogEvents[0]
	if aws.ToInt64(event.Timestamp) != time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("Timestamp = %d", aws.ToInt64(event.Timestamp))
	}

	var got ChallengeLogEntry
	if err := json.Unmarshal([]byte(aws.ToString(event.Message)), &got); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if got != entry {
		t.Errorf("message = %+v, want %+v", got, entry)
	}
}

func TestCloudWatchLogger_SequenceToken(t *testing.T) {
	mock := &MockCloudWatchAPI{nextToken: aws.String("token-1")}
	logger, _ := newTestCloudWatchLogger(mock)

	logger.LogVerification(NewVerificationLogEntry(time.Now(), "***", "accepted"))
	logger.LogVerification(NewVerificationLogEntry(time.Now(), "***", "rejected"))

	if mock.calls[0].SequenceToken != nil {
		t.Error("first call should carry no sequence token")
	}
	if aws.ToString(mock.calls[1].SequenceToken) != "token-1" {
		t.Errorf("second call token = %q, want token-1", aws.ToString(mock.calls[1].SequenceToken))
	}
}

func TestCloudWatchLogger_FailOpen(t *testing.T) {
	mock := &MockCloudWatchAPI{putErr: errors.New("AccessDeniedException")}
	logger, errOut := newTestCloudWatchLogger(mock)

	logger.LogChallenge(NewChallengeLogEntry(time.Now(), "***", "challenged"))

	if !strings.Contains(errOut.String(), "AccessDeniedException") {
		t.Errorf("stderr = %q, want the delivery error", errOut.String())
	}
}

func TestCloudWatchLogger_ImplementsLogger(t *testing.T) {
	var _ Logger = (*CloudWatchLogger)(nil)
}
