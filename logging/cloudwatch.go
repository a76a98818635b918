package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// defaultPutTimeout bounds a single PutLogEvents call.
const defaultPutTimeout = 5 * time.Second

// CloudWatchConfig holds configuration for CloudWatch log forwarding.
type CloudWatchConfig struct {
	LogGroupName  string // CloudWatch log group name
	LogStreamName string // CloudWatch log stream name (typically function name)
}

// CloudWatchAPI defines the CloudWatch Logs operations used.
// This interface enables testing with mock implementations.
type CloudWatchAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchLogger implements Logger by forwarding entries to CloudWatch Logs.
// Delivery is fail-open: errors go to stderr and never block the flow.
type CloudWatchLogger struct {
	client        CloudWatchAPI
	config        *CloudWatchConfig
	sequenceToken *string
	errOut        io.Writer
	now           func() time.Time
	mu            sync.Mutex
}

// NewCloudWatchLogger creates a CloudWatch logger from AWS config.
func NewCloudWatchLogger(awsCfg aws.Config, config *CloudWatchConfig) *CloudWatchLogger {
	return NewCloudWatchLoggerWithClient(cloudwatchlogs.NewFromConfig(awsCfg), config)
}

// NewCloudWatchLoggerWithClient creates a CloudWatch logger with a custom client (for testing).
func NewCloudWatchLoggerWithClient(client CloudWatchAPI, config *CloudWatchConfig) *CloudWatchLogger {
	return &CloudWatchLogger{
		client: client,
		config: config,
		errOut: os.Stderr,
		now:    time.Now,
	}
}

// LogChallenge forwards a challenge entry to CloudWatch.
func (l *CloudWatchLogger) LogChallenge(entry ChallengeLogEntry) {
	l.writeEntry(entry)
}

// LogVerification forwards a verification entry to CloudWatch.
func (l *CloudWatchLogger) LogVerification(entry VerificationLogEntry) {
	l.writeEntry(entry)
}

func (l *CloudWatchLogger) writeEntry(entry any) {
	message, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.errOut, "cloudwatch marshal error: %v\n", err)
		return
	}
	l.putLogEvent(string(message))
}

// putLogEvent sends a single log event and tracks the sequence token.
func (l *CloudWatchLogger) putLogEvent(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	input := &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(l.config.LogGroupName),
		LogStreamName: aws.String(l.config.LogStreamName),
		LogEvents: []types.InputLogEvent{
			{
				Message:   aws.String(message),
				Timestamp: aws.Int64(l.now().UnixMilli()),
			},
		},
		SequenceToken: l.sequenceToken,
	}

	// Detached from the request context so a finished Lambda request does not cancel delivery.
	ctx, cancel := context.WithTimeout(context.Background(), defaultPutTimeout)
	defer cancel()

	output, err := l.client.PutLogEvents(ctx, input)
	if err != nil {
		fmt.Fprintf(l.errOut, "cloudwatch PutLogEvents error: %v\n", err)
		return
	}

	if output != nil && output.NextSequenceToken != nil {
		l.sequenceToken = output.NextSequenceToken
	}
}
