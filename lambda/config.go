// Package lambda provides the API Gateway v2 handler that issues and verifies
// SMS one-time-password challenges.
package lambda

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/byteness/smsotp/config"
	"github.com/byteness/smsotp/gateway"
	"github.com/byteness/smsotp/logging"
	"github.com/byteness/smsotp/mfa"
	"github.com/byteness/smsotp/ratelimit"
	"github.com/byteness/smsotp/session"
)

// Environment variable names for handler configuration.
const (
	EnvConfigParameter = "SMSOTP_CONFIG_PARAMETER" // SSM parameter holding the YAML config
	EnvConfigFile      = "SMSOTP_CONFIG_FILE"      // Local YAML config (container images)
	EnvSessionTable    = "SMSOTP_SESSION_TABLE"    // DynamoDB table for attempt notes
	EnvRedisURL        = "SMSOTP_REDIS_URL"        // Redis URL for attempt notes
	EnvRequireIAM      = "SMSOTP_REQUIRE_IAM"      // "false" to accept requests without IAM auth
	EnvRegion          = "AWS_REGION"

	// EnvRateLimitTable is the DynamoDB table for distributed rate limiting.
	// If set, issuance and attempt limits are shared across Lambda instances.
	// Table must have PK (string) partition key, TTL attribute named "TTL".
	EnvRateLimitTable = "SMSOTP_RATE_LIMIT_TABLE"

	EnvCloudWatchGroup  = "SMSOTP_CLOUDWATCH_LOG_GROUP" // CloudWatch log group (optional)
	EnvCloudWatchStream = "SMSOTP_CLOUDWATCH_STREAM"    // CloudWatch log stream (default: function name)
	EnvFunctionName     = "AWS_LAMBDA_FUNCTION_NAME"
)

// ErrNoConfigSource is returned when neither config source variable is set.
var ErrNoConfigSource = errors.New("no authenticator configuration source")

// HandlerConfig contains everything the handler needs per request.
type HandlerConfig struct {
	// Flow runs the challenge state machine.
	Flow *mfa.Flow

	// Notes stores per-attempt challenge state.
	Notes session.NoteStore

	// RequireIAM rejects requests without API Gateway IAM authorization.
	RequireIAM bool

	// NewAttemptID generates attempt IDs for challenges that do not carry one.
	// Defaults to session.NewAttemptID.
	NewAttemptID func() (string, error)

	// SessionTableName is the DynamoDB notes table, if any.
	SessionTableName string

	// RateLimitTableName is the DynamoDB rate limit table, if any.
	RateLimitTableName string

	// CloudWatchLogGroup is the log group for CloudWatch forwarding.
	// If empty, entries go to stdout only.
	CloudWatchLogGroup string

	// CloudWatchStream is the log stream name within the group.
	CloudWatchStream string
}

// LoadConfigFromEnv creates a HandlerConfig from environment variables.
// This is the primary way to configure the Lambda in production.
func LoadConfigFromEnv(ctx context.Context) (*HandlerConfig, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(os.Getenv(EnvRegion)))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newHandlerConfig(ctx, awsCfg, os.Getenv, config.NewSSMLoader(awsCfg), NewCachedSecretsLoader(awsCfg))
}

// newHandlerConfig assembles the handler dependencies. getenv, the SSM loader
// and the secret resolver are injected for testing.
func newHandlerConfig(ctx context.Context, awsCfg aws.Config, getenv func(string) string, ssmLoader *config.SSMLoader, secrets gateway.SecretResolver) (*HandlerConfig, error) {
	cfg := &HandlerConfig{
		RequireIAM:         !strings.EqualFold(getenv(EnvRequireIAM), "false"),
		NewAttemptID:       session.NewAttemptID,
		SessionTableName:   getenv(EnvSessionTable),
		RateLimitTableName: getenv(EnvRateLimitTable),
		CloudWatchLogGroup: getenv(EnvCloudWatchGroup),
		CloudWatchStream:   getenv(EnvCloudWatchStream),
	}
	if cfg.CloudWatchStream == "" {
		cfg.CloudWatchStream = getenv(EnvFunctionName)
	}
	if !cfg.RequireIAM {
		log.Printf("WARNING: IAM authorization disabled (%s=false)", EnvRequireIAM)
	}

	authCfg, err := loadAuthenticatorConfig(ctx, getenv, ssmLoader)
	if err != nil {
		return nil, err
	}
	flowCfg, err := authCfg.ToAuthenticatorConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid authenticator config: %w", err)
	}

	cfg.Notes, err = configureNotes(awsCfg, cfg, getenv(EnvRedisURL))
	if err != nil {
		return nil, err
	}

	sender, err := gateway.New(ctx, flowCfg.GatewayKind, flowCfg.GatewayParams, gateway.Options{
		AWSConfig: &awsCfg,
		Secrets:   secrets,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create SMS gateway: %w", err)
	}

	opts := []mfa.FlowOption{mfa.WithLogger(configureLogger(awsCfg, cfg))}
	limiterOpts, err := configureRateLimits(awsCfg, cfg, authCfg, flowCfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, limiterOpts...)

	cfg.Flow, err = mfa.NewFlow(flowCfg, sender, mfa.NewVerifier(flowCfg, nil), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	log.Printf("INFO: SMS OTP handler configured (gateway: %s, verify: %s, simulation: %v)",
		sender.Kind(), flowCfg.EffectiveVerifyMode(), flowCfg.Simulation)
	return cfg, nil
}

// loadAuthenticatorConfig reads the YAML config from SSM or a file and
// validates it. Validation warnings are logged; errors abort the cold start.
func loadAuthenticatorConfig(ctx context.Context, getenv func(string) string, ssmLoader *config.SSMLoader) (*config.AuthenticatorConfig, error) {
	parameter := getenv(EnvConfigParameter)
	file := getenv(EnvConfigFile)

	var (
		content []byte
		source  string
		err     error
	)
	switch {
	case parameter != "" && file != "":
		return nil, fmt.Errorf("set only one of %s and %s", EnvConfigParameter, EnvConfigFile)
	case parameter != "":
		source = "ssm:" + parameter
		content, err = ssmLoader.Fetch(ctx, parameter)
	case file != "":
		source = file
		content, err = os.ReadFile(file)
	default:
		return nil, fmt.Errorf("%w: set %s or %s", ErrNoConfigSource, EnvConfigParameter, EnvConfigFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config from %s: %w", source, err)
	}

	result := config.Validate(content, source)
	var problems []string
	for _, issue := range result.Issues {
		if issue.Severity == config.SeverityWarning {
			log.Printf("WARNING: config %s: %s: %s", source, issue.Location, issue.Message)
			continue
		}
		problems = append(problems, fmt.Sprintf("%s: %s", issue.Location, issue.Message))
	}
	if !result.Valid {
		return nil, fmt.Errorf("config %s is invalid: %s", source, strings.Join(problems, "; "))
	}

	return config.Parse(content)
}

// configureNotes selects the attempt note store.
func configureNotes(awsCfg aws.Config, cfg *HandlerConfig, redisURL string) (session.NoteStore, error) {
	switch {
	case cfg.SessionTableName != "" && redisURL != "":
		return nil, fmt.Errorf("set only one of %s and %s", EnvSessionTable, EnvRedisURL)
	case cfg.SessionTableName != "":
		log.Printf("INFO: Attempt state stored in DynamoDB (table: %s)", cfg.SessionTableName)
		return session.NewDynamoDBNotes(awsCfg, cfg.SessionTableName), nil
	case redisURL != "":
		notes, err := session.NewRedisNotes(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis note store: %w", err)
		}
		log.Printf("INFO: Attempt state stored in Redis")
		return notes, nil
	default:
		log.Printf("WARNING: Using in-memory attempt state - challenges issued by one Lambda instance cannot be verified by another. Set %s or %s.",
			EnvSessionTable, EnvRedisURL)
		return session.NewMemoryNotes(), nil
	}
}

// configureLogger writes entries to stdout and, when a log group is set,
// forwards them to CloudWatch Logs.
func configureLogger(awsCfg aws.Config, cfg *HandlerConfig) logging.Logger {
	stdout := logging.NewJSONLogger(os.Stdout)
	if cfg.CloudWatchLogGroup == "" {
		return stdout
	}

	cw := logging.NewCloudWatchLogger(awsCfg, &logging.CloudWatchConfig{
		LogGroupName:  cfg.CloudWatchLogGroup,
		LogStreamName: cfg.CloudWatchStream,
	})
	log.Printf("INFO: CloudWatch forwarding enabled (group: %s, stream: %s)",
		cfg.CloudWatchLogGroup, cfg.CloudWatchStream)
	return logging.NewMultiLogger(stdout, cw)
}

// configureRateLimits builds the limiter options. With a rate limit table
// both limits are enforced in DynamoDB. Without one, the issuance limit is
// kept in memory and the flow creates its own in-memory attempt limiter.
func configureRateLimits(awsCfg aws.Config, cfg *HandlerConfig, authCfg *config.AuthenticatorConfig, flowCfg mfa.Config) ([]mfa.FlowOption, error) {
	issueCfg, err := authCfg.IssueLimiterConfig()
	if err != nil {
		return nil, err
	}

	var opts []mfa.FlowOption
	if cfg.RateLimitTableName == "" {
		if issueCfg != nil {
			limiter, err := ratelimit.NewMemoryRateLimiter(*issueCfg)
			if err != nil {
				return nil, fmt.Errorf("failed to create rate limiter: %w", err)
			}
			opts = append(opts, mfa.WithIssueLimiter(limiter))
			log.Printf("WARNING: Using in-memory rate limiting - not effective across Lambda instances. Set %s for distributed rate limiting.",
				EnvRateLimitTable)
		}
		if flowCfg.MaxAttempts > 0 {
			log.Printf("WARNING: Using in-memory attempt limiting - max_attempts is counted per Lambda instance. Set %s to enforce it per challenge.",
				EnvRateLimitTable)
		}
		return opts, nil
	}

	client := dynamodb.NewFromConfig(awsCfg)
	if issueCfg != nil {
		limiter, err := ratelimit.NewDynamoDBRateLimiter(client, cfg.RateLimitTableName, *issueCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create DynamoDB rate limiter: %w", err)
		}
		opts = append(opts, mfa.WithIssueLimiter(limiter))
		log.Printf("INFO: Distributed issue rate limiting enabled: %d requests per %v (table: %s)",
			issueCfg.RequestsPerWindow, issueCfg.Window, cfg.RateLimitTableName)
	}
	if flowCfg.MaxAttempts > 0 {
		limiter, err := ratelimit.NewDynamoDBAttemptCounter(client, cfg.RateLimitTableName, flowCfg.MaxAttempts, flowCfg.TTL())
		if err != nil {
			return nil, fmt.Errorf("failed to create DynamoDB attempt limiter: %w", err)
		}
		opts = append(opts, mfa.WithAttemptLimiter(limiter))
		log.Printf("INFO: Distributed attempt limiting enabled: %d submissions per challenge", flowCfg.MaxAttempts)
	}
	return opts, nil
}
