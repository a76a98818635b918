package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/byteness/smsotp/config"
	"github.com/byteness/smsotp/gateway"
	"github.com/byteness/smsotp/lambda"
	"github.com/byteness/smsotp/logging"
	"github.com/byteness/smsotp/mfa"
	"github.com/byteness/smsotp/ratelimit"
	"github.com/byteness/smsotp/session"
)

// errNoSharedNotes is returned when challenge or verify run without a store
// that outlives the process.
var errNoSharedNotes = errors.New("no shared attempt store: set --session-table or --redis-url, or use the simulate command")

// FlowInput selects the authenticator configuration and the attempt store.
type FlowInput struct {
	ConfigFile   string // Local YAML config
	SSMParameter string // SSM parameter holding the YAML config
	SessionTable string // DynamoDB table for attempt notes
	RedisURL       string // Redis URL for attempt notes
	RateLimitTable string // DynamoDB table for issuance and attempt limits
	Output         string // human, json

	// For testing
	Stdout          io.Writer
	Stderr          io.Writer
	Sender          mfa.Sender
	Notes           session.NoteStore
	SSMClient       config.SSMAPI
	RateLimitClient ratelimit.DynamoDBAPI
	Now             func() time.Time
}

// registerFlowFlags adds the flags shared by challenge, verify and simulate.
func registerFlowFlags(cmd *kingpin.CmdClause, input *FlowInput) {
	cmd.Flag("config", "Authenticator YAML config file").
		Short('c').
		Envar("SMSOTP_CONFIG_FILE").
		StringVar(&input.ConfigFile)

	cmd.Flag("ssm", "SSM parameter holding the authenticator config").
		Envar("SMSOTP_CONFIG_PARAMETER").
		StringVar(&input.SSMParameter)

	cmd.Flag("session-table", "DynamoDB table for attempt state").
		Envar("SMSOTP_SESSION_TABLE").
		StringVar(&input.SessionTable)

	cmd.Flag("redis-url", "Redis URL for attempt state").
		Envar("SMSOTP_REDIS_URL").
		StringVar(&input.RedisURL)

	cmd.Flag("rate-limit-table", "DynamoDB table enforcing issue_rate_limit and max_attempts across invocations").
		Envar("SMSOTP_RATE_LIMIT_TABLE").
		StringVar(&input.RateLimitTable)

	cmd.Flag("output", "Output format: human (default), json").
		Default("human").
		EnumVar(&input.Output, "human", "json")
}

func (in FlowInput) stdout() io.Writer {
	if in.Stdout == nil {
		return os.Stdout
	}
	return in.Stdout
}

func (in FlowInput) stderr() io.Writer {
	if in.Stderr == nil {
		return os.Stderr
	}
	return in.Stderr
}

// loadAuthenticatorConfig reads and validates the config from a file or SSM.
func loadAuthenticatorConfig(ctx context.Context, s *SmsOtp, in FlowInput) (*config.AuthenticatorConfig, error) {
	var (
		content []byte
		source  string
		err     error
	)
	switch {
	case in.ConfigFile != "" && in.SSMParameter != "":
		return nil, errors.New("use either --config or --ssm, not both")
	case in.ConfigFile != "":
		source = in.ConfigFile
		content, err = os.ReadFile(in.ConfigFile)
	case in.SSMParameter != "":
		source = in.SSMParameter
		loader, lerr := ssmLoader(ctx, s, in)
		if lerr != nil {
			return nil, lerr
		}
		content, err = loader.Fetch(ctx, in.SSMParameter)
	default:
		return nil, errors.New("no configuration: use --config <file> or --ssm <parameter>")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", source, err)
	}

	result := config.Validate(content, source)
	if !result.Valid {
		var problems []string
		for _, issue := range result.Issues {
			if issue.Severity == config.SeverityError {
				problems = append(problems, fmt.Sprintf("%s: %s", issue.Location, issue.Message))
			}
		}
		return nil, fmt.Errorf("config %s is invalid (run smsotp config validate): %s", source, strings.Join(problems, "; "))
	}
	return config.Parse(content)
}

func ssmLoader(ctx context.Context, s *SmsOtp, in FlowInput) (*config.SSMLoader, error) {
	if in.SSMClient != nil {
		return config.NewSSMLoaderWithClient(in.SSMClient), nil
	}
	awsCfg, err := s.AWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return config.NewSSMLoader(awsCfg), nil
}

// buildFlow assembles the flow and the attempt store for one command.
// With sharedNotes, an in-memory store is refused.
func buildFlow(ctx context.Context, s *SmsOtp, in FlowInput, sharedNotes bool) (*mfa.Flow, session.NoteStore, error) {
	authCfg, err := loadAuthenticatorConfig(ctx, s, in)
	if err != nil {
		return nil, nil, err
	}
	flowCfg, err := authCfg.ToAuthenticatorConfig()
	if err != nil {
		return nil, nil, err
	}

	notes, err := buildNotes(ctx, s, in, sharedNotes)
	if err != nil {
		return nil, nil, err
	}

	sender := in.Sender
	if sender == nil {
		opts := gateway.Options{
			Secrets:   newSecretResolver(s),
			LogOutput: in.stderr(),
		}
		if strings.EqualFold(flowCfg.GatewayKind, gateway.KindSNS) {
			awsCfg, err := s.AWSConfig(ctx)
			if err != nil {
				return nil, nil, err
			}
			opts.AWSConfig = &awsCfg
		}
		gw, err := gateway.New(ctx, flowCfg.GatewayKind, flowCfg.GatewayParams, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create SMS gateway: %w", err)
		}
		sender = gw
	}

	var logger logging.Logger = logging.NewNopLogger()
	if s.Debug {
		logger = logging.NewJSONLogger(in.stderr())
	}
	opts := []mfa.FlowOption{mfa.WithLogger(logger)}
	if in.Now != nil {
		opts = append(opts, mfa.WithClock(in.Now))
	}

	limiterOpts, err := buildLimiters(ctx, s, in, authCfg, flowCfg, sharedNotes)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, limiterOpts...)

	flow, err := mfa.NewFlow(flowCfg, sender, mfa.NewVerifier(flowCfg, nil), opts...)
	if err != nil {
		return nil, nil, err
	}
	return flow, notes, nil
}

// buildLimiters selects the issuance and attempt limiters. With a rate limit
// table both are kept in DynamoDB. Without one they live in process memory,
// which only bounds attempts when both phases run in the same process.
func buildLimiters(ctx context.Context, s *SmsOtp, in FlowInput, authCfg *config.AuthenticatorConfig, flowCfg mfa.Config, sharedNotes bool) ([]mfa.FlowOption, error) {
	issueCfg, err := authCfg.IssueLimiterConfig()
	if err != nil {
		return nil, err
	}

	var opts []mfa.FlowOption
	if in.RateLimitTable == "" {
		if issueCfg != nil {
			limiter, err := ratelimit.NewMemoryRateLimiter(*issueCfg)
			if err != nil {
				return nil, err
			}
			opts = append(opts, mfa.WithIssueLimiter(limiter))
		}
		if flowCfg.MaxAttempts > 0 && sharedNotes {
			fmt.Fprintf(in.stderr(), "Warning: max_attempts is only counted within one invocation; set --rate-limit-table to enforce it per challenge\n")
		}
		return opts, nil
	}

	client := in.RateLimitClient
	if client == nil {
		awsCfg, err := s.AWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		client = dynamodb.NewFromConfig(awsCfg)
	}
	if issueCfg != nil {
		limiter, err := ratelimit.NewDynamoDBRateLimiter(client, in.RateLimitTable, *issueCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create DynamoDB rate limiter: %w", err)
		}
		opts = append(opts, mfa.WithIssueLimiter(limiter))
	}
	if flowCfg.MaxAttempts > 0 {
		limiter, err := ratelimit.NewDynamoDBAttemptCounter(client, in.RateLimitTable, flowCfg.MaxAttempts, flowCfg.TTL())
		if err != nil {
			return nil, fmt.Errorf("failed to create DynamoDB attempt limiter: %w", err)
		}
		opts = append(opts, mfa.WithAttemptLimiter(limiter))
	}
	return opts, nil
}

func buildNotes(ctx context.Context, s *SmsOtp, in FlowInput, shared bool) (session.NoteStore, error) {
	switch {
	case in.Notes != nil:
		return in.Notes, nil
	case in.SessionTable != "" && in.RedisURL != "":
		return nil, errors.New("use either --session-table or --redis-url, not both")
	case in.SessionTable != "":
		awsCfg, err := s.AWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		return session.NewDynamoDBNotes(awsCfg, in.SessionTable), nil
	case in.RedisURL != "":
		notes, err := session.NewRedisNotes(in.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis note store: %w", err)
		}
		return notes, nil
	case shared:
		return nil, errNoSharedNotes
	default:
		return session.NewMemoryNotes(), nil
	}
}

// printOutcome writes the outcome in the selected format.
func printOutcome(w io.Writer, format, attemptID string, out mfa.Outcome) {
	resp := lambda.OutcomeResponse{
		AttemptID:  attemptID,
		State:      out.State.String(),
		Outcome:    string(out.Kind),
		MessageKey: out.MessageKey,
		Detail:     out.Detail,
		Target:     out.Target,
	}
	if se, ok := smsOtpCode(out.Err); ok {
		resp.ErrorCode = se
	}
	if !out.ExpiresAt.IsZero() {
		resp.ExpiresAt = out.ExpiresAt.UTC().Format(time.RFC3339)
	}

	if format == "json" {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			fmt.Fprintf(w, `{"error": "failed to marshal JSON: %v"}`+"\n", err)
			return
		}
		fmt.Fprintln(w, string(data))
		return
	}

	fmt.Fprintf(w, "Attempt:  %s\n", resp.AttemptID)
	fmt.Fprintf(w, "State:    %s (%s)\n", resp.State, resp.Outcome)
	if resp.Target != "" {
		fmt.Fprintf(w, "Sent to:  %s\n", resp.Target)
	}
	if resp.ExpiresAt != "" {
		fmt.Fprintf(w, "Expires:  %s\n", resp.ExpiresAt)
	}
	if resp.MessageKey != "" {
		fmt.Fprintf(w, "Message:  %s\n", resp.MessageKey)
	}
	if resp.ErrorCode != "" {
		fmt.Fprintf(w, "Error:    %s\n", resp.ErrorCode)
	}
	if resp.Detail != "" {
		fmt.Fprintf(w, "Detail:   %s\n", resp.Detail)
	}
}
