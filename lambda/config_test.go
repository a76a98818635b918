package lambda

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/byteness/smsotp/config"
	"github.com/byteness/smsotp/mfa"
	"github.com/byteness/smsotp/session"
	"github.com/byteness/smsotp/testutil"
)

const simulationYAML = "simulation: true\ngateway:\n  kind: log\n"

const remoteYAML = `
gateway:
  kind: custom
  params:
    url: https://sms.example.com/send
    apiKey: secretsmanager:smsotp/provider-api-key
verify:
  url: https://sms.example.com/verify
max_attempts: 5
issue_rate_limit:
  requests: 3
  window: 15m
`

var testAWSConfig = aws.Config{Region: "us-east-1"}

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smsotp.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func ssmLoaderFor(t *testing.T, content string) (*config.SSMLoader, *testutil.MockSSMClient) {
	t.Helper()
	mock := &testutil.MockSSMClient{
		GetParameterFunc: func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: params.Name, Value: aws.String(content)}}, nil
		},
	}
	return config.NewSSMLoaderWithClient(mock), mock
}

func TestNewHandlerConfig_FileSimulation(t *testing.T) {
	path := writeConfigFile(t, simulationYAML)
	loader, ssmMock := ssmLoaderFor(t, "")

	cfg, err := newHandlerConfig(context.Background(), testAWSConfig,
		envMap(map[string]string{EnvConfigFile: path}), loader, nil)
	if err != nil {
		t.Fatalf("newHandlerConfig() error = %v", err)
	}

	if cfg.Flow == nil {
		t.Fatal("Flow is nil")
	}
	if !cfg.Flow.Config().Simulation || cfg.Flow.Config().GatewayKind != "log" {
		t.Errorf("flow config = %+v", cfg.Flow.Config())
	}
	if _, ok := cfg.Notes.(*session.MemoryNotes); !ok {
		t.Errorf("Notes = %T, want *session.MemoryNotes", cfg.Notes)
	}
	if !cfg.RequireIAM {
		t.Error("RequireIAM should default to true")
	}
	if cfg.NewAttemptID == nil {
		t.Error("NewAttemptID not set")
	}
	if len(ssmMock.GetParameterCalls) != 0 {
		t.Error("SSM read although a config file was given")
	}
}

func TestNewHandlerConfig_SSMRemote(t *testing.T) {
	loader, ssmMock := ssmLoaderFor(t, remoteYAML)
	secrets := &testutil.MockSecretsManagerClient{
		Secrets: map[string]string{"smsotp/provider-api-key": "key-1"},
	}

	cfg, err := newHandlerConfig(context.Background(), testAWSConfig, envMap(map[string]string{
		EnvConfigParameter: "/smsotp/config",
		EnvSessionTable:    "smsotp-attempts",
		EnvRateLimitTable:  "smsotp-limits",
		EnvRequireIAM:      "FALSE",
		EnvCloudWatchGroup: "/smsotp/audit",
		EnvFunctionName:    "smsotp-prod",
	}), loader, newCachedSecretsLoaderWithClient(secrets))
	if err != nil {
		t.Fatalf("newHandlerConfig() error = %v", err)
	}

	if len(ssmMock.GetParameterCalls) != 1 || aws.ToString(ssmMock.GetParameterCalls[0].Name) != "/smsotp/config" {
		t.Errorf("GetParameter calls = %+v", ssmMock.GetParameterCalls)
	}
	if secrets.CallCount() != 1 {
		t.Errorf("GetSecretValue calls = %d, want 1", secrets.CallCount())
	}

	flowCfg := cfg.Flow.Config()
	if flowCfg.EffectiveVerifyMode() != mfa.VerifyModeRemote || flowCfg.VerifyURL != "https://sms.example.com/verify" {
		t.Errorf("flow config = %+v", flowCfg)
	}
	if flowCfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", flowCfg.MaxAttempts)
	}
	if _, ok := cfg.Notes.(*session.DynamoDBNotes); !ok {
		t.Errorf("Notes = %T, want *session.DynamoDBNotes", cfg.Notes)
	}
	if cfg.RequireIAM {
		t.Error("RequireIAM should be disabled")
	}
	if cfg.CloudWatchStream != "smsotp-prod" {
		t.Errorf("CloudWatchStream = %q, want function name", cfg.CloudWatchStream)
	}
	if cfg.RateLimitTableName != "smsotp-limits" {
		t.Errorf("RateLimitTableName = %q", cfg.RateLimitTableName)
	}
}

func TestNewHandlerConfig_Redis(t *testing.T) {
	path := writeConfigFile(t, simulationYAML)
	loader, _ := ssmLoaderFor(t, "")

	cfg, err := newHandlerConfig(context.Background(), testAWSConfig, envMap(map[string]string{
		EnvConfigFile: path,
		EnvRedisURL:   "redis://localhost:6379/0",
	}), loader, nil)
	if err != nil {
		t.Fatalf("newHandlerConfig() error = %v", err)
	}
	if _, ok := cfg.Notes.(*session.RedisNotes); !ok {
		t.Errorf("Notes = %T, want *session.RedisNotes", cfg.Notes)
	}
}

func TestNewHandlerConfig_Errors(t *testing.T) {
	simulation := writeConfigFile(t, simulationYAML)
	remote := writeConfigFile(t, remoteYAML)
	invalid := writeConfigFile(t, "gateway:\n  kind: custom\n  params:\n    url: https://sms.example.com/send\n")

	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"no source", map[string]string{}, "no authenticator configuration source"},
		{"both sources", map[string]string{EnvConfigFile: simulation, EnvConfigParameter: "/smsotp/config"}, "set only one of"},
		{"missing file", map[string]string{EnvConfigFile: filepath.Join(t.TempDir(), "absent.yaml")}, "failed to read config"},
		{"invalid config", map[string]string{EnvConfigFile: invalid}, "verify.url"},
		{"both note stores", map[string]string{EnvConfigFile: simulation, EnvSessionTable: "t", EnvRedisURL: "redis://localhost:6379"}, "set only one of"},
		{"bad redis url", map[string]string{EnvConfigFile: simulation, EnvRedisURL: "http://not-redis"}, "Redis note store"},
		{"unresolvable secret", map[string]string{EnvConfigFile: remote}, "failed to create SMS gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, _ := ssmLoaderFor(t, simulationYAML)
			_, err := newHandlerConfig(context.Background(), testAWSConfig, envMap(tt.env), loader, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("newHandlerConfig() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	loader, _ := ssmLoaderFor(t, "")
	if _, err := newHandlerConfig(context.Background(), testAWSConfig, envMap(nil), loader, nil); !errors.Is(err, ErrNoConfigSource) {
		t.Errorf("error = %v, want ErrNoConfigSource", err)
	}
}

func TestConfigureRateLimits_Attempts(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	awsCfg := aws.Config{Region: "us-east-1"}
	flowCfg := mfa.Config{TTLSeconds: 300, MaxAttempts: 3}

	tests := []struct {
		name     string
		table    string
		wantOpts int
		wantLog  string
	}{
		{"in memory", "", 0, "in-memory attempt limiting"},
		{"shared table", "smsotp-ratelimit", 1, "Distributed attempt limiting enabled: 3 submissions per challenge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs.Reset()
			opts, err := configureRateLimits(awsCfg, &HandlerConfig{RateLimitTableName: tt.table}, &config.AuthenticatorConfig{}, flowCfg)
			if err != nil {
				t.Fatalf("configureRateLimits() error = %v", err)
			}
			if len(opts) != tt.wantOpts {
				t.Errorf("got %d options, want %d", len(opts), tt.wantOpts)
			}
			if !strings.Contains(logs.String(), tt.wantLog) {
				t.Errorf("log = %q, want %q", logs.String(), tt.wantLog)
			}
		})
	}
}
