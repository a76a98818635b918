package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/byteness/smsotp/mfa"
	"github.com/byteness/smsotp/ratelimit"
)

// ErrEmptyConfig is returned when the config document is empty.
var ErrEmptyConfig = errors.New("empty configuration")

// Parse decodes a YAML authenticator config. Unknown keys are rejected.
func Parse(content []byte) (*AuthenticatorConfig, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptyConfig
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg AuthenticatorConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyConfig
		}
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (*AuthenticatorConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(content)
}

// Marshal renders the config as YAML.
func (c *AuthenticatorConfig) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToAuthenticatorConfig converts the YAML form to mfa.Config, filling unset
// ttl and length with their defaults, and validates the result.
func (c *AuthenticatorConfig) ToAuthenticatorConfig() (mfa.Config, error) {
	cfg := mfa.Config{
		CodeLength:    c.Length,
		TTLSeconds:    c.TTL,
		Simulation:    c.Simulation,
		GatewayKind:   strings.ToLower(c.Gateway.Kind),
		GatewayParams: c.Gateway.Params,
		VerifyMode:    mfa.VerifyMode(strings.ToLower(c.Verify.Mode)),
		VerifyURL:     c.Verify.URL,
		Timeout:       time.Duration(c.Verify.TimeoutSeconds) * time.Second,
		SMSText:       c.SMSText,
		MaxAttempts:   c.MaxAttempts,
		StrictPhone:   c.StrictPhone,
	}
	if cfg.CodeLength == 0 {
		cfg.CodeLength = mfa.DefaultCodeLength
	}
	if cfg.TTLSeconds == 0 {
		cfg.TTLSeconds = mfa.DefaultTTLSeconds
	}
	if err := cfg.Validate(); err != nil {
		return mfa.Config{}, err
	}
	return cfg, nil
}

// IssueLimiterConfig returns the issuance rate limit, or nil when none is set.
func (c *AuthenticatorConfig) IssueLimiterConfig() (*ratelimit.Config, error) {
	if c.IssueRateLimit == nil {
		return nil, nil
	}
	window, err := time.ParseDuration(c.IssueRateLimit.Window)
	if err != nil {
		return nil, fmt.Errorf("issue_rate_limit.window: %w", err)
	}
	rl := &ratelimit.Config{
		RequestsPerWindow: c.IssueRateLimit.Requests,
		Window:            window,
	}
	if err := rl.Validate(); err != nil {
		return nil, fmt.Errorf("issue_rate_limit: %w", err)
	}
	return rl, nil
}
