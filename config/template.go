package config

import (
	"fmt"

	"github.com/byteness/smsotp/gateway"
	"github.com/byteness/smsotp/mfa"
)

// TemplateID identifies a starter configuration.
type TemplateID string

const (
	// TemplateSimulation checks codes in-process and logs the masked SMS.
	TemplateSimulation TemplateID = "simulation"
	// TemplateRemote delivers and verifies through an external SMS provider API.
	TemplateRemote TemplateID = "remote"
	// TemplateSNS generates codes locally and texts them with AWS SNS.
	TemplateSNS TemplateID = "sns"
	// TemplateTwilio generates codes locally and texts them with Twilio.
	TemplateTwilio TemplateID = "twilio"
)

// IsValid returns true if the TemplateID is a known value.
func (t TemplateID) IsValid() bool {
	_, ok := templateRegistry[t]
	return ok
}

// String returns the string representation of the TemplateID.
func (t TemplateID) String() string {
	return string(t)
}

// AllTemplateIDs returns all valid template ID values.
func AllTemplateIDs() []TemplateID {
	return []TemplateID{TemplateSimulation, TemplateRemote, TemplateSNS, TemplateTwilio}
}

// Template describes a starter configuration.
type Template struct {
	ID          TemplateID
	Description string
	config      func() *AuthenticatorConfig
}

var templateRegistry = map[TemplateID]Template{
	TemplateSimulation: {
		ID:          TemplateSimulation,
		Description: "Development setup: codes are checked in-process, the SMS is written to stderr",
		config: func() *AuthenticatorConfig {
			return &AuthenticatorConfig{
				TTL:        mfa.DefaultTTLSeconds,
				Length:     mfa.DefaultCodeLength,
				Simulation: true,
				Gateway:    GatewayConfig{Kind: gateway.KindLog},
			}
		},
	},
	TemplateRemote: {
		ID:          TemplateRemote,
		Description: "The SMS provider generates, sends and verifies the code",
		config: func() *AuthenticatorConfig {
			return &AuthenticatorConfig{
				TTL:    mfa.DefaultTTLSeconds,
				Length: mfa.DefaultCodeLength,
				Gateway: GatewayConfig{
					Kind: gateway.KindCustom,
					Params: map[string]string{
						"url":            "https://sms.example.com/send",
						"apiKey":         "secretsmanager:smsotp/provider-api-key",
						"timeoutSeconds": "10",
					},
				},
				Verify: VerifyConfig{
					Mode:           string(mfa.VerifyModeRemote),
					URL:            "https://sms.example.com/verify",
					TimeoutSeconds: 10,
				},
				MaxAttempts:    5,
				IssueRateLimit: &RateLimitConfig{Requests: 3, Window: "15m"},
				StrictPhone:    true,
			}
		},
	},
	TemplateSNS: {
		ID:          TemplateSNS,
		Description: "Codes generated locally and sent with AWS SNS direct publish",
		config: func() *AuthenticatorConfig {
			return &AuthenticatorConfig{
				TTL:            mfa.DefaultTTLSeconds,
				Length:         mfa.DefaultCodeLength,
				Gateway:        GatewayConfig{Kind: gateway.KindSNS, Params: map[string]string{"smsType": gateway.SMSTypeTransactional}},
				Verify:         VerifyConfig{Mode: string(mfa.VerifyModeLocal)},
				MaxAttempts:    5,
				IssueRateLimit: &RateLimitConfig{Requests: 3, Window: "15m"},
				StrictPhone:    true,
			}
		},
	},
	TemplateTwilio: {
		ID:          TemplateTwilio,
		Description: "Codes generated locally and sent with the Twilio Messages API",
		config: func() *AuthenticatorConfig {
			return &AuthenticatorConfig{
				TTL:    mfa.DefaultTTLSeconds,
				Length: mfa.DefaultCodeLength,
				Gateway: GatewayConfig{
					Kind: gateway.KindTwilio,
					Params: map[string]string{
						"accountSid": "secretsmanager:smsotp/twilio-account-sid",
						"authToken":  "secretsmanager:smsotp/twilio-auth-token",
						"from":       "+15550000000",
					},
				},
				Verify:         VerifyConfig{Mode: string(mfa.VerifyModeLocal)},
				MaxAttempts:    5,
				IssueRateLimit: &RateLimitConfig{Requests: 3, Window: "15m"},
				StrictPhone:    true,
			}
		},
	},
}

// GetTemplate returns the template for id.
func GetTemplate(id TemplateID) (Template, bool) {
	t, ok := templateRegistry[id]
	return t, ok
}

// Generate renders the starter configuration for id as YAML.
func Generate(id TemplateID) ([]byte, error) {
	t, ok := templateRegistry[id]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", id)
	}
	return t.config().Marshal()
}
