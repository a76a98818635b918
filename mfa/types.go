// Package mfa implements the SMS one-time-password second factor.
// It issues a numeric code to the user's registered phone number, keeps the
// challenge state for a bounded TTL and validates the submitted code either
// locally (simulation mode) or against a remote verification gateway.
//
// # Challenge Flow
//
//  1. IssueChallenge() resolves the phone, records the TTL deadline (and, in
//     simulation mode, the generated code) and hands the SMS text to the gateway
//  2. The user reads the SMS and submits the code
//  3. SubmitCode() verifies the code, then applies the TTL check
//
// # States
//
// Start -> Challenged -> {Accepted, Rejected, Expired, Attempted, Error}.
// Rejected loops back to Challenged under the same state and TTL.
package mfa

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultCodeLength is the number of digits in generated codes.
	DefaultCodeLength = 6

	// DefaultTTLSeconds is how long an issued code remains valid.
	DefaultTTLSeconds = 300

	// DefaultTimeout bounds every outbound gateway and verifier call.
	DefaultTimeout = 10 * time.Second

	// MaxCodeLength is the longest code the generator will produce.
	MaxCodeLength = 18

	// DefaultSMSText is the SMS body. Argument 1 is the code (or its mask),
	// argument 2 the validity in whole minutes.
	DefaultSMSText = "Your SMS code is %[1]s and is valid for %[2]d minutes."
)

// Config is the per-deployment authenticator configuration.
// It is immutable once a Flow is built from it.
type Config struct {
	// CodeLength is the number of digits in the code (>= 1).
	CodeLength int

	// TTLSeconds is the validity window of an issued code (> 0).
	TTLSeconds int

	// Simulation disables external verification: the code is generated and
	// compared locally and never reaches the delivery backend.
	Simulation bool

	// GatewayKind selects the delivery backend ("custom", "sns", "twilio", "log").
	GatewayKind string

	// GatewayParams configures the delivery backend and is passed through unmodified.
	GatewayParams map[string]string

	// VerifyMode selects how codes are produced and checked outside simulation.
	// Empty means VerifyModeRemote.
	VerifyMode VerifyMode

	// VerifyURL is the remote verification endpoint. Required in remote mode.
	VerifyURL string

	// Timeout bounds each network call. Zero means DefaultTimeout.
	Timeout time.Duration

	// SMSText overrides DefaultSMSText.
	SMSText string

	// MaxAttempts bounds code submissions per challenge. Zero means unbounded.
	MaxAttempts int

	// StrictPhone rejects phone numbers that are not E.164 as "not configured".
	StrictPhone bool
}

// Validate checks that the Config is usable.
func (c Config) Validate() error {
	if c.CodeLength < 1 || c.CodeLength > MaxCodeLength {
		return fmt.Errorf("code length must be between 1 and %d, got %d", MaxCodeLength, c.CodeLength)
	}
	if c.TTLSeconds <= 0 {
		return fmt.Errorf("ttl must be positive, got %d", c.TTLSeconds)
	}
	if c.VerifyMode != "" && !c.VerifyMode.IsValid() {
		return fmt.Errorf("unknown verify mode %q: use remote or local", c.VerifyMode)
	}
	if !c.Simulation && c.EffectiveVerifyMode() == VerifyModeRemote && c.VerifyURL == "" {
		return fmt.Errorf("verify URL is required in remote verify mode")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %v", c.Timeout)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative, got %d", c.MaxAttempts)
	}
	return nil
}

// EffectiveVerifyMode returns VerifyMode, or VerifyModeRemote when unset.
func (c Config) EffectiveVerifyMode() VerifyMode {
	if c.VerifyMode == "" {
		return VerifyModeRemote
	}
	return c.VerifyMode
}

// generatesCode reports whether the flow, not the gateway, creates the code.
func (c Config) generatesCode() bool {
	return c.Simulation || c.EffectiveVerifyMode() == VerifyModeLocal
}

// TTL returns the validity window as a duration.
func (c Config) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// EffectiveTimeout returns Timeout, or DefaultTimeout when unset.
func (c Config) EffectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Mask returns CodeLength asterisks.
func (c Config) Mask() string {
	return strings.Repeat("*", c.CodeLength)
}

// FormatSMS renders the SMS body for the given code or mask.
// Minutes are floor(ttl/60).
func (c Config) FormatSMS(code string) string {
	text := c.SMSText
	if text == "" {
		text = DefaultSMSText
	}
	return fmt.Sprintf(text, code, c.TTLSeconds/60)
}

// VerifyMode selects the verification backend outside simulation mode.
type VerifyMode string

const (
	// VerifyModeRemote leaves code generation to the gateway provider and
	// checks submissions against VerifyURL. The SMS text carries the mask.
	VerifyModeRemote VerifyMode = "remote"
	// VerifyModeLocal generates the code locally, delivers it in the SMS
	// text and keeps only its hash in the challenge state.
	VerifyModeLocal VerifyMode = "local"
)

// IsValid returns true if the VerifyMode is a known value.
func (m VerifyMode) IsValid() bool {
	return m == VerifyModeRemote || m == VerifyModeLocal
}

// String returns the string representation of the VerifyMode.
func (m VerifyMode) String() string {
	return string(m)
}

// Requirement is the execution requirement of the authenticator in the
// surrounding authentication flow.
type Requirement string

const (
	// RequirementRequired makes an invalid code re-present the code form.
	RequirementRequired Requirement = "required"
	// RequirementAlternative yields to other authenticators on an invalid code.
	RequirementAlternative Requirement = "alternative"
	// RequirementConditional behaves like alternative on an invalid code.
	RequirementConditional Requirement = "conditional"
)

// IsValid returns true if the Requirement is a known value.
func (r Requirement) IsValid() bool {
	switch r {
	case RequirementRequired, RequirementAlternative, RequirementConditional:
		return true
	}
	return false
}

// String returns the string representation of the Requirement.
func (r Requirement) String() string {
	return string(r)
}

// ParseRequirement parses a requirement name case-insensitively.
// An empty string parses as RequirementRequired.
func ParseRequirement(s string) (Requirement, error) {
	if s == "" {
		return RequirementRequired, nil
	}
	r := Requirement(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown requirement %q: use required, alternative or conditional", s)
	}
	return r, nil
}

// UserProfile is the subset of the user record the flow reads.
type UserProfile struct {
	// Username is the login name. It doubles as the phone number when
	// Phone is empty.
	Username string

	// Phone is the registered phone number, if stored separately.
	Phone string
}

// ResolvePhone returns the phone number to challenge, or "" if none.
func (u UserProfile) ResolvePhone() string {
	if p := strings.TrimSpace(u.Phone); p != "" {
		return p
	}
	return strings.TrimSpace(u.Username)
}

// Verdict is the result of a verification attempt.
type Verdict int

const (
	// VerdictInvalid means the code did not match.
	VerdictInvalid Verdict = iota
	// VerdictValid means the code matched.
	VerdictValid
	// VerdictBackendUnavailable means the remote call failed or answered unexpectedly.
	VerdictBackendUnavailable
	// VerdictRequestMalformed means no well-formed request could be built.
	VerdictRequestMalformed
)

// String returns the string representation of the Verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictInvalid:
		return "invalid"
	case VerdictBackendUnavailable:
		return "backend_unavailable"
	case VerdictRequestMalformed:
		return "request_malformed"
	default:
		return "unknown"
	}
}

// State is a node of the challenge state machine.
type State string

const (
	StateStart      State = "start"
	StateChallenged State = "challenged"
	StateAccepted   State = "accepted"
	StateRejected   State = "rejected"
	StateExpired    State = "expired"
	StateAttempted  State = "attempted"
	StateError      State = "error"
)

// String returns the string representation of the State.
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further submission is accepted in this state.
// Rejected is re-entrant and Attempted hands control back to the caller.
func (s State) IsTerminal() bool {
	switch s {
	case StateAccepted, StateExpired, StateError:
		return true
	}
	return false
}

// OutcomeKind tells the caller what to present.
type OutcomeKind string

const (
	// OutcomePresentForm asks the caller to render the code entry form.
	OutcomePresentForm OutcomeKind = "present-form"
	// OutcomePresentError asks the caller to render an error page.
	OutcomePresentError OutcomeKind = "present-error"
	// OutcomeSucceed marks the factor as passed.
	OutcomeSucceed OutcomeKind = "succeed"
	// OutcomeYield hands control to alternative authenticators.
	OutcomeYield OutcomeKind = "yield-to-alternative"
)

// Outcome is the result of IssueChallenge or SubmitCode.
type Outcome struct {
	// State is the state the attempt is in after the call.
	State State

	// Kind tells the caller what to present.
	Kind OutcomeKind

	// MessageKey is the catalog key for the form error or error page ("" if none).
	MessageKey string

	// Detail is optional diagnostic detail for error pages.
	Detail string

	// Err is the structured error behind an error outcome, nil otherwise.
	Err error

	// Target is the masked phone the code was sent to (IssueChallenge only).
	Target string

	// ExpiresAt is the challenge deadline, zero when unknown.
	ExpiresAt time.Time
}
