// Package config loads and validates the SMS authenticator configuration.
// The configuration is a YAML document read from a local file or an SSM
// parameter, checked with Validate before use and converted to mfa.Config.
package config

// AuthenticatorConfig is the YAML form of the authenticator configuration.
type AuthenticatorConfig struct {
	// TTL is the code validity in seconds. Zero means mfa.DefaultTTLSeconds.
	TTL int `yaml:"ttl" json:"ttl"`

	// Length is the number of code digits. Zero means mfa.DefaultCodeLength.
	Length int `yaml:"length" json:"length"`

	// Simulation generates and checks codes in-process.
	Simulation bool `yaml:"simulation" json:"simulation"`

	// SMSText overrides the SMS body format.
	SMSText string `yaml:"sms_text,omitempty" json:"sms_text,omitempty"`

	Gateway GatewayConfig `yaml:"gateway" json:"gateway"`
	Verify  VerifyConfig  `yaml:"verify" json:"verify"`

	// MaxAttempts bounds code submissions per challenge. Zero means unbounded.
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`

	// IssueRateLimit bounds challenges per phone number. Nil disables it.
	IssueRateLimit *RateLimitConfig `yaml:"issue_rate_limit,omitempty" json:"issue_rate_limit,omitempty"`

	// StrictPhone treats non-E.164 phone numbers as not configured.
	StrictPhone bool `yaml:"strict_phone,omitempty" json:"strict_phone,omitempty"`
}

// GatewayConfig selects and configures the SMS delivery backend.
type GatewayConfig struct {
	// Kind is custom, sns, twilio or log. Empty means custom.
	Kind string `yaml:"kind" json:"kind"`

	// Params are passed to the gateway. Values may be secret references.
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// VerifyConfig configures code verification outside simulation mode.
type VerifyConfig struct {
	// Mode is remote or local. Empty means remote.
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// URL is the remote verification endpoint.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// TimeoutSeconds bounds each verification and delivery call. Zero means the default.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// RateLimitConfig is a requests-per-window limit.
type RateLimitConfig struct {
	Requests int    `yaml:"requests" json:"requests"`
	Window   string `yaml:"window" json:"window"` // Go duration, e.g. "15m"
}

// IssueSeverity indicates the severity of a validation issue.
type IssueSeverity string

const (
	// SeverityError indicates a problem that blocks loading/usage.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a suspicious pattern but works.
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue represents a single validation problem.
type ValidationIssue struct {
	Severity   IssueSeverity `json:"severity"`
	Location   string        `json:"location"` // e.g., "gateway.params.url", "verify.mode"
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// ValidationResult contains all validation findings for a single config.
type ValidationResult struct {
	Source string            `json:"source"` // File path or SSM path
	Valid  bool              `json:"valid"`  // True if no errors (warnings OK)
	Issues []ValidationIssue `json:"issues"`
}

// AllResults aggregates multiple validation results.
type AllResults struct {
	Results []ValidationResult `json:"results"`
	Summary ResultSummary      `json:"summary"`
}

// ResultSummary provides aggregate counts.
type ResultSummary struct {
	Total    int `json:"total"`
	Valid    int `json:"valid"`
	Invalid  int `json:"invalid"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Compute populates the summary from a list of results.
func (s *ResultSummary) Compute(results []ValidationResult) {
	*s = ResultSummary{Total: len(results)}

	for _, r := range results {
		if r.Valid {
			s.Valid++
		} else {
			s.Invalid++
		}
		for _, issue := range r.Issues {
			switch issue.Severity {
			case SeverityError:
				s.Errors++
			case SeverityWarning:
				s.Warnings++
			}
		}
	}
}

// addError appends an error issue and marks the result invalid.
func (r *ValidationResult) addError(location, message, suggestion string) {
	r.Valid = false
	r.Issues = append(r.Issues, ValidationIssue{
		Severity:   SeverityError,
		Location:   location,
		Message:    message,
		Suggestion: suggestion,
	})
}

// addWarning appends a warning issue.
func (r *ValidationResult) addWarning(location, message, suggestion string) {
	r.Issues = append(r.Issues, ValidationIssue{
		Severity:   SeverityWarning,
		Location:   location,
		Message:    message,
		Suggestion: suggestion,
	})
}
