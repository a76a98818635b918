package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/byteness/smsotp/gateway"
	"github.com/byteness/smsotp/mfa"
)

// requiredGatewayParams lists the params each gateway kind cannot work without.
var requiredGatewayParams = map[string][]string{
	gateway.KindCustom: {"url"},
	gateway.KindSNS:    {},
	gateway.KindTwilio: {"accountSid", "authToken", "from"},
	gateway.KindLog:    {},
}

// yamlLineRegex extracts the line number from yaml.v3 errors.
var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Validate validates config content.
// It performs YAML parsing and semantic validation, returning all issues found.
func Validate(content []byte, source string) ValidationResult {
	result := ValidationResult{
		Source: source,
		Valid:  true,
		Issues: []ValidationIssue{},
	}

	cfg, err := Parse(content)
	if errors.Is(err, ErrEmptyConfig) {
		result.addError("", "empty configuration", "provide valid YAML content")
		return result
	}
	if err != nil {
		addYAMLParseError(&result, err)
		return result
	}

	ValidateConfig(cfg, &result)
	return result
}

// ValidateFile validates a local YAML file.
func ValidateFile(path string) (ValidationResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		result := ValidationResult{Source: path, Valid: true}
		result.addError("", fmt.Sprintf("failed to read file: %v", err), "verify the file path exists and is readable")
		return result, err
	}

	return Validate(content, path), nil
}

// ValidateConfig runs the semantic checks on a parsed config and appends
// the findings to result.
func ValidateConfig(cfg *AuthenticatorConfig, result *ValidationResult) {
	validateCode(cfg, result)
	mode := validateVerify(cfg, result)
	validateGateway(cfg, mode, result)
	validateSMSText(cfg, mode, result)
	validateLimits(cfg, result)

	if cfg.Simulation {
		result.addWarning("simulation",
			"simulation mode is enabled - codes are checked in-process and the SMS carries only a mask",
			"disable simulation outside development and test environments")
	}
}

func validateCode(cfg *AuthenticatorConfig, result *ValidationResult) {
	switch {
	case cfg.Length < 0 || cfg.Length > mfa.MaxCodeLength:
		result.addError("length",
			fmt.Sprintf("length must be between 1 and %d, got %d", mfa.MaxCodeLength, cfg.Length),
			fmt.Sprintf("use a length such as %d", mfa.DefaultCodeLength))
	case cfg.Length > 0 && cfg.Length < 4:
		result.addWarning("length",
			fmt.Sprintf("length %d gives only %d possible codes", cfg.Length, 9*pow10(cfg.Length-1)),
			"use at least 6 digits")
	}

	switch {
	case cfg.TTL < 0:
		result.addError("ttl", fmt.Sprintf("ttl cannot be negative, got %d", cfg.TTL), "use a ttl in seconds, e.g. 300")
	case cfg.TTL > 0 && cfg.TTL < 60:
		result.addWarning("ttl",
			fmt.Sprintf("ttl %ds is under a minute - the SMS text will announce 0 minutes", cfg.TTL),
			"use a ttl of at least 60 seconds")
	case cfg.TTL > 3600:
		result.addWarning("ttl",
			fmt.Sprintf("ttl %ds keeps codes valid for over an hour", cfg.TTL),
			"use a ttl of a few minutes")
	}
}

// validateVerify checks the verify section and returns the effective mode.
func validateVerify(cfg *AuthenticatorConfig, result *ValidationResult) mfa.VerifyMode {
	mode := mfa.VerifyMode(strings.ToLower(cfg.Verify.Mode))
	if mode == "" {
		mode = mfa.VerifyModeRemote
	}
	if !mode.IsValid() {
		result.addError("verify.mode",
			fmt.Sprintf("unknown verify mode %q", cfg.Verify.Mode),
			"use 'remote' or 'local'")
		return mode
	}

	if cfg.Verify.TimeoutSeconds < 0 {
		result.addError("verify.timeout_seconds",
			fmt.Sprintf("timeout_seconds cannot be negative, got %d", cfg.Verify.TimeoutSeconds),
			"omit timeout_seconds to use the default of 10")
	}

	if mode != mfa.VerifyModeRemote {
		if cfg.Verify.URL != "" {
			result.addWarning("verify.url", "verify.url is ignored in local verify mode", "remove verify.url")
		}
		return mode
	}

	if cfg.Verify.URL == "" {
		if !cfg.Simulation {
			result.addError("verify.url", "verify.url is required in remote verify mode",
				"set verify.url to the verification endpoint or use verify.mode: local")
		}
		return mode
	}
	validateURL("verify.url", cfg.Verify.URL, result)
	return mode
}

// validateGateway checks the gateway section.
func validateGateway(cfg *AuthenticatorConfig, mode mfa.VerifyMode, result *ValidationResult) {
	kind := strings.ToLower(cfg.Gateway.Kind)
	if kind == "" {
		kind = gateway.KindCustom
	}

	required, ok := requiredGatewayParams[kind]
	if !ok {
		result.addError("gateway.kind",
			fmt.Sprintf("unknown gateway kind %q", cfg.Gateway.Kind),
			"use one of: custom, sns, twilio, log")
		return
	}

	params := gateway.Params(cfg.Gateway.Params)
	for _, key := range required {
		if params.Get(key) == "" {
			result.addError("gateway.params."+key,
				fmt.Sprintf("%s gateway requires parameter %q", kind, key),
				fmt.Sprintf("add %s under gateway.params", key))
		}
	}
	if kind == gateway.KindCustom && params.Get("url") != "" && !gateway.IsSecretRef(params.Get("url")) {
		validateURL("gateway.params.url", params.Get("url"), result)
	}
	if raw := params.Get("timeoutSeconds"); raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n <= 0 {
			result.addError("gateway.params.timeoutSeconds",
				fmt.Sprintf("timeoutSeconds must be a positive integer, got %q", raw),
				"use a whole number of seconds, e.g. \"10\"")
		}
	}
	if kind == gateway.KindSNS {
		switch params.Get("smsType") {
		case "", gateway.SMSTypeTransactional, gateway.SMSTypePromotional:
		default:
			result.addError("gateway.params.smsType",
				fmt.Sprintf("unknown SNS SMS type %q", params.Get("smsType")),
				"use Transactional or Promotional")
		}
	}
	if kind == gateway.KindTwilio {
		if v := params.Get("authToken"); v != "" && !gateway.IsSecretRef(v) {
			result.addWarning("gateway.params.authToken",
				"authToken is stored in clear text",
				"reference a secret instead, e.g. secretsmanager:smsotp/twilio-token")
		}
	}

	if !cfg.Simulation && mode == mfa.VerifyModeLocal && kind == gateway.KindCustom {
		result.addError("gateway.kind",
			"the custom gateway does not transmit the message text, so locally generated codes never reach the user",
			"use the sns, twilio or log gateway with verify.mode: local")
	}
}

func validateSMSText(cfg *AuthenticatorConfig, mode mfa.VerifyMode, result *ValidationResult) {
	if cfg.SMSText == "" {
		return
	}
	hasCode := strings.Contains(cfg.SMSText, "%[1]s")
	if !hasCode && !cfg.Simulation && mode == mfa.VerifyModeLocal {
		result.addError("sms_text",
			"sms_text has no %[1]s placeholder, so the code is never sent",
			"include %[1]s where the code should appear")
	}
	if strings.Contains(cfg.SMSText, "%s") || strings.Contains(cfg.SMSText, "%d") {
		result.addWarning("sms_text",
			"sms_text uses unindexed verbs",
			"use %[1]s for the code and %[2]d for the minutes")
	}
}

func validateLimits(cfg *AuthenticatorConfig, result *ValidationResult) {
	switch {
	case cfg.MaxAttempts < 0:
		result.addError("max_attempts",
			fmt.Sprintf("max_attempts cannot be negative, got %d", cfg.MaxAttempts),
			"use 0 for unbounded or a small positive number")
	case cfg.MaxAttempts == 0 && !cfg.Simulation:
		result.addWarning("max_attempts",
			"code submissions are unbounded within the ttl window",
			"set max_attempts (e.g. 5) to limit guessing")
	}

	rl := cfg.IssueRateLimit
	if rl == nil {
		return
	}
	if rl.Requests <= 0 {
		result.addError("issue_rate_limit.requests",
			fmt.Sprintf("requests must be positive, got %d", rl.Requests),
			"use e.g. requests: 3")
	}
	window, err := time.ParseDuration(rl.Window)
	switch {
	case err != nil:
		result.addError("issue_rate_limit.window",
			fmt.Sprintf("invalid window %q", rl.Window),
			"use a Go duration such as 15m or 1h")
	case window <= 0:
		result.addError("issue_rate_limit.window",
			fmt.Sprintf("window must be positive, got %v", window),
			"use a Go duration such as 15m or 1h")
	case window < time.Minute:
		result.addWarning("issue_rate_limit.window",
			fmt.Sprintf("very short window (%v)", window),
			"consider a window of at least 1 minute for abuse prevention")
	}
}

func validateURL(location, raw string, result *ValidationResult) {
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" {
		result.addError(location, fmt.Sprintf("invalid URL %q", raw), "use an absolute https:// URL")
		return
	}
	if u.Scheme != "https" {
		result.addWarning(location,
			fmt.Sprintf("%s uses %s - phone numbers and codes travel unencrypted", location, u.Scheme),
			"use https")
	}
}

// addYAMLParseError adds a YAML parse error issue to the result.
func addYAMLParseError(result *ValidationResult, err error) {
	location := ""
	if m := yamlLineRegex.FindStringSubmatch(err.Error()); m != nil {
		location = "line " + m[1]
	}
	result.addError(location, fmt.Sprintf("YAML parse error: %v", err),
		"check YAML syntax and key names (ttl, length, simulation, sms_text, gateway, verify, max_attempts, issue_rate_limit, strict_phone)")
}

func pow10(n int) int {
	p := 1
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}
