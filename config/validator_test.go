package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantValid    bool
		wantErrors   int
		wantLocation string // location of the first issue, if set
		wantWarning  bool
	}{
		{
			name: "valid remote config",
			content: `
ttl: 300
length: 6
gateway:
  kind: custom
  params:
    url: https://sms.example.com/send
verify:
  url: https://sms.example.com/verify
max_attempts: 5
`,
			wantValid: true,
		},
		{
			name:         "empty content",
			content:      "",
			wantValid:    false,
			wantErrors:   1,
			wantLocation: "",
		},
		{
			name:         "unknown key",
			content:      "ttl: 300\nlenght: 6\n",
			wantValid:    false,
			wantErrors:   1,
			wantLocation: "line 2",
		},
		{
			name: "remote without verify url",
			content: `
gateway:
  params:
    url: https://sms.example.com/send
max_attempts: 5
`,
			wantValid:    false,
			wantErrors:   1,
			wantLocation: "verify.url",
		},
		{
			name: "custom without url",
			content: `
verify:
  url: https://sms.example.com/verify
max_attempts: 5
`,
			wantValid:    false,
			wantErrors:   1,
			wantLocation: "gateway.params.url",
		},
		{
			name: "unknown gateway kind",
			content: `
gateway:
  kind: pigeon
verify:
  url: https://sms.example.com/verify
max_attempts: 5
`,
			wantValid:    false,
			wantErrors:   1,
			wantLocation: "gateway.kind",
		},
		{
			name: "twilio missing params",
			content: `
gateway:
  kind: twilio
  params:
    accountSid: AC1
verify:
  mode: local
max_attempts: 5
`,
			wantValid:    false,
			wantErrors:   2,
			wantLocation: "gateway.params.authToken",
		},
		{
			name: "local mode with custom gateway",
			content: `
gateway:
  params:
    url: https://sms.example.com/send
verify:
  mode: local
max_attempts: 5
`,
			wantValid:    false,
			wantErrors:   1,
			wantLocation: "gateway.kind",
		},
		{
			name: "local mode sms text without code",
			content: `
sms_text: "Check your phone"
gateway:
  kind: sns
verify:
  mode: local
max_attempts: 5
`,
			wantValid:    false,
			wantErrors:   1,
			wantLocation: "sms_text",
		},
		{
			name: "unknown verify mode",
			content: `
gateway:
  kind: log
verify:
  mode: psychic
max_attempts: 5
`,
			wantValid:    false,
			wantErrors:   1,
			wantLocation: "verify.mode",
		},
		{
			name: "length out of range",
			content: `
length: 19
simulation: true
gateway:
  kind: log
`,
			wantValid:    false,
			wantErrors:   1,
			wantLocation: "length",
			wantWarning:  true,
		},
		{
			name: "bad rate limit",
			content: `
gateway:
  kind: sns
verify:
  mode: local
max_attempts: 5
issue_rate_limit:
  requests: 0
  window: soon
`,
			wantValid:    false,
			wantErrors:   2,
			wantLocation: "issue_rate_limit.requests",
		},
		{
			name: "bad gateway timeout",
			content: `
gateway:
  params:
    url: https://sms.example.com/send
    timeoutSeconds: "0"
verify:
  url: https://sms.example.com/verify
max_attempts: 5
`,
			wantValid:    false,
			wantErrors:   1,
			wantLocation: "gateway.params.timeoutSeconds",
		},
		{
			name: "simulation warns",
			content: `
simulation: true
gateway:
  kind: log
`,
			wantValid:    true,
			wantLocation: "simulation",
			wantWarning:  true,
		},
		{
			name: "unbounded attempts warns",
			content: `
gateway:
  kind: sns
verify:
  mode: local
`,
			wantValid:    true,
			wantLocation: "max_attempts",
			wantWarning:  true,
		},
		{
			name: "plain http warns",
			content: `
gateway:
  params:
    url: https://sms.example.com/send
verify:
  url: http://sms.example.com/verify
max_attempts: 5
`,
			wantValid:    true,
			wantLocation: "verify.url",
			wantWarning:  true,
		},
		{
			name: "short ttl and code warn",
			content: `
ttl: 30
length: 3
gateway:
  kind: sns
verify:
  mode: local
max_attempts: 5
`,
			wantValid:    true,
			wantLocation: "length",
			wantWarning:  true,
		},
		{
			name: "clear text twilio token warns",
			content: `
gateway:
  kind: twilio
  params:
    accountSid: AC1
    authToken: plain-token
    from: "+15550001111"
verify:
  mode: local
max_attempts: 5
`,
			wantValid:    true,
			wantLocation: "gateway.params.authToken",
			wantWarning:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate([]byte(tt.content), "test.yaml")

			if result.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (issues: %+v)", result.Valid, tt.wantValid, result.Issues)
			}
			if result.Source != "test.yaml" {
				t.Errorf("Source = %q", result.Source)
			}

			errorCount, warningCount := 0, 0
			for _, issue := range result.Issues {
				switch issue.Severity {
				case SeverityError:
					errorCount++
				case SeverityWarning:
					warningCount++
				}
				if issue.Suggestion == "" {
					t.Errorf("issue at %q has no suggestion", issue.Location)
				}
			}
			if errorCount != tt.wantErrors {
				t.Errorf("errors = %d, want %d (issues: %+v)", errorCount, tt.wantErrors, result.Issues)
			}
			if tt.wantWarning && warningCount == 0 {
				t.Errorf("expected a warning, got none")
			}
			if !tt.wantWarning && warningCount > 0 {
				t.Errorf("unexpected warnings: %+v", result.Issues)
			}
			if tt.wantLocation != "" && (len(result.Issues) == 0 || result.Issues[0].Location != tt.wantLocation) {
				t.Errorf("first issue location = %+v, want %q", result.Issues, tt.wantLocation)
			}
		})
	}
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smsotp.yaml")
	content := "simulation: true\ngateway:\n  kind: log\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	result, err := ValidateFile(path)
	if err != nil {
		t.Fatalf("ValidateFile() error = %v", err)
	}
	if !result.Valid || result.Source != path {
		t.Errorf("ValidateFile() = %+v", result)
	}

	result, err = ValidateFile(filepath.Join(dir, "missing.yaml"))
	if err == nil {
		t.Error("ValidateFile() on missing file should return error")
	}
	if result.Valid || len(result.Issues) != 1 || !strings.Contains(result.Issues[0].Message, "failed to read file") {
		t.Errorf("ValidateFile() result = %+v", result)
	}
}

func TestResultSummary_Compute(t *testing.T) {
	results := []ValidationResult{
		{Valid: true, Issues: []ValidationIssue{{Severity: SeverityWarning}}},
		{Valid: false, Issues: []ValidationIssue{{Severity: SeverityError}, {Severity: SeverityError}, {Severity: SeverityWarning}}},
		{Valid: true},
	}

	var s ResultSummary
	s.Compute(results)

	want := ResultSummary{Total: 3, Valid: 2, Invalid: 1, Errors: 2, Warnings: 2}
	if s != want {
		t.Errorf("Compute() = %+v, want %+v", s, want)
	}

	s.Compute(nil)
	if s != (ResultSummary{}) {
		t.Errorf("Compute(nil) = %+v, want zero", s)
	}
}
