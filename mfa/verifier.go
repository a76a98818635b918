package mfa

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxVerifyResponseBytes caps how much of the verification response is read.
const maxVerifyResponseBytes = 64 << 10

// Verifier checks a submitted code against ground truth.
//
// Verify never returns transport or parse failures as errors to act on: they
// are folded into VerdictBackendUnavailable or VerdictRequestMalformed. The
// returned error is diagnostic detail for those two verdicts and nil otherwise.
type Verifier interface {
	Verify(ctx context.Context, phone, code string, state *ChallengeState) (Verdict, error)
}

// NewVerifier selects the verifier variant for cfg.
// Simulation mode compares with the stored code, local mode with the stored
// hash; otherwise the code is checked remotely.
// A nil client gets a client bounded by cfg.EffectiveTimeout().
func NewVerifier(cfg Config, client *http.Client) Verifier {
	if cfg.Simulation {
		return &SimulationVerifier{}
	}
	if cfg.EffectiveVerifyMode() == VerifyModeLocal {
		return &LocalVerifier{}
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.EffectiveTimeout()}
	}
	return newRemoteVerifierWithClient(cfg.VerifyURL, client)
}

// SimulationVerifier compares the code with the locally stored simulation code.
type SimulationVerifier struct{}

// Verify returns VerdictValid iff code equals state.SimulationCode.
// The comparison is constant-time. An empty stored code never matches.
func (SimulationVerifier) Verify(_ context.Context, _ string, code string, state *ChallengeState) (Verdict, error) {
	if state == nil || state.SimulationCode == "" {
		return VerdictInvalid, nil
	}
	if subtle.ConstantTimeCompare([]byte(state.SimulationCode), []byte(code)) == 1 {
		return VerdictValid, nil
	}
	return VerdictInvalid, nil
}

// LocalVerifier compares the hash of the submitted code with state.CodeHash.
type LocalVerifier struct{}

// Verify returns VerdictValid iff HashCode(code) equals state.CodeHash.
func (LocalVerifier) Verify(_ context.Context, _ string, code string, state *ChallengeState) (Verdict, error) {
	if state == nil || state.CodeHash == "" {
		return VerdictInvalid, nil
	}
	if subtle.ConstantTimeCompare([]byte(state.CodeHash), []byte(HashCode(code))) == 1 {
		return VerdictValid, nil
	}
	return VerdictInvalid, nil
}

// RemoteVerifier checks codes against an HTTP verification endpoint.
//
// Wire format: form-encoded POST with fields phone and otp. A 200 answer with
// a JSON body carrying a boolean "result" field is a verdict; anything else
// is VerdictBackendUnavailable.
type RemoteVerifier struct {
	endpoint string
	client   *http.Client
}

// validateResponse is the verification endpoint's answer.
// Only Result is interpreted; other fields are kept for diagnostics.
type validateResponse struct {
	Result           *bool  `json:"result"`
	Phone            string `json:"phone,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// NewRemoteVerifier creates a RemoteVerifier with its own bounded HTTP client.
func NewRemoteVerifier(endpoint string, cfg Config) *RemoteVerifier {
	return newRemoteVerifierWithClient(endpoint, &http.Client{Timeout: cfg.EffectiveTimeout()})
}

// newRemoteVerifierWithClient creates a RemoteVerifier with a custom client.
func newRemoteVerifierWithClient(endpoint string, client *http.Client) *RemoteVerifier {
	return &RemoteVerifier{
		endpoint: endpoint,
		client:   client,
	}
}

// Verify posts the phone and code to the verification endpoint.
func (v *RemoteVerifier) Verify(ctx context.Context, phone, code string, _ *ChallengeState) (Verdict, error) {
	if phone == "" || code == "" {
		return VerdictRequestMalformed, errors.New("phone and code are required")
	}
	if _, err := url.ParseRequestURI(v.endpoint); err != nil {
		return VerdictRequestMalformed, fmt.Errorf("invalid verify URL: %w", err)
	}

	form := url.Values{}
	form.Set("phone", phone)
	form.Set("otp", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return VerdictRequestMalformed, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return VerdictBackendUnavailable, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return VerdictBackendUnavailable, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyResponseBytes))
	if err != nil {
		return VerdictBackendUnavailable, fmt.Errorf("read response: %w", err)
	}

	var parsed validateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return VerdictBackendUnavailable, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Result == nil {
		return VerdictBackendUnavailable, errors.New("response has no boolean result field")
	}

	if *parsed.Result {
		return VerdictValid, nil
	}
	return VerdictInvalid, nil
}
