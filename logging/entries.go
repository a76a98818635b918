package logging

import (
	"time"
)

// ChallengeLogEntry captures one IssueChallenge call.
type ChallengeLogEntry struct {
	Timestamp   string `json:"timestamp"`            // ISO8601 format
	Event       string `json:"event"`                // always "challenge"
	Target      string `json:"target"`               // masked phone
	State       string `json:"state"`                // challenged or error
	Simulation  bool   `json:"simulation"`           // simulation mode active
	GatewayKind string `json:"gateway_kind"`         // delivery backend
	ExpiresAt   string `json:"expires_at,omitempty"` // ISO8601 deadline
	ErrorCode   string `json:"error_code,omitempty"` // structured error code on failure
	Detail      string `json:"detail,omitempty"`     // sanitized failure detail
}

// VerificationLogEntry captures one SubmitCode call.
type VerificationLogEntry struct {
	Timestamp   string `json:"timestamp"`             // ISO8601 format
	Event       string `json:"event"`                 // always "verification"
	Target      string `json:"target,omitempty"`      // masked phone
	State       string `json:"state"`                 // accepted, rejected, expired, attempted, error
	Verdict     string `json:"verdict,omitempty"`     // verifier verdict
	Requirement string `json:"requirement,omitempty"` // execution requirement
	Simulation  bool   `json:"simulation"`            // simulation mode active
	ErrorCode   string `json:"error_code,omitempty"`  // structured error code on failure
	Detail      string `json:"detail,omitempty"`      // sanitized failure detail
}

// FormatTime renders t as an ISO8601 UTC timestamp with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// NewChallengeLogEntry creates a ChallengeLogEntry stamped with now.
func NewChallengeLogEntry(now time.Time, target, state string) ChallengeLogEntry {
	return ChallengeLogEntry{
		Timestamp: FormatTime(now),
		Event:     "challenge",
		Target:    target,
		State:     state,
	}
}

// NewVerificationLogEntry creates a VerificationLogEntry stamped with now.
func NewVerificationLogEntry(now time.Time, target, state string) VerificationLogEntry {
	return VerificationLogEntry{
		Timestamp: FormatTime(now),
		Event:     "verification",
		Target:    target,
		State:     state,
	}
}
