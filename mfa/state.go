package mfa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrStateNotFound is returned by StateStore.Load when the attempt has no
// challenge recorded (no ttl note).
var ErrStateNotFound = errors.New("challenge state not found")

// ChallengeState is the per-attempt challenge record.
// It is created by IssueChallenge, read by SubmitCode and replaced wholesale
// by every new IssueChallenge on the same attempt.
type ChallengeState struct {
	// Phone is the challenged phone number.
	Phone string

	// ExpiresAt is the absolute deadline in Unix milliseconds.
	// It is set once at issuance and never extended.
	ExpiresAt int64

	// SimulationCode is the locally generated code. Empty outside simulation mode.
	SimulationCode string

	// CodeHash is the hex SHA-256 of the delivered code in local verify mode.
	CodeHash string
}

// HashCode returns the hex SHA-256 digest stored as ChallengeState.CodeHash.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Deadline returns ExpiresAt as a time.Time.
func (s *ChallengeState) Deadline() time.Time {
	return time.UnixMilli(s.ExpiresAt)
}

// IsExpired reports whether now is at or past the deadline.
func (s *ChallengeState) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= s.ExpiresAt
}

// StateStore persists the challenge state of a single authentication attempt.
// Implementations are scoped to one attempt; the flow never sees attempt IDs.
type StateStore interface {
	// Load returns the current state or ErrStateNotFound.
	Load(ctx context.Context) (*ChallengeState, error)

	// Save replaces the current state. Fields left empty are removed.
	Save(ctx context.Context, state *ChallengeState) error

	// Clear removes the state. No-op if none exists.
	Clear(ctx context.Context) error
}
