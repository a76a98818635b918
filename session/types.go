// Package session persists the per-attempt challenge notes of an SMS
// authentication attempt.
//
// An authentication attempt is one login try by one user. The flow records
// the challenged phone, the absolute code deadline and, depending on the
// verify mode, the simulation code or the code hash as string notes on the
// attempt. Notes are replaced wholesale on every issuance and removed when
// the attempt reaches a terminal result.
//
// # Backends
//
//   - MemoryNotes: process-local map, for the CLI and tests
//   - DynamoDBNotes: one item per attempt with a DynamoDB TTL attribute
//   - RedisNotes: one JSON value per attempt with an absolute key expiry
//
// # Attempt ID Format
//
// Generated attempt IDs are 32-character lowercase hexadecimal strings
// (128 bits of entropy). Callers may supply their own IDs as long as they
// pass validate.ValidateAttemptID.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

const (
	// AttemptIDLength is the length of generated attempt IDs (32 hex chars).
	AttemptIDLength = 32

	// RetentionGrace keeps notes past the code deadline so a late submission
	// is reported as expired instead of as missing state.
	RetentionGrace = 1 * time.Hour
)

// Note keys written by ChallengeStore.
const (
	NotePhone          = "phone"
	NoteTTL            = "ttl"
	NoteSimulationCode = "simulationCode"
	NoteCodeHash       = "codeHash"
)

// ErrCorruptNotes is returned when stored notes cannot be decoded.
var ErrCorruptNotes = errors.New("corrupt challenge notes")

// NoteStore persists string notes keyed by attempt ID.
// Implementations must be safe for concurrent use.
type NoteStore interface {
	// Load returns the notes of an attempt. An attempt with no notes, or whose
	// retention has passed, returns an empty map and no error.
	Load(ctx context.Context, attemptID string) (map[string]string, error)

	// Save replaces all notes of an attempt. retainUntil bounds how long the
	// backend keeps them.
	Save(ctx context.Context, attemptID string, notes map[string]string, retainUntil time.Time) error

	// Delete removes all notes of an attempt. No-op if none exist.
	Delete(ctx context.Context, attemptID string) error
}

// NewAttemptID generates a new 32-character lowercase hex attempt ID.
// It uses crypto/rand for cryptographic randomness.
func NewAttemptID() (string, error) {
	b := make([]byte, AttemptIDLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// copyNotes returns a shallow copy of notes. A nil map copies to an empty one.
func copyNotes(notes map[string]string) map[string]string {
	out := make(map[string]string, len(notes))
	for k, v := range notes {
		out[k] = v
	}
	return out
}
