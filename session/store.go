package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/byteness/smsotp/mfa"
	"github.com/byteness/smsotp/validate"
)

// ChallengeStore adapts a NoteStore to mfa.StateStore for a single attempt.
type ChallengeStore struct {
	notes     NoteStore
	attemptID string
}

// NewChallengeStore returns the state store of one attempt.
// The attempt ID must pass validate.ValidateAttemptID.
func NewChallengeStore(notes NoteStore, attemptID string) (*ChallengeStore, error) {
	if err := validate.ValidateAttemptID(attemptID); err != nil {
		return nil, err
	}
	return &ChallengeStore{notes: notes, attemptID: attemptID}, nil
}

// AttemptID returns the attempt this store is scoped to.
func (s *ChallengeStore) AttemptID() string {
	return s.attemptID
}

// Load decodes the attempt's notes. Returns mfa.ErrStateNotFound when no ttl
// note exists.
func (s *ChallengeStore) Load(ctx context.Context) (*mfa.ChallengeState, error) {
	notes, err := s.notes.Load(ctx, s.attemptID)
	if err != nil {
		return nil, err
	}

	ttl, ok := notes[NoteTTL]
	if !ok || ttl == "" {
		return nil, mfa.ErrStateNotFound
	}
	expiresAt, err := strconv.ParseInt(ttl, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: ttl note %q", ErrCorruptNotes, ttl)
	}

	return &mfa.ChallengeState{
		Phone:          notes[NotePhone],
		ExpiresAt:      expiresAt,
		SimulationCode: notes[NoteSimulationCode],
		CodeHash:       notes[NoteCodeHash],
	}, nil
}

// Save replaces the attempt's notes with state. Empty fields are not written.
func (s *ChallengeStore) Save(ctx context.Context, state *mfa.ChallengeState) error {
	notes := map[string]string{
		NotePhone: state.Phone,
		NoteTTL:   strconv.FormatInt(state.ExpiresAt, 10),
	}
	if state.SimulationCode != "" {
		notes[NoteSimulationCode] = state.SimulationCode
	}
	if state.CodeHash != "" {
		notes[NoteCodeHash] = state.CodeHash
	}
	return s.notes.Save(ctx, s.attemptID, notes, state.Deadline().Add(RetentionGrace))
}

// Clear removes the attempt's notes.
func (s *ChallengeStore) Clear(ctx context.Context) error {
	return s.notes.Delete(ctx, s.attemptID)
}
