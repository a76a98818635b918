package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/byteness/smsotp/mfa"
	"github.com/byteness/smsotp/validate"
)

func TestChallengeStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	notes := NewMemoryNotesWithClock(func() time.Time { return now })

	store, err := NewChallengeStore(notes, "attempt-1")
	if err != nil {
		t.Fatalf("NewChallengeStore() error = %v", err)
	}

	state := &mfa.ChallengeState{
		Phone:          "+15551234567",
		ExpiresAt:      now.Add(5 * time.Minute).UnixMilli(),
		SimulationCode: "482913",
	}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, _ := notes.Load(ctx, "attempt-1")
	if raw[NoteTTL] != "1768471500000" {
		t.Errorf("ttl note = %q, want 1768471500000", raw[NoteTTL])
	}
	if raw[NotePhone] != "+15551234567" || raw[NoteSimulationCode] != "482913" {
		t.Errorf("notes = %v", raw)
	}
	if _, ok := raw[NoteCodeHash]; ok {
		t.Error("empty code hash should not be written")
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *got != *state {
		t.Errorf("Load() = %+v, want %+v", got, state)
	}
}

func TestChallengeStore_SaveReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	notes := NewMemoryNotes()
	store, _ := NewChallengeStore(notes, "attempt-1")
	deadline := time.Now().Add(time.Minute).UnixMilli()

	store.Save(ctx, &mfa.ChallengeState{Phone: "+15551234567", ExpiresAt: deadline, SimulationCode: "111111"})
	store.Save(ctx, &mfa.ChallengeState{Phone: "+15551234567", ExpiresAt: deadline + 1, CodeHash: mfa.HashCode("222222")})

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.SimulationCode != "" {
		t.Errorf("SimulationCode = %q, want removed", got.SimulationCode)
	}
	if got.CodeHash != mfa.HashCode("222222") || got.ExpiresAt != deadline+1 {
		t.Errorf("Load() = %+v", got)
	}
}

func TestChallengeStore_Missing(t *testing.T) {
	ctx := context.Background()
	notes := NewMemoryNotes()
	store, _ := NewChallengeStore(notes, "attempt-1")

	if _, err := store.Load(ctx); !errors.Is(err, mfa.ErrStateNotFound) {
		t.Errorf("Load() on empty attempt error = %v, want ErrStateNotFound", err)
	}

	notes.Save(ctx, "attempt-1", map[string]string{NotePhone: "+15551234567"}, time.Now().Add(time.Hour))
	if _, err := store.Load(ctx); !errors.Is(err, mfa.ErrStateNotFound) {
		t.Errorf("Load() without ttl note error = %v, want ErrStateNotFound", err)
	}

	notes.Save(ctx, "attempt-1", map[string]string{NoteTTL: "soon"}, time.Now().Add(time.Hour))
	if _, err := store.Load(ctx); !errors.Is(err, ErrCorruptNotes) {
		t.Errorf("Load() with bad ttl error = %v, want ErrCorruptNotes", err)
	}
}

func TestChallengeStore_Clear(t *testing.T) {
	ctx := context.Background()
	notes := NewMemoryNotes()
	store, _ := NewChallengeStore(notes, "attempt-1")
	other, _ := NewChallengeStore(notes, "attempt-2")

	deadline := time.Now().Add(time.Minute).UnixMilli()
	store.Save(ctx, &mfa.ChallengeState{Phone: "+15551234567", ExpiresAt: deadline})
	other.Save(ctx, &mfa.ChallengeState{Phone: "+15557654321", ExpiresAt: deadline})

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, mfa.ErrStateNotFound) {
		t.Errorf("Load() after Clear error = %v", err)
	}
	if _, err := other.Load(ctx); err != nil {
		t.Errorf("Clear() affected another attempt: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestChallengeStore_RetainsPastDeadline(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := now
	notes := NewMemoryNotesWithClock(func() time.Time { return clock })
	store, _ := NewChallengeStore(notes, "attempt-1")

	store.Save(ctx, &mfa.ChallengeState{Phone: "+15551234567", ExpiresAt: now.Add(time.Minute).UnixMilli()})

	clock = now.Add(2 * time.Minute)
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() just past deadline error = %v", err)
	}
	if !got.IsExpired(clock) {
		t.Error("state should report expired")
	}

	clock = now.Add(time.Minute + RetentionGrace)
	if _, err := store.Load(ctx); !errors.Is(err, mfa.ErrStateNotFound) {
		t.Errorf("Load() after retention error = %v, want ErrStateNotFound", err)
	}
}

func TestNewChallengeStore_InvalidAttemptID(t *testing.T) {
	for _, id := range []string{"", "has space", "a/b"} {
		if _, err := NewChallengeStore(NewMemoryNotes(), id); err == nil {
			t.Errorf("NewChallengeStore(%q) should fail", id)
		}
	}
}

func TestNewAttemptID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewAttemptID()
		if err != nil {
			t.Fatalf("NewAttemptID() error = %v", err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("NewAttemptID() = %q", id)
		}
		if err := validate.ValidateAttemptID(id); err != nil {
			t.Fatalf("generated ID rejected: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}
