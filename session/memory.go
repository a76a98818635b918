package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	notes       map[string]string
	retainUntil time.Time
}

// MemoryNotes is a process-local NoteStore.
// Entries past their retention are dropped on access.
type MemoryNotes struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryNotes creates an empty MemoryNotes.
func NewMemoryNotes() *MemoryNotes {
	return NewMemoryNotesWithClock(time.Now)
}

// NewMemoryNotesWithClock creates an empty MemoryNotes using now as its clock.
func NewMemoryNotesWithClock(now func() time.Time) *MemoryNotes {
	return &MemoryNotes{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// Load returns a copy of the attempt's notes.
func (m *MemoryNotes) Load(_ context.Context, attemptID string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[attemptID]
	if !ok {
		return map[string]string{}, nil
	}
	if !m.now().Before(entry.retainUntil) {
		delete(m.entries, attemptID)
		return map[string]string{}, nil
	}
	return copyNotes(entry.notes), nil
}

// Save replaces the attempt's notes.
func (m *MemoryNotes) Save(_ context.Context, attemptID string, notes map[string]string, retainUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[attemptID] = memoryEntry{notes: copyNotes(notes), retainUntil: retainUntil}
	return nil
}

// Delete removes the attempt's notes.
func (m *MemoryNotes) Delete(_ context.Context, attemptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, attemptID)
	return nil
}

// Len returns the number of attempts with notes, including unswept expired ones.
func (m *MemoryNotes) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
