// Package logging provides structured audit logging for SMS challenges.
// It defines a Logger interface and implementations for JSON Lines output,
// CloudWatch Logs forwarding and no-op logging.
//
// Entries never carry a code: phones are masked and user input is sanitized
// before it reaches an entry.
package logging

import (
	"encoding/json"
	"io"
	"sync"
)

// Logger defines the interface for logging challenge issuance and code verification.
type Logger interface {
	// LogChallenge logs a challenge issuance entry.
	LogChallenge(entry ChallengeLogEntry)

	// LogVerification logs a code verification entry.
	LogVerification(entry VerificationLogEntry)
}

// JSONLogger implements Logger with JSON Lines output.
// Each entry is written as a single line of JSON suitable for log aggregation.
type JSONLogger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewJSONLogger creates a new JSONLogger that writes to the given writer.
func NewJSONLogger(w io.Writer) *JSONLogger {
	return &JSONLogger{writer: w}
}

// LogChallenge writes the entry as a single line of JSON.
func (l *JSONLogger) LogChallenge(entry ChallengeLogEntry) {
	l.writeLine(entry)
}

// LogVerification writes the entry as a single line of JSON.
func (l *JSONLogger) LogVerification(entry VerificationLogEntry) {
	l.writeLine(entry)
}

func (l *JSONLogger) writeLine(entry any) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Write(append(data, '\n'))
}

// NopLogger implements Logger but discards all entries.
// Useful for testing or when logging is disabled.
type NopLogger struct{}

// NewNopLogger creates a new NopLogger that discards all entries.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// LogChallenge discards the entry.
func (l *NopLogger) LogChallenge(entry ChallengeLogEntry) {}

// LogVerification discards the entry.
func (l *NopLogger) LogVerification(entry VerificationLogEntry) {}

// MultiLogger fans entries out to several loggers.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger. Nil loggers are filtered out.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	filtered := make([]Logger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			filtered = append(filtered, l)
		}
	}
	return &MultiLogger{loggers: filtered}
}

// LogChallenge forwards the entry to every logger.
func (m *MultiLogger) LogChallenge(entry ChallengeLogEntry) {
	for _, l := range m.loggers {
		l.LogChallenge(entry)
	}
}

// LogVerification forwards the entry to every logger.
func (m *MultiLogger) LogVerification(entry VerificationLogEntry) {
	for _, l := range m.loggers {
		l.LogVerification(entry)
	}
}
