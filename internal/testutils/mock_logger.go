package testutils

import (
	"sync"

	"CryptoTradeCore/internal/logger"
)

type logEntry struct {
	level  string
	msg    string
	fields []logger.Field
}

// MockLogger implements logger.Logger and keeps entries in memory.
type MockLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	fields  []logger.Field
}

// NewMockLogger returns a logger that records everything.
func NewMockLogger() *MockLogger {
	return &MockLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *MockLogger) record(level, msg string, fields ...logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := append(append([]logger.Field(nil), l.fields...), fields...)
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, fields: all})
}

func (l *MockLogger) Debug(msg string, fields ...logger.Field) { l.record("debug", msg, fields...) }
func (l *MockLogger) Info(msg string, fields ...logger.Field)  { l.record("info", msg, fields...) }
func (l *MockLogger) Warn(msg string, fields ...logger.Field)  { l.record("warn", msg, fields...) }
func (l *MockLogger) Error(msg string, fields ...logger.Field) { l.record("error", msg, fields...) }

func (l *MockLogger) With(fields ...logger.Field) logger.Logger {
	return &MockLogger{mu: l.mu, entries: l.entries, fields: append(append([]logger.Field(nil), l.fields...), fields...)}
}

// LastMessage returns the message of the most recent entry.
func (l *MockLogger) LastMessage() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(*l.entries) == 0 {
		return ""
	}
	return (*l.entries)[len(*l.entries)-1].msg
}

// Count returns how many entries were logged at level.
func (l *MockLogger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range *l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}
