package instrument

import (
	"context"
	"sync"
	"time"
)

// Recorder observes every statement the store executes. The store
// calls it synchronously, so implementations must be cheap and
// goroutine-safe.
type Recorder interface {
	Record(ctx context.Context, sql string, elapsed time.Duration)
}

// Noop discards all recordings. Used when instrumentation is disabled.
type Noop struct{}

func (Noop) Record(ctx context.Context, sql string, elapsed time.Duration) {}

// Entry is one recorded statement.
type Entry struct {
	SQL     string
	Elapsed time.Duration
}

// Memory keeps recorded statements in order. Tests use it to assert on
// query counts (e.g. the one-extra-query prefetch guarantee); it is
// also handy as a debug query log.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(ctx context.Context, sql string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{SQL: sql, Elapsed: elapsed})
}

// Entries returns a copy of the recorded statements.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Count returns the number of statements recorded so far.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Reset discards all recorded statements.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}
