// Package state persists what the refresh loop must remember across restarts:
// the time of the last successful EPG export and a short cycle history.
package state

import (
	"context"
	"sync"
	"time"
)

// Cycle is the outcome of one export run.
type Cycle struct {
	ID         string
	Kind       string // "epg" or "channels"
	Started    time.Time
	Finished   time.Time
	OK         bool
	Error      string
	Channels   int
	Programmes int
}

// Store is the persisted state used by the refresh scheduler and status server.
type Store interface {
	// LastUpdate returns the zero time when no export has succeeded yet.
	LastUpdate(ctx context.Context) (time.Time, error)
	SetLastUpdate(ctx context.Context, t time.Time) error
	RecordCycle(ctx context.Context, c Cycle) error
	// RecentCycles returns up to n cycles, newest first.
	RecentCycles(ctx context.Context, n int) ([]Cycle, error)
	Close() error
}

// Memory is a Store that lives only as long as the process.
type Memory struct {
	mu     sync.Mutex
	last   time.Time
	cycles []Cycle
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) LastUpdate(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func (m *Memory) SetLastUpdate(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	m.last = t
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecordCycle(ctx context.Context, c Cycle) error {
	m.mu.Lock()
	m.cycles = append(m.cycles, c)
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecentCycles(ctx context.Context, n int) ([]Cycle, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Cycle, 0, min(n, len(m.cycles)))
	for i := len(m.cycles) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.cycles[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
