// Package events publishes notifications about rows created, updated or
// destroyed through REST resources.
package events

import (
	"context"
	"sync"
	"time"
)

type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDestroy Action = "destroy"
)

// Event describes one successful mutation.
type Event struct {
	ID       string         `json:"id"`
	Resource string         `json:"resource"`
	Table    string         `json:"table"`
	Action   Action         `json:"action"`
	Object   map[string]any `json:"object,omitempty"`
	Time     time.Time      `json:"time"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Memory keeps published events in memory.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Events returns the events published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
