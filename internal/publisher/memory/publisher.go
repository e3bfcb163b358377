// Package memory records run notifications in process memory. It is the
// publisher used when no Pub/Sub topic is configured.
package memory

import (
	"context"
	"strconv"
	"sync"
)

// Event is one recorded notification.
type Event struct {
	Name    string
	Payload any
}

// Publisher keeps every published event.
type Publisher struct {
	mu     sync.RWMutex
	events []Event
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns its sequence id.
func (p *Publisher) Publish(_ context.Context, event string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Name: event, Payload: payload})
	return "memory-" + strconv.Itoa(len(p.events)), nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Event(nil), p.events...)
}
