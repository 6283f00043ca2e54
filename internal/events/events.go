// Package events publishes domain events about tracked habits and challenges.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Event types.
const (
	TypeHabitTracked       = "habit.tracked"
	TypeChallengeJoined    = "challenge.joined"
	TypeChallengeCompleted = "challenge.completed"
)

// Event is the envelope written to the message bus.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	UserID     string          `json:"user_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an event with a fresh ID and a JSON-encoded payload.
func New(eventType, userID string, occurredAt time.Time, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		OccurredAt: occurredAt.UTC(),
		Payload:    raw,
	}, nil
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }

// RecordingPublisher keeps published events in memory. It is intended for tests
// and local development.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Event
	// Err, when set, is returned from Publish instead of recording.
	Err error
}

// Publish implements Publisher.
func (p *RecordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

// Close implements Publisher.
func (p *RecordingPublisher) Close() error { return nil }

// Events returns a copy of the recorded events.
func (p *RecordingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// EventsOfType returns recorded events with the given type.
func (p *RecordingPublisher) EventsOfType(eventType string) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
