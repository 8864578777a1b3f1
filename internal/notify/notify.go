// Package notify delivers agent lifecycle events to an external channel.
//
// Delivery is strictly best-effort: Notify reports success as a bool and
// never errors, because a dead webhook must not be able to wedge
// recovery. Operators who need a durable trail have the journal.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a notification.
type EventType string

const (
	// EventAgentStalled fires when the watchdog declares an agent
	// stalled and recovery begins.
	EventAgentStalled EventType = "agent_stalled"
	// EventAgentCrashed fires when an agent's session disappeared out
	// from under it.
	EventAgentCrashed EventType = "agent_crashed"
)

// Event is one notification payload.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"eventType"`
	AgentName string    `json:"agentName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds a payload with a fresh id and timestamp.
func NewEvent(t EventType, agentName, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		AgentName: agentName,
		Message:   message,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
}

// Notifier sends events somewhere an operator will see them.
type Notifier interface {
	// Notify delivers the event, returning whether delivery succeeded.
	// Failure is not an error condition for the caller.
	Notify(ctx context.Context, event Event) bool
}

// Discard is the Notifier used when no channel is configured. It reports
// every event as undelivered.
type Discard struct{}

func (Discard) Notify(context.Context, Event) bool { return false }
