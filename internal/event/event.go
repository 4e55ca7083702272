// Package event defines the event vocabulary and the bus that carries
// events from input producers to the controller's single consumer.
package event

import "time"

// Kind identifies the type of an event.
type Kind string

const (
	// TriggerPrimary requests a typed chat message.
	TriggerPrimary Kind = "trigger_primary"
	// TriggerSecondary requests a spoken message.
	TriggerSecondary Kind = "trigger_secondary"
	// CycleNext advances the active persona.
	CycleNext Kind = "cycle_next"
	// CyclePrevious retreats the active persona.
	CyclePrevious Kind = "cycle_previous"
	// ConfigReloaded signals that the watched config file changed.
	ConfigReloaded Kind = "config_reloaded"
	// Shutdown stops the consumer loop.
	Shutdown Kind = "shutdown"
)

// Event is an immutable record handed from a producer to the consumer.
// Producers construct it, the bus owns it until dequeued, and the
// controller owns it for the duration of one dispatch.
type Event struct {
	Kind      Kind
	Payload   map[string]any
	CreatedAt time.Time
}

// New constructs an event stamped with the current time.
func New(kind Kind) Event {
	return Event{Kind: kind, CreatedAt: time.Now()}
}

// NewWithPayload constructs an event carrying producer-supplied data.
func NewWithPayload(kind Kind, payload map[string]any) Event {
	return Event{Kind: kind, Payload: payload, CreatedAt: time.Now()}
}
