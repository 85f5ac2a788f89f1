package events

import "time"

// Event defines the contract for all events put on the bus.
type Event interface {
	// EventType returns the subject suffix, e.g. "pivot.recorded".
	EventType() string

	// Payload returns the JSON-serializable body.
	Payload() interface{}

	Timestamp() time.Time
}

// BaseEvent is what subscribers receive: the raw JSON body and the subject
// it arrived on.
type BaseEvent struct {
	Type       string
	Data       []byte
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}
