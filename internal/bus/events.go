package bus

import "time"

// DueEvent announces that a session's alarm promoted reminders to its
// notification queue. It is a wake hint for connected clients; the
// notifications themselves are only readable through the poll operation.
type DueEvent struct {
	Session   string
	Count     int
	Timestamp time.Time
}

type EventBus struct {
	Due chan DueEvent
}

func NewEventBus(bufSize int) *EventBus {
	return &EventBus{Due: make(chan DueEvent, bufSize)}
}

// Publish never blocks; a hint dropped under backpressure is recovered by
// the client's next poll.
func (b *EventBus) Publish(evt DueEvent) {
	select {
	case b.Due <- evt:
	default:
	}
}
