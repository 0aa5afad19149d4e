package events

import "time"

// EventType enumerates credential lifecycle events.
type EventType string

const (
	SessionRegistered EventType = "session.registered"
	TanIssued         EventType = "tan.issued"
	TeleTanIssued     EventType = "teletan.issued"
	TanRedeemed       EventType = "tan.redeemed"
)

// Event carries lifecycle metadata. Payload values are digests or enum
// values only, never raw secrets.
type Event struct {
	Type       EventType
	OccurredAt time.Time
	Payload    map[string]string
}

// New builds an event stamped with the current time.
func New(eventType EventType, payload map[string]string) Event {
	return Event{Type: eventType, OccurredAt: time.Now(), Payload: payload}
}
