package domain

import "time"

type EventType string

const (
	EventMessageCreated   EventType = "MESSAGE_CREATED"
	EventMessageReceived  EventType = "MESSAGE_RECEIVED"
	EventMessageSent      EventType = "MESSAGE_SENT"
	EventMessageDelivered EventType = "MESSAGE_DELIVERED"
	EventMessageRead      EventType = "MESSAGE_READ"
	EventMessageFailed    EventType = "MESSAGE_FAILED"
)

// Event is the envelope put on the bus. ConversationID doubles as the
// partition key, so consumers see one conversation in order.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Message        *Message  `json:"message"`
	OccurredAt     time.Time `json:"occurred_at"`
}

var statusEvents = map[Status]EventType{
	StatusSent:      EventMessageSent,
	StatusDelivered: EventMessageDelivered,
	StatusRead:      EventMessageRead,
	StatusFailed:    EventMessageFailed,
}

// EventForStatus maps a newly reached status to its lifecycle event.
func EventForStatus(s Status) (EventType, bool) {
	et, ok := statusEvents[s]
	return et, ok
}
