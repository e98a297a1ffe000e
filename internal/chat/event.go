package chat

// Event types delivered to the partner side of a room.
const (
	EventMessage     = "message"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
	EventPartnerLeft = "partner_left"
)

// Event is a relay payload addressed to one participant of a room.
type Event struct {
	Type   string `json:"type"`           // see Event* constants
	RoomID string `json:"room_id"`        // room the event belongs to
	From   string `json:"from"`           // sender's connection ID
	Text   string `json:"text,omitempty"` // for message events
	Ts     int64  `json:"ts,omitempty"`   // unix timestamp for messages
}

// Deliverer writes an event to a single connection. Implementations return
// an error when the connection is gone; the relay treats that as a drop.
type Deliverer interface {
	Deliver(connID string, ev Event) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(connID string, ev Event) error

// Deliver calls f(connID, ev).
func (f DelivererFunc) Deliver(connID string, ev Event) error {
	return f(connID, ev)
}
