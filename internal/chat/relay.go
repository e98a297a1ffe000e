package chat

import (
	"fmt"
	"log"
	"time"

	"github.com/orbit/chat-app/internal/metrics"
)

// Relay forwards chat messages and typing signals between the two
// participants of a room. It knows nothing about how the room was formed.
type Relay struct {
	rooms *Manager
	out   Deliverer
	now   func() time.Time
}

// NewRelay creates a relay over the given room table.
func NewRelay(rooms *Manager, out Deliverer) *Relay {
	return &Relay{rooms: rooms, out: out, now: time.Now}
}

// Message delivers text to the sender's partner only. The sender must be a
// participant of the live room roomID.
func (r *Relay) Message(roomID, senderID, text string) error {
	if err := ValidateMessage(text); err != nil {
		return err
	}

	partner, err := r.partnerOf(roomID, senderID)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return err
	}

	start := r.now()
	err = r.out.Deliver(partner, Event{
		Type:   EventMessage,
		RoomID: roomID,
		From:   senderID,
		Text:   text,
		Ts:     start.Unix(),
	})
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		log.Printf("[relay] drop message room=%s from=%s: %v", roomID, senderID, err)
		return fmt.Errorf("%w: %v", ErrPartnerGone, err)
	}

	metrics.MessagesTotal.WithLabelValues("relayed").Inc()
	metrics.MessageLatency.Observe(time.Since(start).Seconds())
	return nil
}

// Typing forwards a typing or stop-typing signal to the partner. Signals are
// advisory and never buffered.
func (r *Relay) Typing(roomID, senderID string, typing bool) error {
	partner, err := r.partnerOf(roomID, senderID)
	if err != nil {
		return err
	}

	evType := EventStopTyping
	if typing {
		evType = EventTyping
	}
	if err := r.out.Deliver(partner, Event{Type: evType, RoomID: roomID, From: senderID}); err != nil {
		return fmt.Errorf("%w: %v", ErrPartnerGone, err)
	}
	return nil
}

func (r *Relay) partnerOf(roomID, senderID string) (string, error) {
	room := r.rooms.Get(roomID)
	if room == nil || !room.IsParticipant(senderID) {
		return "", ErrNotInRoom
	}
	return room.Partner(senderID), nil
}
