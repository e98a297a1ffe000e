// Package messaging publishes room lifecycle and report events on NATS for
// out-of-process consumers (analytics, moderation tooling). Matchmaking
// never depends on it: pool and room state stay in the server's memory.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/orbit/chat-app/internal/chat"
)

// Subjects published by the server.
const (
	SubjectRoomOpened = "orbit.room.opened"
	SubjectRoomClosed = "orbit.room.closed"
	SubjectReport     = "orbit.report"
)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string
	Name          string        // client name shown by the NATS server
	ReconnectWait time.Duration // pause between reconnect attempts
	MaxReconnects int           // -1 retries forever
}

// DefaultNATSConfig returns defaults for a local NATS server.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "orbit-wsserver",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Connect dials NATS with reconnect logging.
func Connect(config NATSConfig) (*nats.Conn, error) {
	nc, err := nats.Connect(config.URL,
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
				return
			}
			log.Printf("[nats] disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("messaging: nats connect %s: %w", config.URL, err)
	}
	log.Printf("[nats] connected to %s", nc.ConnectedUrl())
	return nc, nil
}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// RoomEvent is the payload of the room subjects.
type RoomEvent struct {
	RoomID          string    `json:"room_id"`
	Participants    [2]string `json:"participants"`
	CommonInterests []string  `json:"common_interests"`
	Initiator       string    `json:"initiator,omitempty"` // closing side, for room.closed
	OpenedAt        time.Time `json:"opened_at"`
	At              time.Time `json:"at"`
}

// ReportEvent is the payload of SubjectReport.
type ReportEvent struct {
	RoomID     string    `json:"room_id"`
	ReporterID string    `json:"reporter_id"`
	ReportedID string    `json:"reported_id"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// Publisher turns room lifecycle callbacks into NATS messages. It satisfies
// matching.Observer. Publish failures are logged and dropped.
type Publisher struct {
	conn Conn
	now  func() time.Time
}

// NewPublisher creates a publisher over conn.
func NewPublisher(conn Conn) *Publisher {
	return &Publisher{conn: conn, now: time.Now}
}

// RoomOpened publishes SubjectRoomOpened.
func (p *Publisher) RoomOpened(room *chat.Room) {
	p.publish(SubjectRoomOpened, p.roomEvent(room, ""))
}

// RoomClosed publishes SubjectRoomClosed.
func (p *Publisher) RoomClosed(room *chat.Room, initiator string) {
	p.publish(SubjectRoomClosed, p.roomEvent(room, initiator))
}

// PublishReport publishes SubjectReport.
func (p *Publisher) PublishReport(ev ReportEvent) error {
	if ev.At.IsZero() {
		ev.At = p.now()
	}
	return p.publish(SubjectReport, ev)
}

func (p *Publisher) roomEvent(room *chat.Room, initiator string) RoomEvent {
	return RoomEvent{
		RoomID:          room.ID,
		Participants:    room.Participants,
		CommonInterests: room.CommonInterests,
		Initiator:       initiator,
		OpenedAt:        room.CreatedAt,
		At:              p.now(),
	}
}

func (p *Publisher) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("messaging: marshal %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s: %v", subject, err)
		return fmt.Errorf("messaging: publish %s: %w", subject, err)
	}
	return nil
}
