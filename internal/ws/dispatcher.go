package ws

import (
	"errors"
	"log"
	"time"

	"github.com/orbit/chat-app/internal/protocol"
)

// MessageHandler handles one decoded client message. msg is the concrete
// struct from protocol.ParseClientMessage, e.g. protocol.SearchMsg.
type MessageHandler func(c *Connection, msgType string, msg interface{})

// MessageDispatcher routes client frames to handlers by message type. Ping
// is answered here; malformed frames and unknown types get an error reply
// and never reach a handler.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
}

// NewMessageDispatcher creates an empty dispatcher.
func NewMessageDispatcher() *MessageDispatcher {
	return &MessageDispatcher{handlers: make(map[string]MessageHandler)}
}

// Register sets the handler for msgType, replacing any earlier one.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the Server's onMessage callback.
func (d *MessageDispatcher) Dispatch(c *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("ws: dispatch parse error conn=%s: %v", c.ID, err)
		if errors.Is(err, protocol.ErrUnknownType) {
			SendError(c, protocol.CodeUnsupportedType, "unsupported message type")
			return
		}
		SendError(c, protocol.CodeParseError, "invalid message format")
		return
	}

	if msgType == protocol.TypePing {
		c.Touch(time.Now())
		Send(c, protocol.TypePong, protocol.PongMsg{})
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Printf("ws: unsupported message type=%q conn=%s", msgType, c.ID)
		SendError(c, protocol.CodeUnsupportedType, "unsupported message type")
		return
	}
	handler(c, msgType, msg)
}

// Send encodes a server message and queues it on c, logging failures.
func Send(c *Connection, msgType string, payload interface{}) error {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("ws: failed to build %s conn=%s: %v", msgType, c.ID, err)
		return err
	}
	if err := c.Enqueue(data); err != nil {
		log.Printf("ws: failed to send %s conn=%s: %v", msgType, c.ID, err)
		return err
	}
	return nil
}

// SendError writes an error reply to c.
func SendError(c *Connection, code, message string) {
	_ = Send(c, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}
