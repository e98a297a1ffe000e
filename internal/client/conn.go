package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/orbit/chat-app/internal/protocol"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("client: connection closed")

// Conn is a client WebSocket connection to the chat server. Writes are
// goroutine-safe; reads happen in Run.
type Conn struct {
	conn      net.Conn
	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once

	sessionMu sync.RWMutex
	sessionID string
}

// Dial connects to the server's WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return &Conn{conn: conn, done: make(chan struct{})}, nil
}

// Send encodes payload as a client message of msgType and writes it.
func (c *Conn) Send(msgType string, payload interface{}) error {
	data, err := protocol.NewClientMessage(msgType, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// Run reads server frames until the connection closes, passing each decoded
// message to handle. session_created is recorded before it is passed on.
// Undecodable frames are logged and skipped. Run returns nil after Close.
func (c *Conn) Run(handle func(msgType string, msg interface{})) error {
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			return fmt.Errorf("client: read: %w", err)
		}

		msgType, msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			log.Printf("[client] %v", err)
			continue
		}
		if sc, ok := msg.(protocol.SessionCreatedMsg); ok {
			c.sessionMu.Lock()
			c.sessionID = sc.SessionID
			c.sessionMu.Unlock()
		}
		handle(msgType, msg)
	}
}

// SessionID returns the id the server assigned, or "" before session_created.
func (c *Conn) SessionID() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.sessionID
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
