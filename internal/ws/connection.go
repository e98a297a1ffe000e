package ws

import (
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var (
	// ErrConnectionClosed is returned when queueing to a closed connection.
	ErrConnectionClosed = errors.New("ws: connection closed")
	// ErrSendQueueFull is returned when a peer is not reading fast enough.
	ErrSendQueueFull = errors.New("ws: send queue full")
)

const defaultSendQueueSize = 256

// Connection is one upgraded client socket. It carries no matchmaking state;
// rooms and waiting entries are keyed by ID elsewhere.
type Connection struct {
	ID        string   // connection id (UUID), also the session id sent to the client
	Conn      net.Conn // as returned by Poller.Add
	CreatedAt time.Time

	lastSeen   atomic.Int64 // unix nanos of the last frame read
	writeMu    sync.Mutex   // serializes outbound frames
	processing atomic.Bool  // set while a worker is reading this connection

	// Outbound text frames. The flusher goroutine runs only while the queue
	// is non-empty.
	outMu        sync.Mutex
	outbox       [][]byte
	flushing     bool
	closed       bool
	queueSize    int
	writeTimeout time.Duration
	onWriteError func(error) // called once, from the flusher or a new goroutine
}

func newConnection(id string, conn net.Conn, now time.Time) *Connection {
	c := &Connection{ID: id, Conn: conn, CreatedAt: now, queueSize: defaultSendQueueSize}
	c.lastSeen.Store(now.UnixNano())
	return c
}

// Enqueue queues a text frame and returns without waiting for the socket.
// Frames are written in the order they were queued. A peer that lets the
// queue fill up is dropped.
func (c *Connection) Enqueue(data []byte) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	if len(c.outbox) >= c.queueSize {
		c.failLocked()
		go c.reportWriteError(ErrSendQueueFull)
		return ErrSendQueueFull
	}
	c.outbox = append(c.outbox, data)
	if !c.flushing {
		c.flushing = true
		go c.flush()
	}
	return nil
}

func (c *Connection) flush() {
	for {
		c.outMu.Lock()
		if c.closed || len(c.outbox) == 0 {
			c.flushing = false
			c.outMu.Unlock()
			return
		}
		data := c.outbox[0]
		c.outbox[0] = nil
		c.outbox = c.outbox[1:]
		c.outMu.Unlock()

		if err := c.writeFrame(data); err != nil {
			c.outMu.Lock()
			if c.closed {
				c.flushing = false
				c.outMu.Unlock()
				return
			}
			c.failLocked()
			c.flushing = false
			c.outMu.Unlock()
			c.reportWriteError(err)
			return
		}
	}
}

func (c *Connection) writeFrame(data []byte) error {
	if c.writeTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer func() { _ = c.Conn.SetWriteDeadline(time.Time{}) }()
	}
	return c.WriteMessage(data)
}

// failLocked stops further queueing and drops pending frames.
func (c *Connection) failLocked() {
	c.closed = true
	c.outbox = nil
}

func (c *Connection) reportWriteError(err error) {
	log.Printf("ws: write failed conn=%s: %v", c.ID, err)
	if c.onWriteError != nil {
		c.onWriteError(err)
		return
	}
	_ = c.Conn.Close()
}

// Pending returns the number of queued frames not yet written.
func (c *Connection) Pending() int {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return len(c.outbox)
}

// Touch records activity on the connection.
func (c *Connection) Touch(t time.Time) {
	c.lastSeen.Store(t.UnixNano())
}

// LastSeen returns when a frame was last read from the connection.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// WriteMessage sends a text frame.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close drops any queued frames and closes the underlying network
// connection.
func (c *Connection) Close() error {
	c.outMu.Lock()
	c.failLocked()
	c.outMu.Unlock()
	return c.Conn.Close()
}

// ConnectionManager indexes live connections by id and by the net.Conn the
// poller reports.
type ConnectionManager struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	byConn map[net.Conn]*Connection
}

// NewConnectionManager creates an empty registry.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID:   make(map[string]*Connection),
		byConn: make(map[net.Conn]*Connection),
	}
}

// Add registers c.
func (cm *ConnectionManager) Add(c *Connection) {
	cm.mu.Lock()
	cm.byID[c.ID] = c
	cm.byConn[c.Conn] = c
	cm.mu.Unlock()
}

// Remove unregisters the connection and closes it. It reports false if the
// connection was already gone, so concurrent removals clean up once.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	c, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byConn, c.Conn)
	}
	cm.mu.Unlock()

	if ok {
		_ = c.Close()
	}
	return ok
}

// Get returns the connection with the given id, or nil.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byID[id]
}

// GetByConn returns the connection wrapping conn, or nil.
func (cm *ConnectionManager) GetByConn(conn net.Conn) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byConn[conn]
}

// Count returns the number of live connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byID)
}

// All returns a snapshot of the live connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Connection, 0, len(cm.byID))
	for _, c := range cm.byID {
		out = append(out, c)
	}
	return out
}
