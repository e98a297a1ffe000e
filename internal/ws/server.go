// Package ws is the server transport: it upgrades HTTP requests to
// WebSocket connections, watches them with a poller and hands every text
// frame to a bounded pool of workers. It also serves the health, stats and
// metrics endpoints.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/orbit/chat-app/internal/metrics"
	"github.com/orbit/chat-app/internal/protocol"
)

// ErrUnknownConnection is returned when writing to a connection that is gone.
var ErrUnknownConnection = errors.New("ws: unknown connection")

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // e.g. ":8080"
	WorkerPoolSize int           // max concurrent frame readers
	MaxConnections int           // upgrades beyond this are refused
	ReadTimeout    time.Duration // per-frame read deadline
	WriteTimeout   time.Duration // per-frame write deadline
	SendQueueSize  int           // queued outbound frames before a slow peer is dropped
	Heartbeat      HeartbeatConfig
	GinMode        string // gin.ReleaseMode, gin.DebugMode or gin.TestMode
}

// DefaultServerConfig returns production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendQueueSize:  defaultSendQueueSize,
		Heartbeat:      DefaultHeartbeatConfig(),
		GinMode:        gin.ReleaseMode,
	}
}

// Server owns the poller, the connection registry and the HTTP listener.
type Server struct {
	config     ServerConfig
	mu         sync.Mutex // guards poller and httpServer, set by Serve
	poller     *Poller
	conns      *ConnectionManager
	workerPool chan struct{}
	router     *gin.Engine
	httpServer *http.Server
	done       chan struct{}
	startedAt  time.Time

	onMessage    func(c *Connection, data []byte)
	onDisconnect func(connID string)
	stats        func() interface{}
}

// NewServer creates a server that passes every complete text frame to
// onMessage from a worker goroutine.
func NewServer(config ServerConfig, onMessage func(c *Connection, data []byte)) *Server {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 1
	}
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}

	s := &Server{
		config:     config,
		conns:      NewConnectionManager(),
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		done:       make(chan struct{}),
		startedAt:  time.Now(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ws", s.handleUpgrade)
	r.GET("/health", s.handleHealth)
	r.GET("/stats", s.handleStats)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

// SetOnDisconnect registers the callback run once for every connection that
// goes away, whatever the cause.
func (s *Server) SetOnDisconnect(fn func(connID string)) {
	s.onDisconnect = fn
}

// SetStats registers the source of the /stats payload.
func (s *Server) SetStats(fn func() interface{}) {
	s.stats = fn
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on config.ListenAddr and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("ws: listen %s: %w", s.config.ListenAddr, err)
	}
	return s.Serve(ln)
}

// Serve runs the poller event loop and the heartbeat, and serves HTTP on ln.
// It blocks until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	poller, err := NewPoller()
	if err != nil {
		return fmt.Errorf("ws: failed to create poller: %w", err)
	}
	httpServer := &http.Server{Handler: s.router}
	s.mu.Lock()
	s.poller = poller
	s.httpServer = httpServer
	s.mu.Unlock()

	go s.eventLoop()
	go s.runHeartbeat(s.config.Heartbeat)

	log.Printf("ws: server listening on %s (workers=%d, max_conns=%d)",
		ln.Addr(), s.config.WorkerPoolSize, s.config.MaxConnections)

	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

func (s *Server) handleUpgrade(ctx *gin.Context) {
	if s.conns.Count() >= s.config.MaxConnections {
		ctx.String(http.StatusServiceUnavailable, "too many connections")
		return
	}
	poller := s.getPoller()
	if poller == nil {
		ctx.String(http.StatusServiceUnavailable, "server not started")
		return
	}

	raw, _, _, err := ws.UpgradeHTTP(ctx.Request, ctx.Writer)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	conn, err := poller.Add(raw)
	if err != nil {
		log.Printf("ws: poller add failed: %v", err)
		_ = raw.Close()
		return
	}

	c := newConnection(uuid.New().String(), conn, time.Now())
	if s.config.SendQueueSize > 0 {
		c.queueSize = s.config.SendQueueSize
	}
	c.writeTimeout = s.config.WriteTimeout
	c.onWriteError = func(error) { s.RemoveConnection(c) }

	// session_created is queued before the connection is visible to workers,
	// so it is always the first frame.
	hello, err := protocol.NewServerMessage(protocol.TypeSessionCreated, protocol.SessionCreatedMsg{SessionID: c.ID})
	if err == nil {
		err = c.Enqueue(hello)
	}
	if err != nil {
		log.Printf("ws: failed to send session_created conn=%s: %v", c.ID, err)
	}

	s.conns.Add(c)
	metrics.ConnectionsTotal.Inc()

	log.Printf("ws: new connection conn=%s (total=%d)", c.ID, s.conns.Count())
}

func (s *Server) handleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.conns.Count(),
		"uptime":      time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(ctx *gin.Context) {
	if s.stats == nil {
		ctx.JSON(http.StatusOK, gin.H{"connections": s.conns.Count()})
		return
	}
	ctx.JSON(http.StatusOK, s.stats())
}

func (s *Server) getPoller() *Poller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poller
}

// eventLoop waits for readable connections and reads each on a worker.
func (s *Server) eventLoop() {
	poller := s.getPoller()
	for {
		ready, err := poller.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			log.Printf("ws: poller wait error: %v", err)
			continue
		}

		for _, conn := range ready {
			select {
			case s.workerPool <- struct{}{}:
			case <-s.done:
				return
			}
			go func(conn net.Conn) {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
			}(conn)
		}
	}
}

// handleConn reads one frame from a ready connection. Control frames are
// answered in place; a read failure or close frame removes the connection.
func (s *Server) handleConn(conn net.Conn) {
	c := s.conns.GetByConn(conn)
	if c == nil {
		return
	}
	if !c.processing.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		c.processing.Store(false)
		s.getPoller().Rearm(conn)
	}()

	if s.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(conn, ws.StateServerSide)
	if err != nil {
		// A timeout here is a spurious wakeup; the heartbeat handles dead peers.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}
	data := make([]byte, header.Length)
	if _, err := io.ReadFull(reader, data); err != nil {
		s.RemoveConnection(c)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	c.Touch(time.Now())

	switch header.OpCode {
	case ws.OpClose:
		s.RemoveConnection(c)
		return
	case ws.OpPing:
		c.writeMu.Lock()
		_ = ws.WriteFrame(c.Conn, ws.NewPongFrame(data))
		c.writeMu.Unlock()
		return
	case ws.OpPong:
		return
	}

	if len(data) == 0 || s.onMessage == nil {
		return
	}
	s.onMessage(c, data)
}

// RemoveConnection unregisters and closes c. Only the first call for a
// connection runs the disconnect callback.
func (s *Server) RemoveConnection(c *Connection) {
	if poller := s.getPoller(); poller != nil {
		_ = poller.Remove(c.Conn)
	}
	if !s.conns.Remove(c.ID) {
		return
	}
	metrics.ConnectionsTotal.Dec()

	if s.onDisconnect != nil {
		s.onDisconnect(c.ID)
	}
	log.Printf("ws: connection closed conn=%s (total=%d)", c.ID, s.conns.Count())
}

// SendMessage queues a text frame for the connection with the given id. It
// never blocks on the socket, so it is safe to call while holding locks.
func (s *Server) SendMessage(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	return c.Enqueue(data)
}

// Alive reports whether connID is still registered.
func (s *Server) Alive(connID string) bool {
	return s.conns.Get(connID) != nil
}

// Connections exposes the connection registry.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops the listener, the event loop and the heartbeat, and closes
// every connection. The disconnect callback runs for each of them.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("ws: shutting down server...")
	close(s.done)

	s.mu.Lock()
	httpServer, poller := s.httpServer, s.poller
	s.mu.Unlock()

	var err error
	if httpServer != nil {
		if err = httpServer.Shutdown(ctx); err != nil {
			log.Printf("ws: http shutdown error: %v", err)
		}
	}

	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}
	if poller != nil {
		_ = poller.Close()
	}

	log.Printf("ws: server stopped, all connections closed")
	return err
}
