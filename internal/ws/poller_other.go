//go:build !linux

package ws

import (
	"bufio"
	"net"
	"sync"
)

// Poller is the portable fallback for platforms without epoll. Each
// connection gets a goroutine that peeks for data and reports readiness,
// then waits for Rearm before peeking again.
type Poller struct {
	mu      sync.Mutex
	watched map[net.Conn]*watch
	ready   chan net.Conn
	done    chan struct{}
	once    sync.Once
}

type watch struct {
	rearm chan struct{}
	stop  chan struct{}
}

// peekConn reads through a buffer so the watcher can wait for data without
// consuming any of it.
type peekConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *peekConn) Read(b []byte) (int, error) { return c.r.Read(b) }

// NewPoller creates a fallback poller.
func NewPoller() (*Poller, error) {
	return &Poller{
		watched: make(map[net.Conn]*watch),
		ready:   make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add starts watching conn. The returned conn buffers reads and must be used
// for all further I/O.
func (p *Poller) Add(conn net.Conn) (net.Conn, error) {
	pc := &peekConn{Conn: conn, r: bufio.NewReader(conn)}
	w := &watch{rearm: make(chan struct{}, 1), stop: make(chan struct{})}

	p.mu.Lock()
	p.watched[pc] = w
	p.mu.Unlock()

	go p.monitor(pc, w)
	return pc, nil
}

func (p *Poller) monitor(pc *peekConn, w *watch) {
	for {
		// A read error is reported as readiness too, so the server's read
		// path sees the closure.
		_, err := pc.r.Peek(1)

		select {
		case p.ready <- pc:
		case <-w.stop:
			return
		case <-p.done:
			return
		}
		if err != nil {
			return
		}

		select {
		case <-w.rearm:
		case <-w.stop:
			return
		case <-p.done:
			return
		}
	}
}

// Remove stops watching conn.
func (p *Poller) Remove(conn net.Conn) error {
	p.mu.Lock()
	w, ok := p.watched[conn]
	delete(p.watched, conn)
	p.mu.Unlock()

	if ok {
		close(w.stop)
	}
	return nil
}

// Rearm lets the watcher for conn report readiness again.
func (p *Poller) Rearm(conn net.Conn) {
	p.mu.Lock()
	w, ok := p.watched[conn]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.rearm <- struct{}{}:
	default:
	}
}

// Wait blocks until at least one connection is ready and drains any others
// that are ready too.
func (p *Poller) Wait() ([]net.Conn, error) {
	var first net.Conn
	select {
	case first = <-p.ready:
	case <-p.done:
		return nil, net.ErrClosed
	}

	ready := []net.Conn{first}
	for {
		select {
		case conn := <-p.ready:
			ready = append(ready, conn)
		default:
			return ready, nil
		}
	}
}

// Close stops every watcher.
func (p *Poller) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
