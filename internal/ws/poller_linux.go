//go:build linux

package ws

import (
	"errors"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Poller multiplexes read readiness for every upgraded connection over one
// epoll instance, so idle connections cost no goroutine.
type Poller struct {
	fd     int
	mu     sync.RWMutex
	byFd   map[int]net.Conn
	events []unix.EpollEvent
}

// NewPoller creates the epoll instance.
func NewPoller() (*Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{
		fd:     fd,
		byFd:   make(map[int]net.Conn),
		events: make([]unix.EpollEvent, 128),
	}, nil
}

// Add watches conn for readability and peer hang-up. The returned conn is
// the one Wait will report and must be used for all further I/O; on Linux
// it is conn itself.
func (p *Poller) Add(conn net.Conn) (net.Conn, error) {
	fd := socketFD(conn)
	if fd < 0 {
		return nil, errors.New("ws: connection has no file descriptor")
	}
	ev := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLHUP | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.fd, syscall.EPOLL_CTL_ADD, fd, ev); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.byFd[fd] = conn
	p.mu.Unlock()
	return conn, nil
}

// Remove stops watching conn.
func (p *Poller) Remove(conn net.Conn) error {
	fd := socketFD(conn)

	p.mu.Lock()
	delete(p.byFd, fd)
	p.mu.Unlock()

	if fd < 0 {
		return nil
	}
	return unix.EpollCtl(p.fd, syscall.EPOLL_CTL_DEL, fd, nil)
}

// Rearm is a no-op: epoll is level-triggered, so unread data is reported
// again by the next Wait.
func (p *Poller) Rearm(net.Conn) {}

// Wait blocks until at least one watched connection is readable. An
// interrupted wait returns an empty batch.
func (p *Poller) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(p.fd, p.events, -1)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	ready := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		if conn, ok := p.byFd[int(p.events[i].Fd)]; ok {
			ready = append(ready, conn)
		}
	}
	return ready, nil
}

// Close releases the epoll descriptor.
func (p *Poller) Close() error {
	p.mu.Lock()
	p.byFd = nil
	p.mu.Unlock()
	return unix.Close(p.fd)
}

// socketFD returns the descriptor behind conn without dup'ing it, or -1.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	fd := -1
	_ = raw.Control(func(sfd uintptr) { fd = int(sfd) })
	return fd
}
