package matching

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/orbit/chat-app/internal/chat"
	"github.com/orbit/chat-app/internal/metrics"
)

// ErrNotWaiting is returned by Escalate when the connection has no pending
// search to widen.
var ErrNotWaiting = errors.New("matching: connection is not waiting")

// Notifier receives the lifecycle notifications produced by the engine.
// Methods are called with the engine lock held, in the order the tables
// change, so they must not block and must not call back into the Engine.
// Delivery failures are the notifier's concern.
type Notifier interface {
	// Waiting tells connID it is in the pool with no partner yet.
	Waiting(connID string)
	// Matched tells connID it has joined room.
	Matched(connID string, room *chat.Room)
	// PartnerLeft tells connID that its partner left room.
	PartnerLeft(connID string, room *chat.Room)
}

// Observer is told about room lifecycle events after they happen. It is
// optional and used for event publishing.
type Observer interface {
	RoomOpened(room *chat.Room)
	RoomClosed(room *chat.Room, initiator string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLiveness sets the function used to check that a connection still
// exists at session-creation time. By default every connection is live.
func WithLiveness(alive func(connID string) bool) Option {
	return func(e *Engine) { e.alive = alive }
}

// WithObserver attaches an Observer for room lifecycle events.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// Stats is a point-in-time view of the engine tables.
type Stats struct {
	Waiting int `json:"waiting"`
	Rooms   int `json:"rooms"`
}

// Engine pairs searching connections. The waiting pool and the room table
// are only mutated under mu, so selecting a waiter and forming its room is a
// single step and no waiter can be paired twice.
type Engine struct {
	mu       sync.Mutex
	pool     *Pool
	rooms    *chat.Manager
	notify   Notifier
	observer Observer
	alive    func(connID string) bool
	now      func() time.Time
}

// NewEngine creates an engine that forms rooms in rooms and reports to
// notify.
func NewEngine(rooms *chat.Manager, notify Notifier, opts ...Option) *Engine {
	e := &Engine{
		pool:   NewPool(),
		rooms:  rooms,
		notify: notify,
		alive:  func(string) bool { return true },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search looks for a partner for connID. It never blocks waiting for one:
// if a compatible waiter exists the room is formed and returned, otherwise
// connID is put in the pool (replacing any earlier entry) and nil is
// returned. A connection that is still in a room leaves it first.
func (e *Engine) Search(connID string, prefs Preferences) (*chat.Room, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	prefs = prefs.Normalize()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.leaveLocked(connID, "")

	return e.matchLocked(Entry{ConnID: connID, Prefs: prefs, JoinedAt: e.now()}, "search"), nil
}

// Escalate widens the pending search of connID to prefs. It only applies
// while connID is in the pool: once it has been matched, or its search was
// cancelled, ErrNotWaiting is returned and nothing changes. The entry keeps
// its original join time.
func (e *Engine) Escalate(connID string, prefs Preferences) (*chat.Room, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	prefs = prefs.Normalize()

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, ok := e.pool.Get(connID)
	if !ok {
		metrics.EscalationsTotal.WithLabelValues("ignored").Inc()
		log.Printf("[matcher] %s escalation ignored, not waiting", connID)
		return nil, ErrNotWaiting
	}
	e.pool.Remove(connID)

	room := e.matchLocked(Entry{ConnID: connID, Prefs: prefs, JoinedAt: prev.JoinedAt}, "escalate")
	if room != nil {
		metrics.EscalationsTotal.WithLabelValues("matched").Inc()
	} else {
		metrics.EscalationsTotal.WithLabelValues("waiting").Inc()
	}
	return room, nil
}

// matchLocked pairs self with the first compatible waiter, or puts self in
// the pool. self must not be in the pool or in a room.
func (e *Engine) matchLocked(self Entry, via string) *chat.Room {
	partner, ok := e.pool.Take(self.Prefs, self.ConnID)
	if !ok {
		e.enqueueLocked(self)
		metrics.MatchesTotal.WithLabelValues("waiting").Inc()
		log.Printf("[matcher] %s waiting (%s strategy=%s interests=%v pool=%d)",
			self.ConnID, via, self.Prefs.Strategy, self.Prefs.Interests, e.pool.Len())
		return nil
	}
	return e.createSessionLocked(self, partner)
}

// createSessionLocked forms a room for searcher and the waiter it selected.
// If either connection has gone away in the meantime, the survivor goes
// back into the pool and is told it is waiting again.
func (e *Engine) createSessionLocked(searcher, waiter Entry) *chat.Room {
	e.pool.Remove(searcher.ConnID)
	e.pool.Remove(waiter.ConnID)

	searcherAlive := e.alive(searcher.ConnID)
	waiterAlive := e.alive(waiter.ConnID)
	if !searcherAlive || !waiterAlive {
		metrics.MatchesTotal.WithLabelValues("stale_partner").Inc()
		if searcherAlive {
			log.Printf("[matcher] partner %s gone, re-queueing %s", waiter.ConnID, searcher.ConnID)
			e.enqueueLocked(searcher)
		}
		if waiterAlive {
			log.Printf("[matcher] partner %s gone, re-queueing %s", searcher.ConnID, waiter.ConnID)
			e.enqueueLocked(waiter)
		}
		return nil
	}

	common := SharedInterests(searcher.Prefs.Interests, waiter.Prefs.Interests)
	room, err := e.rooms.Create(waiter.ConnID, searcher.ConnID, common)
	if err != nil {
		log.Printf("[matcher] create room %s/%s: %v", waiter.ConnID, searcher.ConnID, err)
		e.enqueueLocked(searcher)
		return nil
	}

	metrics.MatchesTotal.WithLabelValues("matched").Inc()
	metrics.MatchWait.Observe(e.now().Sub(waiter.JoinedAt).Seconds())
	metrics.ActiveRooms.Set(float64(e.rooms.Count()))
	metrics.WaitingPoolSize.Set(float64(e.pool.Len()))

	e.notify.Matched(waiter.ConnID, room)
	e.notify.Matched(searcher.ConnID, room)
	if e.observer != nil {
		e.observer.RoomOpened(room)
	}

	log.Printf("[matcher] room=%s a=%s b=%s shared=%v", room.ID, waiter.ConnID, searcher.ConnID, common)
	return room
}

// Leave withdraws connID from the pool and tears down its room. When roomID
// is non-empty only that room is torn down; a stale room id still cancels a
// pending search. The partner, if any, is told it was left.
func (e *Engine) Leave(connID, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.leaveLocked(connID, roomID)
}

// Disconnect cleans up after a connection that went away. It behaves
// exactly like Leave with no room id.
func (e *Engine) Disconnect(connID string) {
	e.Leave(connID, "")
}

func (e *Engine) leaveLocked(connID, roomID string) {
	if e.pool.Remove(connID) {
		metrics.WaitingPoolSize.Set(float64(e.pool.Len()))
		log.Printf("[matcher] %s left the pool", connID)
	}

	room := e.rooms.RoomOf(connID)
	if room == nil || (roomID != "" && room.ID != roomID) {
		return
	}

	closed, ok := e.rooms.Teardown(room.ID, connID)
	if !ok {
		return
	}
	metrics.ActiveRooms.Set(float64(e.rooms.Count()))

	if partner := closed.Partner(connID); partner != "" {
		e.notify.PartnerLeft(partner, closed)
	}
	if e.observer != nil {
		e.observer.RoomClosed(closed, connID)
	}
	log.Printf("[matcher] room=%s closed by %s", closed.ID, connID)
}

func (e *Engine) enqueueLocked(entry Entry) {
	e.pool.Add(entry)
	metrics.WaitingPoolSize.Set(float64(e.pool.Len()))
	e.notify.Waiting(entry.ConnID)
}

// Waiting reports whether connID is currently in the pool.
func (e *Engine) Waiting(connID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.pool.Get(connID)
	return ok
}

// Stats returns the current pool and room counts.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{Waiting: e.pool.Len(), Rooms: e.rooms.Count()}
}
