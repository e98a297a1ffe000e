package matching

import (
	"container/list"
	"time"
)

// Entry is a connection waiting for a partner, with the preferences it
// searched with.
type Entry struct {
	ConnID   string
	Prefs    Preferences
	JoinedAt time.Time
}

// Pool holds waiting entries in insertion order so that the earliest waiter
// is considered first. Pool is not safe for concurrent use; Engine owns it
// behind its mutex.
type Pool struct {
	order *list.List               // of Entry, oldest first
	index map[string]*list.Element // connID -> element in order
	now   func() time.Time
}

// NewPool creates an empty waiting pool.
func NewPool() *Pool {
	return &Pool{
		order: list.New(),
		index: make(map[string]*list.Element),
		now:   time.Now,
	}
}

// Add inserts e at the back of the pool. A previous entry for the same
// connection is removed first, so re-adding moves the connection to the end.
func (p *Pool) Add(e Entry) {
	p.Remove(e.ConnID)
	if e.JoinedAt.IsZero() {
		e.JoinedAt = p.now()
	}
	p.index[e.ConnID] = p.order.PushBack(e)
}

// Remove deletes the entry for connID. Removing an absent id is a no-op;
// the return value reports whether anything was removed.
func (p *Pool) Remove(connID string) bool {
	el, ok := p.index[connID]
	if !ok {
		return false
	}
	p.order.Remove(el)
	delete(p.index, connID)
	return true
}

// Get returns the entry for connID, if it is waiting.
func (p *Pool) Get(connID string) (Entry, bool) {
	el, ok := p.index[connID]
	if !ok {
		return Entry{}, false
	}
	return el.Value.(Entry), true
}

// Find returns the first waiting entry, in insertion order, that the
// candidate is Compatible with. The entry for excludeID is never returned.
func (p *Pool) Find(candidate Preferences, excludeID string) (Entry, bool) {
	el := p.find(candidate, excludeID)
	if el == nil {
		return Entry{}, false
	}
	return el.Value.(Entry), true
}

// Take is Find followed by removal of the selected entry. A taken entry can
// never be selected by a later search.
func (p *Pool) Take(candidate Preferences, excludeID string) (Entry, bool) {
	el := p.find(candidate, excludeID)
	if el == nil {
		return Entry{}, false
	}
	e := el.Value.(Entry)
	p.order.Remove(el)
	delete(p.index, e.ConnID)
	return e, true
}

func (p *Pool) find(candidate Preferences, excludeID string) *list.Element {
	for el := p.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(Entry)
		if e.ConnID == excludeID {
			continue
		}
		if Compatible(candidate, e.Prefs) {
			return el
		}
	}
	return nil
}

// Len returns the number of waiting entries.
func (p *Pool) Len() int {
	return p.order.Len()
}

// Snapshot returns the waiting entries, oldest first.
func (p *Pool) Snapshot() []Entry {
	out := make([]Entry, 0, p.order.Len())
	for el := p.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(Entry))
	}
	return out
}
