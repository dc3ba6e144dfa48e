package session

import "sync"

// Locks hands out one mutex per session so concurrent messages for the same
// session are applied one at a time. Entries are reference-counted and
// removed once the last holder releases, keeping the map bounded by the
// number of in-flight sessions.
type Locks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocks creates an empty lock registry.
func NewLocks() *Locks {
	return &Locks{entries: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for sessionID, blocking while another turn for the
// same session is in flight.
func (l *Locks) Lock(sessionID string) {
	l.mu.Lock()
	e, ok := l.entries[sessionID]
	if !ok {
		e = &lockEntry{}
		l.entries[sessionID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the session's mutex and drops the entry when unused.
func (l *Locks) Unlock(sessionID string) {
	l.mu.Lock()
	e, ok := l.entries[sessionID]
	if ok {
		e.refs--
		if e.refs <= 0 {
			delete(l.entries, sessionID)
		}
	}
	l.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}
