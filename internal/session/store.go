package session

import (
	"context"
	"sync"
	"time"
)

// Store holds one Context per session identifier. Implementations must make
// GetOrCreate/Update/Delete linearizable per key; serializing whole turns for
// a session is the engine's job (see Locks).
type Store interface {
	GetOrCreate(ctx context.Context, sessionID string) (*Context, error)
	Update(ctx context.Context, c *Context) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore keeps contexts in-process and sweeps idle entries in the
// background so abandoned mid-workflow sessions do not accumulate.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[string]*Context

	idleTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

// NewMemoryStore creates a store whose janitor evicts contexts idle longer
// than idleTimeout, checking every sweepInterval. Close stops the janitor.
func NewMemoryStore(idleTimeout, sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		contexts:    make(map[string]*Context),
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
	if idleTimeout > 0 && sweepInterval > 0 {
		go s.sweep(sweepInterval)
	}
	return s
}

// GetOrCreate returns the session's context, creating an idle one on miss.
func (s *MemoryStore) GetOrCreate(ctx context.Context, sessionID string) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.contexts[sessionID]; ok {
		return c.Clone(), nil
	}
	c := NewContext(sessionID)
	s.contexts[sessionID] = c
	return c.Clone(), nil
}

// Update writes the context back, bumping its activity timestamp.
func (s *MemoryStore) Update(ctx context.Context, c *Context) error {
	c.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.contexts[c.SessionID] = c.Clone()
	s.mu.Unlock()
	return nil
}

// Delete evicts the session's context.
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.contexts, sessionID)
	s.mu.Unlock()
	return nil
}

// Len reports how many contexts are currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}

// Close stops the background sweeper.
func (s *MemoryStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *MemoryStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.evictIdle(now.UTC())
		}
	}
}

func (s *MemoryStore) evictIdle(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.contexts {
		if now.Sub(c.UpdatedAt) > s.idleTimeout {
			delete(s.contexts, id)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
