package session

import (
	"context"
	"sync"
	"time"
)

// Store owns the sessionID -> Session mapping plus one exclusive lock per
// session. Different sessions proceed fully in parallel; operations within a
// session are serialized.
type Store interface {
	// WithLock runs fn with exclusive access to the session, creating the
	// session lazily on first use. The lock is released on every exit path,
	// including a panic inside fn.
	WithLock(ctx context.Context, sessionID string, fn func(*Session) error) error

	// Close releases store resources (background loops, connections).
	Close() error
}

// entry pairs a session with its exclusive lock.
type entry struct {
	mu   sync.Mutex
	sess *Session
}

// InMemoryStore is the default single-process store. Sessions live for the
// process lifetime unless a max age is configured, in which case idle
// sessions are evicted by a background sweep.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	maxAge       time.Duration // 0 = never evict
	sweepEvery   time.Duration
	stopCleanup  chan struct{}
	cleanupOnce  sync.Once
	cleanupAlive bool
}

// StoreOption configures an InMemoryStore.
type StoreOption func(*InMemoryStore)

// WithMaxAge enables eviction of sessions idle longer than d.
func WithMaxAge(d time.Duration) StoreOption {
	return func(s *InMemoryStore) { s.maxAge = d }
}

// WithSweepInterval sets how often the eviction sweep runs.
func WithSweepInterval(d time.Duration) StoreOption {
	return func(s *InMemoryStore) { s.sweepEvery = d }
}

// NewInMemoryStore creates a store. Eviction is off unless WithMaxAge is
// given.
func NewInMemoryStore(opts ...StoreOption) *InMemoryStore {
	s := &InMemoryStore{
		sessions:    make(map[string]*entry),
		sweepEvery:  5 * time.Minute,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxAge > 0 {
		s.cleanupAlive = true
		go s.sweepLoop()
	}
	return s
}

// getOrCreate returns the entry for sessionID, creating it lazily.
func (s *InMemoryStore) getOrCreate(sessionID string) *entry {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		return e
	}
	e = &entry{sess: New(sessionID)}
	s.sessions[sessionID] = e
	return e
}

// WithLock serializes access to one session. The per-session mutex is held
// for the whole duration of fn, so concurrent calls for the same sessionID
// observe some serial order and never lose updates.
func (s *InMemoryStore) WithLock(ctx context.Context, sessionID string, fn func(*Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := s.getOrCreate(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.sess)
}

// Len returns the number of live sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the eviction sweep, if running.
func (s *InMemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		if s.cleanupAlive {
			close(s.stopCleanup)
		}
	})
	return nil
}

func (s *InMemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCleanup:
			return
		}
	}
}

// sweep evicts idle sessions. TryLock skips any session currently being
// processed - an in-flight workflow must never have its session removed.
func (s *InMemoryStore) sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			continue
		}
		stale := now.Sub(e.sess.UpdatedAt) > s.maxAge
		e.mu.Unlock()
		if stale {
			delete(s.sessions, id)
		}
	}
}
