package session

import (
	"log/slog"
	"sync"
	"time"
)

// Default store limits.
const (
	DefaultPendingTTL  = 10 * time.Minute
	DefaultMaxAge      = 8 * time.Hour
	DefaultMaxSessions = 10000
)

// sweepInterval bounds how often Create scans for expired sessions while the
// store is below capacity.
const sweepInterval = time.Minute

// StoreOptions bounds a Store. Zero fields take the defaults.
type StoreOptions struct {
	// PendingTTL drops sessions that have not signed in within this time.
	PendingTTL time.Duration
	// MaxAge drops every session this old.
	MaxAge time.Duration
	// MaxSessions caps the store; Create evicts the oldest session beyond it,
	// preferring ones that never signed in.
	MaxSessions int
	// OnRemove is called with the ID of every session that leaves the store,
	// outside the store lock.
	OnRemove func(id string)
}

// Store maps session IDs to sessions. Each browser gets its own Session, so
// concurrent users never share a CSRF state or token.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time

	opts   StoreOptions
	logger *slog.Logger

	// now returns the current time. Tests override it.
	now func() time.Time
}

// NewStore creates an empty store.
func NewStore(opts StoreOptions, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.PendingTTL <= 0 {
		opts.PendingTTL = DefaultPendingTTL
	}

	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}

	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}

	return &Store{
		sessions: make(map[string]*Session),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Create registers and returns a new empty session, first dropping expired
// sessions and, at capacity, the oldest one.
func (st *Store) Create() *Session {
	s := New()
	now := st.now()
	s.createdAt = now

	st.mu.Lock()

	var removed []*Session

	if len(st.sessions) >= st.opts.MaxSessions || now.Sub(st.lastSweep) >= sweepInterval {
		removed = st.sweepLocked(now)
		st.lastSweep = now
	}

	if len(st.sessions) >= st.opts.MaxSessions {
		if victim := st.oldestLocked(); victim != nil {
			delete(st.sessions, victim.ID())
			removed = append(removed, victim)
		}
	}

	st.sessions[s.ID()] = s
	n := len(st.sessions)
	st.mu.Unlock()

	st.release(removed)

	st.logger.Debug("session created", slog.Int("active", n), slog.Int("dropped", len(removed)))

	return s
}

// Get returns the session for id. An expired session is removed and not
// returned.
func (st *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	st.mu.Lock()

	s, ok := st.sessions[id]
	if ok && st.expired(s, st.now()) {
		delete(st.sessions, id)
		st.mu.Unlock()

		st.release([]*Session{s})

		return nil, false
	}

	st.mu.Unlock()

	return s, ok
}

// Delete removes the session for id and clears its state. Unknown IDs are
// ignored.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if ok {
		st.release([]*Session{s})
		st.logger.Debug("session deleted")
	}
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	return len(st.sessions)
}

func (st *Store) expired(s *Session, now time.Time) bool {
	age := now.Sub(s.createdAt)
	if age >= st.opts.MaxAge {
		return true
	}

	return age >= st.opts.PendingTTL && !s.Authenticated()
}

// sweepLocked drops expired sessions. Caller holds st.mu.
func (st *Store) sweepLocked(now time.Time) []*Session {
	var removed []*Session

	for id, s := range st.sessions {
		if st.expired(s, now) {
			delete(st.sessions, id)
			removed = append(removed, s)
		}
	}

	return removed
}

// oldestLocked picks the eviction victim: the oldest session that never
// signed in, or the oldest overall when all have. Caller holds st.mu.
func (st *Store) oldestLocked() *Session {
	var pending, oldest *Session

	for _, s := range st.sessions {
		if oldest == nil || s.createdAt.Before(oldest.createdAt) {
			oldest = s
		}

		if !s.Authenticated() && (pending == nil || s.createdAt.Before(pending.createdAt)) {
			pending = s
		}
	}

	if pending != nil {
		return pending
	}

	return oldest
}

// release clears removed sessions and notifies OnRemove.
func (st *Store) release(removed []*Session) {
	for _, s := range removed {
		s.Clear()

		if st.opts.OnRemove != nil {
			st.opts.OnRemove(s.ID())
		}
	}
}
