package session

import (
	"sync"
	"time"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/logging"
)

// Options configure an InMemoryStore.
type Options struct {
	// MaxActiveSessions bounds the number of live sessions; Create evicts
	// the least-recently-active session once the bound is reached. 0 means
	// unbounded.
	MaxActiveSessions int

	// MaxFilesPerSession bounds file references per session.
	MaxFilesPerSession int

	// MaxConversationHistory bounds history length; overflow drops oldest
	// entries. 0 means unbounded.
	MaxConversationHistory int

	// RetentionWindow is the inactivity TTL. Refreshed on every successful
	// mutation.
	RetentionWindow time.Duration

	// OnEvict is invoked (outside all store locks) with the id of every
	// session removed by eviction, expiry, deletion or replacement, so
	// owners of dependent state can cascade cleanup.
	OnEvict func(sessionID string)

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger logging.Logger
}

// entry pairs a session with its own mutex. Mutations lock the entry, not
// the store, so traffic on distinct sessions never contends. The removed
// flag marks entries already detached from the map; a mutator that lost the
// race observes it and reports the session absent.
type entry struct {
	mu      sync.Mutex
	sess    *core.Session
	removed bool
}

// InMemoryStore is a volatile core.SessionStore holding sessions in a
// process-local map.
//
// Locking discipline: the map mutex guards membership only and is always
// acquired before an entry mutex, never after. Snapshots returned to callers
// are clones; internal state is mutated exclusively under the entry mutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	opts     Options
}

// NewInMemoryStore constructs a store with the given options. Zero-valued
// limits mean unbounded; a zero RetentionWindow means sessions never expire.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		Clock:  time.Now,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &InMemoryStore{sessions: make(map[string]*entry), opts: opts}
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// retention returns the effective TTL; zero disables expiry by pushing the
// deadline far out.
func (s *InMemoryStore) retention() time.Duration {
	if s.opts.RetentionWindow <= 0 {
		return 100 * 365 * 24 * time.Hour
	}
	return s.opts.RetentionWindow
}

// Get returns a snapshot of the session. A session past its expiry deadline
// is treated as absent (logical tombstone) independent of any reaper sweep
// and reported as ErrSessionExpired.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, core.ErrSessionNotFound
	}
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, core.ErrSessionNotFound
	}
	if e.sess.Expired(s.opts.Clock()) {
		e.mu.Unlock()
		s.remove(id, e)
		return nil, core.ErrSessionExpired
	}
	snap := e.sess.Clone()
	e.mu.Unlock()
	return snap, nil
}

// Create inserts a new empty session under the id, replacing any existing
// record. When the live-session count is at capacity, expired sessions are
// collected first and the least-recently-active live session is evicted if
// that is not enough.
func (s *InMemoryStore) Create(id string) (*core.Session, error) {
	now := s.opts.Clock()
	var evicted []string

	s.mu.Lock()
	if old, ok := s.sessions[id]; ok {
		old.mu.Lock()
		old.removed = true
		old.mu.Unlock()
		delete(s.sessions, id)
		evicted = append(evicted, id)
	}
	if s.opts.MaxActiveSessions > 0 && len(s.sessions) >= s.opts.MaxActiveSessions {
		evicted = append(evicted, s.evictLocked(now)...)
	}
	sess := core.NewSession(id, now, s.retention())
	s.sessions[id] = &entry{sess: sess}
	s.mu.Unlock()

	s.notifyEvicted(evicted)
	return sess.Clone(), nil
}

// evictLocked removes expired sessions and, if none were expired, the
// least-recently-active session. Caller holds the map write lock.
func (s *InMemoryStore) evictLocked(now time.Time) []string {
	var evicted []string
	var lruID string
	var lruAt time.Time
	for id, e := range s.sessions {
		e.mu.Lock()
		expired := e.sess.Expired(now)
		lastActive := e.sess.LastActive
		if expired {
			e.removed = true
		}
		e.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			evicted = append(evicted, id)
			continue
		}
		if lruID == "" || lastActive.Before(lruAt) {
			lruID, lruAt = id, lastActive
		}
	}
	if len(evicted) == 0 && lruID != "" {
		e := s.sessions[lruID]
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
		delete(s.sessions, lruID)
		evicted = append(evicted, lruID)
		s.opts.Logger.Debug("evicted least-recently-active session", "session_id", lruID)
	}
	return evicted
}

// Update applies the mutation to a working copy under the entry mutex and
// swaps it in only on success, so concurrent updates on the same id are
// linearized and a failed mutation leaves the session untouched. The expiry
// deadline is refreshed on success.
func (s *InMemoryStore) Update(id string, fn core.Mutation) (*core.Session, error) {
	e := s.lookup(id)
	if e == nil {
		return nil, core.ErrSessionNotFound
	}
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return nil, core.ErrSessionNotFound
	}
	now := s.opts.Clock()
	if e.sess.Expired(now) {
		e.mu.Unlock()
		s.remove(id, e)
		return nil, core.ErrSessionExpired
	}
	work := e.sess.Clone()
	if err := fn(work); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	work.Touch(now, s.retention())
	e.sess = work
	snap := work.Clone()
	e.mu.Unlock()
	return snap, nil
}

// AddFile appends a file reference, enforcing the per-session cap.
func (s *InMemoryStore) AddFile(id string, ref core.FileRef) error {
	_, err := s.Update(id, func(sess *core.Session) error {
		return sess.AddFile(ref, s.opts.MaxFilesPerSession)
	})
	return err
}

// AppendConversation appends a history entry under the history cap.
func (s *InMemoryStore) AppendConversation(id string, entry core.ConversationEntry) error {
	_, err := s.Update(id, func(sess *core.Session) error {
		sess.AppendConversation(entry, s.opts.MaxConversationHistory)
		return nil
	})
	return err
}

// Delete removes the session. Idempotent.
func (s *InMemoryStore) Delete(id string) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if ok {
		s.notifyEvicted([]string{id})
	}
}

// IDs returns a snapshot of stored ids, expired entries included.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	return ids
}

// ExpireIfStale removes the session if its retention window has elapsed,
// reporting whether a removal happened.
func (s *InMemoryStore) ExpireIfStale(id string) bool {
	e := s.lookup(id)
	if e == nil {
		return false
	}
	e.mu.Lock()
	stale := !e.removed && e.sess.Expired(s.opts.Clock())
	e.mu.Unlock()
	if !stale {
		return false
	}
	return s.remove(id, e)
}

// Len reports the number of stored sessions, expired entries included.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *InMemoryStore) lookup(id string) *entry {
	s.mu.RLock()
	e := s.sessions[id]
	s.mu.RUnlock()
	return e
}

// remove detaches the entry if it is still the one mapped under id, firing
// the eviction hook on success.
func (s *InMemoryStore) remove(id string, e *entry) bool {
	s.mu.Lock()
	cur, ok := s.sessions[id]
	if !ok || cur != e {
		s.mu.Unlock()
		return false
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.notifyEvicted([]string{id})
	return true
}

// SetOnEvict installs the eviction hook after construction. The session
// store and the file registry reference each other (capacity checks one way,
// cascade cleanup the other), so one side has to be wired late.
func (s *InMemoryStore) SetOnEvict(fn func(sessionID string)) {
	s.opts.OnEvict = fn
}

// notifyEvicted runs the eviction hook outside all store locks; the hook may
// perform I/O.
func (s *InMemoryStore) notifyEvicted(ids []string) {
	if s.opts.OnEvict == nil {
		return
	}
	for _, id := range ids {
		s.opts.OnEvict(id)
	}
}
