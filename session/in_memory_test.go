package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datachat-ai/datachat/core"
)

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)

func newTestStore(clock *fakeClock, optFns ...func(o *Options)) *InMemoryStore {
	return NewInMemoryStore(append([]func(o *Options){func(o *Options) {
		o.MaxActiveSessions = 3
		o.MaxFilesPerSession = 2
		o.MaxConversationHistory = 5
		o.RetentionWindow = time.Hour
		o.Clock = clock.Now
	}}, optFns...)...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestInMemoryStore_GetAbsentAndExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(clock)

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = store.Create("s1")
	require.NoError(t, err)

	// At the deadline the session is a logical tombstone even before any
	// reaper sweep, reported distinctly from never-existed.
	clock.Advance(time.Hour)
	_, err = store.Get("s1")
	assert.ErrorIs(t, err, core.ErrSessionExpired)

	// The tombstone read dropped the entry for good.
	_, err = store.Get("s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestInMemoryStore_UpdateRefreshesDeadline(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(clock)
	_, err := store.Create("s1")
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = store.Update("s1", func(s *core.Session) error { return nil })
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = store.Get("s1")
	assert.NoError(t, err, "deadline must have been pushed out by the update")
}

func TestInMemoryStore_FailedMutationNotApplied(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(clock)
	_, err := store.Create("s1")
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.Update("s1", func(s *core.Session) error {
		s.AppendConversation(core.ConversationEntry{Query: "partial"}, 0)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sess, err := store.Get("s1")
	require.NoError(t, err)
	assert.Empty(t, sess.History, "failed mutation must not partially apply")
}

func TestInMemoryStore_FileCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(clock)
	_, err := store.Create("s1")
	require.NoError(t, err)

	require.NoError(t, store.AddFile("s1", core.FileRef{FileID: "f1"}))
	require.NoError(t, store.AddFile("s1", core.FileRef{FileID: "f2"}))

	err = store.AddFile("s1", core.FileRef{FileID: "f3"})
	var capErr *core.CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, core.CapacityFiles, capErr.Kind)

	sess, _ := store.Get("s1")
	assert.Len(t, sess.Files, 2, "rejected AddFile leaves the file list unchanged")
}

func TestInMemoryStore_ConcurrentAppendsNoLostUpdates(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewInMemoryStore(func(o *Options) {
		o.MaxConversationHistory = 100
		o.RetentionWindow = time.Hour
		o.Clock = clock.Now
	})
	_, err := store.Create("s1")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.AppendConversation("s1", core.ConversationEntry{
				Query: fmt.Sprintf("q-%d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sess, err := store.Get("s1")
	require.NoError(t, err)
	require.Len(t, sess.History, n, "every concurrent append must be reflected")

	seen := make(map[string]bool, n)
	for _, e := range sess.History {
		seen[e.Query] = true
	}
	assert.Len(t, seen, n, "payloads must all be distinct entries")
}

func TestInMemoryStore_LRUEvictionAtCapacity(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	var evicted []string
	store := newTestStore(clock, func(o *Options) {
		o.OnEvict = func(id string) { evicted = append(evicted, id) }
	})

	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Create(id)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	// Touch "a" so "b" becomes least-recently-active.
	_, err := store.Update("a", func(s *core.Session) error { return nil })
	require.NoError(t, err)

	_, err = store.Create("d")
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, evicted)
	_, err = store.Get("b")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	for _, id := range []string{"a", "c", "d"} {
		_, err := store.Get(id)
		assert.NoError(t, err, id)
	}
}

func TestInMemoryStore_EvictionPrefersExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	var evicted []string
	store := newTestStore(clock, func(o *Options) {
		o.OnEvict = func(id string) { evicted = append(evicted, id) }
	})

	_, err := store.Create("old")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour) // "old" is now past its window
	_, err = store.Create("b")
	require.NoError(t, err)
	_, err = store.Create("c")
	require.NoError(t, err)

	_, err = store.Create("d")
	require.NoError(t, err)

	assert.Equal(t, []string{"old"}, evicted, "expired sessions are evicted before any live LRU victim")
	for _, id := range []string{"b", "c", "d"} {
		_, err := store.Get(id)
		assert.NoError(t, err, id)
	}
}

func TestInMemoryStore_DeleteIdempotent(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(clock)
	_, err := store.Create("s1")
	require.NoError(t, err)

	store.Delete("s1")
	store.Delete("s1") // no-op
	store.Delete("never-existed")

	_, err = store.Get("s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestInMemoryStore_ExpireIfStale(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	var evicted []string
	store := newTestStore(clock, func(o *Options) {
		o.OnEvict = func(id string) { evicted = append(evicted, id) }
	})

	_, err := store.Create("fresh")
	require.NoError(t, err)
	_, err = store.Create("stale")
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = store.Update("fresh", func(s *core.Session) error { return nil })
	require.NoError(t, err)

	clock.Advance(time.Minute) // "stale" is exactly at its deadline now
	assert.True(t, store.ExpireIfStale("stale"))
	assert.False(t, store.ExpireIfStale("fresh"))
	assert.False(t, store.ExpireIfStale("stale"), "second call is a no-op")
	assert.Equal(t, []string{"stale"}, evicted)
}

func TestInMemoryStore_CreateReplacesExisting(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := newTestStore(clock)
	_, err := store.Create("s1")
	require.NoError(t, err)
	require.NoError(t, store.AddFile("s1", core.FileRef{FileID: "f1"}))

	fresh, err := store.Create("s1")
	require.NoError(t, err)
	assert.Empty(t, fresh.Files, "Create yields a new empty session")
	assert.Equal(t, 1, store.Len())
}
