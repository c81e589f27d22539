package reaper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/internal/testutil"
	"github.com/datachat-ai/datachat/registry"
	"github.com/datachat-ai/datachat/session"
)

func TestSweep_RemovesExpiredSessionsWithFiles(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	sessions := session.NewInMemoryStore(func(o *session.Options) {
		o.RetentionWindow = time.Hour
		o.Clock = clock
	})
	files := registry.NewInMemoryStore(sessions)
	files.SetClock(clock)
	r := New(sessions, files)

	_, err := sessions.Create("stale")
	require.NoError(t, err)
	res, err := files.Register(context.Background(), "stale", "sales.csv", testutil.SalesTable())
	require.NoError(t, err)
	advance(30 * time.Minute)
	_, err = sessions.Create("fresh")
	require.NoError(t, err)

	// One second past the stale session's retention window.
	advance(30*time.Minute + time.Second)
	r.Sweep(context.Background())

	assert.Equal(t, []string{"fresh"}, sessions.IDs())
	_, err = files.Retrieve(context.Background(), "stale", res.Ref.FileID)
	assert.ErrorIs(t, err, core.ErrFileNotFound, "file storage cascades with its session")
}

func TestSweep_RecentActivityDefersExpiry(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	sessions := session.NewInMemoryStore(func(o *session.Options) {
		o.RetentionWindow = time.Hour
		o.Clock = clock
	})
	files := registry.NewInMemoryStore(sessions)
	files.SetClock(clock)
	r := New(sessions, files)

	_, err := sessions.Create("s1")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(59 * time.Minute)
	mu.Unlock()
	// Activity just before the sweep pushes the deadline out.
	_, err = sessions.Update("s1", func(s *core.Session) error { return nil })
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	r.Sweep(context.Background())

	_, err = sessions.Get("s1")
	assert.NoError(t, err, "recently active session survives the sweep")
}

func TestSweep_StaleFilesRemovedFromLiveSession(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	sessions := session.NewInMemoryStore(func(o *session.Options) {
		o.RetentionWindow = 100 * time.Hour
		o.Clock = clock
	})
	files := registry.NewInMemoryStore(sessions)
	files.SetClock(clock)
	r := New(sessions, files, func(o *Options) {
		o.FileRetention = time.Hour
	})

	_, err := sessions.Create("s1")
	require.NoError(t, err)
	res, err := files.Register(context.Background(), "s1", "sales.csv", testutil.SalesTable())
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()
	r.Sweep(context.Background())

	// Session outlives the file.
	sess, err := sessions.Get("s1")
	require.NoError(t, err)
	assert.Empty(t, sess.Files)
	_, err = files.Retrieve(context.Background(), "s1", res.Ref.FileID)
	assert.ErrorIs(t, err, core.ErrFileNotFound)
}

// flakySweeper fails removal for one session but must not stop the sweep.
type flakySweeper struct {
	failFor string
	removed []string
}

func (f *flakySweeper) StaleFiles(ctx context.Context, olderThan time.Duration) ([]core.FileLocation, error) {
	return nil, nil
}

func (f *flakySweeper) RemoveFile(ctx context.Context, sessionID, fileID string) error {
	return nil
}

func (f *flakySweeper) RemoveSession(ctx context.Context, sessionID string) error {
	if sessionID == f.failFor {
		return errors.New("disk on fire")
	}
	f.removed = append(f.removed, sessionID)
	return nil
}

type staticSessions struct{ ids []string }

func (s staticSessions) IDs() []string             { return s.ids }
func (s staticSessions) ExpireIfStale(string) bool { return true }

func TestSweep_FailureDoesNotAbortRemainingEntities(t *testing.T) {
	files := &flakySweeper{failFor: "b"}
	r := New(staticSessions{ids: []string{"a", "b", "c"}}, files)
	r.Sweep(context.Background())
	assert.Equal(t, []string{"a", "c"}, files.removed)
}

func TestStartStop(t *testing.T) {
	sessions := session.NewInMemoryStore()
	files := registry.NewInMemoryStore(sessions)
	r := New(sessions, files, func(o *Options) {
		o.Interval = 5 * time.Millisecond
	})
	r.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	r.Stop()
	r.Stop() // idempotent
}
