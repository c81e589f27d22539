package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/internal/testutil"
	"github.com/datachat-ai/datachat/session"
	"github.com/datachat-ai/datachat/table"
)

func newDiskFixture(t *testing.T, optFns ...func(o *session.Options)) (*DiskStore, core.SessionStore, string) {
	t.Helper()
	sessions := session.NewInMemoryStore(optFns...)
	base := t.TempDir()
	store, err := NewDiskStore(base, sessions)
	require.NoError(t, err)
	_, err = sessions.Create("s1")
	require.NoError(t, err)
	return store, sessions, base
}

func TestDiskStore_RegisterAndRetrieveRoundTrip(t *testing.T) {
	store, sessions, base := newDiskFixture(t)
	ctx := context.Background()

	src := table.NewBuilder().
		AddString("name", []string{"a", "b", "c"}).
		AddColumn("score", table.Float64, []any{1.5, nil, 3.0}).
		AddInt64("n", []int64{1, 2, 3}).
		AddBool("ok", []bool{true, false, true}).
		MustBuild()

	res, err := store.Register(ctx, "s1", "scores.csv", src)
	require.NoError(t, err)
	assert.Equal(t, "scores.csv", res.Meta.OriginalFilename)
	assert.Equal(t, 3, res.Meta.RowCount)
	assert.Equal(t, 4, res.Meta.ColumnCount)
	assert.Len(t, res.Sample, 3, "sample is capped at the row count")

	// The session carries the reference.
	sess, err := sessions.Get("s1")
	require.NoError(t, err)
	require.Len(t, sess.Files, 1)
	assert.Equal(t, res.Ref.FileID, sess.Files[0].FileID)

	// Layout on disk.
	dir := filepath.Join(base, "s1", res.Ref.FileID)
	for _, f := range []string{metadataFile, payloadFile} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}

	got, err := store.Retrieve(ctx, "s1", res.Ref.FileID)
	require.NoError(t, err)
	assert.Equal(t, src.ColumnNames(), got.ColumnNames())
	assert.Equal(t, src.NumRows(), got.NumRows())
	assert.Equal(t, "b", got.Value(1, "name"))
	assert.Nil(t, got.Value(1, "score"), "null cell survives the round trip")
	assert.Equal(t, 3.0, got.Value(2, "score"))
	assert.Equal(t, int64(2), got.Value(1, "n"))
	assert.Equal(t, true, got.Value(0, "ok"))
}

func TestDiskStore_SummaryColdCache(t *testing.T) {
	store, sessions, base := newDiskFixture(t)
	ctx := context.Background()

	res, err := store.Register(ctx, "s1", "sales.csv", testutil.SalesTable())
	require.NoError(t, err)

	// A second store over the same directory simulates a process restart with
	// an empty metadata cache.
	fresh, err := NewDiskStore(base, sessions)
	require.NoError(t, err)
	meta, err := fresh.Summary(ctx, "s1", res.Ref.FileID)
	require.NoError(t, err)
	assert.Equal(t, res.Meta.RowCount, meta.RowCount)
	assert.Equal(t, res.Meta.Columns, meta.Columns)

	got, err := fresh.Retrieve(ctx, "s1", res.Ref.FileID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.NumRows())
}

func TestDiskStore_CapacityRejectionLeavesNoStorage(t *testing.T) {
	store, _, base := newDiskFixture(t, func(o *session.Options) {
		o.MaxFilesPerSession = 1
	})
	ctx := context.Background()

	_, err := store.Register(ctx, "s1", "first.csv", testutil.SalesTable())
	require.NoError(t, err)

	_, err = store.Register(ctx, "s1", "second.csv", testutil.SalesTable())
	var capErr *core.CapacityError
	require.True(t, errors.As(err, &capErr))

	entries, err := os.ReadDir(filepath.Join(base, "s1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rejected registration must not write anything")
}

func TestDiskStore_UnknownFile(t *testing.T) {
	store, _, _ := newDiskFixture(t)
	ctx := context.Background()

	_, err := store.Summary(ctx, "s1", "nope")
	assert.ErrorIs(t, err, core.ErrFileNotFound)
	_, err = store.ListAnalyses(ctx, "s1", "nope")
	assert.ErrorIs(t, err, core.ErrFileNotFound)
	err = store.SaveAnalysis(ctx, "s1", "nope", "a1", map[string]any{})
	assert.ErrorIs(t, err, core.ErrFileNotFound)
}

func TestDiskStore_SaveAndListAnalyses(t *testing.T) {
	store, _, _ := newDiskFixture(t)
	ctx := context.Background()

	res, err := store.Register(ctx, "s1", "sales.csv", testutil.SalesTable())
	require.NoError(t, err)

	ids, err := store.ListAnalyses(ctx, "s1", res.Ref.FileID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.SaveAnalysis(ctx, "s1", res.Ref.FileID, "a2", map[string]any{"answer": "two"}))
	require.NoError(t, store.SaveAnalysis(ctx, "s1", res.Ref.FileID, "a1", map[string]any{"answer": "one"}))

	ids, err = store.ListAnalyses(ctx, "s1", res.Ref.FileID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids)
}

func TestDiskStore_RemoveFileDropsStorageAndReference(t *testing.T) {
	store, sessions, base := newDiskFixture(t)
	ctx := context.Background()

	res, err := store.Register(ctx, "s1", "sales.csv", testutil.SalesTable())
	require.NoError(t, err)

	require.NoError(t, store.RemoveFile(ctx, "s1", res.Ref.FileID))

	_, err = os.Stat(filepath.Join(base, "s1", res.Ref.FileID))
	assert.True(t, os.IsNotExist(err))
	_, err = store.Summary(ctx, "s1", res.Ref.FileID)
	assert.ErrorIs(t, err, core.ErrFileNotFound)

	sess, err := sessions.Get("s1")
	require.NoError(t, err)
	assert.Empty(t, sess.Files)

	// Removing again, or for a dead session, is not an error.
	assert.NoError(t, store.RemoveFile(ctx, "s1", res.Ref.FileID))
	assert.NoError(t, store.RemoveFile(ctx, "gone", "whatever"))
}

func TestDiskStore_RemoveSession(t *testing.T) {
	store, _, base := newDiskFixture(t)
	ctx := context.Background()

	res, err := store.Register(ctx, "s1", "sales.csv", testutil.SalesTable())
	require.NoError(t, err)

	require.NoError(t, store.RemoveSession(ctx, "s1"))
	_, err = os.Stat(filepath.Join(base, "s1"))
	assert.True(t, os.IsNotExist(err))
	_, err = store.Summary(ctx, "s1", res.Ref.FileID)
	assert.ErrorIs(t, err, core.ErrFileNotFound)
}

func TestDiskStore_StaleFiles(t *testing.T) {
	sessions := session.NewInMemoryStore()
	base := t.TempDir()
	now := time.Now()
	store, err := NewDiskStore(base, sessions, func(o *DiskOptions) {
		o.Clock = func() time.Time { return now }
	})
	require.NoError(t, err)
	_, err = sessions.Create("s1")
	require.NoError(t, err)

	res, err := store.Register(context.Background(), "s1", "sales.csv", testutil.SalesTable())
	require.NoError(t, err)

	stale, err := store.StaleFiles(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale, "fresh file is not stale")

	now = now.Add(8 * 24 * time.Hour)
	stale, err = store.StaleFiles(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, core.FileLocation{SessionID: "s1", FileID: res.Ref.FileID}, stale[0])
}
