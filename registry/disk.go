package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/logging"
	"github.com/datachat-ai/datachat/table"
)

const (
	metadataFile = "metadata.json"
	payloadFile  = "data.parquet"
	analysisDir  = "analysis"
)

// DiskOptions configure a DiskStore.
type DiskOptions struct {
	// Clock overrides time.Now, for tests.
	Clock  func() time.Time
	Logger logging.Logger
}

// DiskStore is a durable core.FileRegistry keeping one directory per
// registered file:
//
//	<base>/<sessionID>/<fileID>/metadata.json
//	<base>/<sessionID>/<fileID>/data.parquet
//	<base>/<sessionID>/<fileID>/analysis/<analysisID>.json
//
// Metadata is computed once at registration and cached in memory, so Summary
// never reloads the payload. I/O failures surface as core.StorageError.
type DiskStore struct {
	base     string
	sessions core.SessionStore
	opts     DiskOptions

	metaCache *metaCache
}

// NewDiskStore creates the base directory if needed and returns a registry
// that records file references through the given session store.
func NewDiskStore(base string, sessions core.SessionStore, optFns ...func(o *DiskOptions)) (*DiskStore, error) {
	opts := DiskOptions{Clock: time.Now, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, core.NewStorageError("mkdir", err)
	}
	return &DiskStore{base: base, sessions: sessions, opts: opts, metaCache: newMetaCache()}, nil
}

var _ core.FileRegistry = (*DiskStore)(nil)

func (d *DiskStore) fileDir(sessionID, fileID string) string {
	return filepath.Join(d.base, sessionID, fileID)
}

// Register persists the table and records the reference in the owning
// session. The file-count check happens first, through SessionStore.AddFile,
// so no storage is created for a rejected registration; if persisting fails
// afterwards the reference is rolled back.
func (d *DiskStore) Register(ctx context.Context, sessionID, filename string, t *table.Table) (*core.RegisterResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := d.opts.Clock()
	fileID := core.NewID()
	ref := core.FileRef{FileID: fileID, Filename: filename, AddedAt: now}
	if err := d.sessions.AddFile(sessionID, ref); err != nil {
		return nil, err
	}

	meta, err := d.persist(sessionID, fileID, filename, t, now)
	if err != nil {
		d.rollbackRef(sessionID, fileID)
		return nil, err
	}
	d.metaCache.put(sessionID, fileID, meta)
	return buildResult(*meta, ref, t), nil
}

func (d *DiskStore) persist(sessionID, fileID, filename string, t *table.Table, now time.Time) (*core.FileMeta, error) {
	dir := d.fileDir(sessionID, fileID)
	if err := os.MkdirAll(filepath.Join(dir, analysisDir), 0o755); err != nil {
		return nil, core.NewStorageError("mkdir", err)
	}
	payloadPath := filepath.Join(dir, payloadFile)
	f, err := os.Create(payloadPath)
	if err != nil {
		return nil, core.NewStorageError("create payload", err)
	}
	if err := writeParquet(f, t); err != nil {
		f.Close()
		os.RemoveAll(dir)
		return nil, core.NewStorageError("write payload", err)
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(dir)
		return nil, core.NewStorageError("close payload", err)
	}

	meta := buildMeta(sessionID, fileID, filename, t, now)
	if info, err := os.Stat(payloadPath); err == nil {
		meta.Size = info.Size()
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		os.RemoveAll(dir)
		return nil, core.NewStorageError("encode metadata", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), raw, 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, core.NewStorageError("write metadata", err)
	}
	return &meta, nil
}

// rollbackRef drops the session's reference to a file whose storage could
// not be written.
func (d *DiskStore) rollbackRef(sessionID, fileID string) {
	_, err := d.sessions.Update(sessionID, func(s *core.Session) error {
		s.RemoveFile(fileID)
		return nil
	})
	if err != nil {
		d.opts.Logger.Warn("could not roll back file reference",
			"session_id", sessionID, "file_id", fileID, "error", err)
	}
}

// Retrieve loads the table payload from disk.
func (d *DiskStore) Retrieve(ctx context.Context, sessionID, fileID string) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	meta, err := d.Summary(ctx, sessionID, fileID)
	if err != nil {
		return nil, err
	}
	t, err := readParquet(filepath.Join(d.fileDir(sessionID, fileID), payloadFile), meta)
	if err != nil {
		return nil, core.NewStorageError("read payload", err)
	}
	return t, nil
}

// Summary returns the metadata cached at registration. A cache miss (fresh
// process) falls back to the metadata record on disk.
func (d *DiskStore) Summary(ctx context.Context, sessionID, fileID string) (*core.FileMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if meta := d.metaCache.get(sessionID, fileID); meta != nil {
		return meta, nil
	}
	raw, err := os.ReadFile(filepath.Join(d.fileDir(sessionID, fileID), metadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.ErrFileNotFound
	}
	if err != nil {
		return nil, core.NewStorageError("read metadata", err)
	}
	var meta core.FileMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, core.NewStorageError("decode metadata", err)
	}
	d.metaCache.put(sessionID, fileID, &meta)
	return &meta, nil
}

// SaveAnalysis appends a saved analysis result under the file.
func (d *DiskStore) SaveAnalysis(ctx context.Context, sessionID, fileID, analysisID string, result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(d.fileDir(sessionID, fileID), analysisDir)
	if _, err := os.Stat(d.fileDir(sessionID, fileID)); errors.Is(err, fs.ErrNotExist) {
		return core.ErrFileNotFound
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.NewStorageError("mkdir", err)
	}
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return core.NewStorageError("encode analysis", err)
	}
	if err := os.WriteFile(filepath.Join(dir, analysisID+".json"), raw, 0o644); err != nil {
		return core.NewStorageError("write analysis", err)
	}
	return nil
}

// ListAnalyses returns the analysis ids saved for the file.
func (d *DiskStore) ListAnalyses(ctx context.Context, sessionID, fileID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(d.fileDir(sessionID, fileID), analysisDir))
	if errors.Is(err, fs.ErrNotExist) {
		if _, statErr := os.Stat(d.fileDir(sessionID, fileID)); errors.Is(statErr, fs.ErrNotExist) {
			return nil, core.ErrFileNotFound
		}
		return []string{}, nil
	}
	if err != nil {
		return nil, core.NewStorageError("list analyses", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-len(".json")])
		}
	}
	return ids, nil
}

// RemoveFile deletes the file's storage and drops the session reference when
// the session is still alive.
func (d *DiskStore) RemoveFile(ctx context.Context, sessionID, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(d.fileDir(sessionID, fileID)); err != nil {
		return core.NewStorageError("remove file", err)
	}
	d.metaCache.drop(sessionID, fileID)
	_, err := d.sessions.Update(sessionID, func(s *core.Session) error {
		s.RemoveFile(fileID)
		return nil
	})
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) && !errors.Is(err, core.ErrSessionExpired) {
		return err
	}
	return nil
}

// RemoveSession deletes all storage owned by the session.
func (d *DiskStore) RemoveSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(d.base, sessionID)); err != nil {
		return core.NewStorageError("remove session", err)
	}
	d.metaCache.dropSession(sessionID)
	return nil
}

// StaleFiles enumerates files whose newest content is older than the
// retention window, judged by modification times, regardless of whether the
// owning session is still alive.
func (d *DiskStore) StaleFiles(ctx context.Context, olderThan time.Duration) ([]core.FileLocation, error) {
	now := d.opts.Clock()
	sessions, err := os.ReadDir(d.base)
	if err != nil {
		return nil, core.NewStorageError("list sessions", err)
	}
	var stale []core.FileLocation
	for _, sessDir := range sessions {
		if !sessDir.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := os.ReadDir(filepath.Join(d.base, sessDir.Name()))
		if err != nil {
			d.opts.Logger.Warn("cannot enumerate session directory",
				"session_id", sessDir.Name(), "error", err)
			continue
		}
		for _, fileDir := range files {
			if !fileDir.IsDir() {
				continue
			}
			latest, err := latestModTime(filepath.Join(d.base, sessDir.Name(), fileDir.Name()))
			if err != nil {
				d.opts.Logger.Warn("cannot stat file directory",
					"session_id", sessDir.Name(), "file_id", fileDir.Name(), "error", err)
				continue
			}
			if now.Sub(latest) >= olderThan {
				stale = append(stale, core.FileLocation{SessionID: sessDir.Name(), FileID: fileDir.Name()})
			}
		}
	}
	return stale, nil
}

// latestModTime returns the newest modification time of any file below dir.
func latestModTime(dir string) (time.Time, error) {
	var latest time.Time
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	return latest, err
}
