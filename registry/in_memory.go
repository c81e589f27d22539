package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/table"
)

// storedFile is the in-memory record for one registered table.
type storedFile struct {
	meta     core.FileMeta
	payload  *table.Table
	analyses map[string]any
	modified time.Time
}

// InMemoryStore is a volatile core.FileRegistry keeping tables in a nested
// map guarded by an RWMutex. It honors the same contract as DiskStore
// (capacity checks through the session store, cached metadata, stale-file
// enumeration by modification time) and is intended for tests and
// single-process demos.
type InMemoryStore struct {
	mu       sync.RWMutex
	files    map[string]map[string]*storedFile // sessionID -> fileID
	sessions core.SessionStore
	clock    func() time.Time
}

// NewInMemoryStore returns an empty in-memory registry recording references
// through the given session store.
func NewInMemoryStore(sessions core.SessionStore) *InMemoryStore {
	return &InMemoryStore{
		files:    make(map[string]map[string]*storedFile),
		sessions: sessions,
		clock:    time.Now,
	}
}

var _ core.FileRegistry = (*InMemoryStore)(nil)

// SetClock overrides the time source, for tests.
func (m *InMemoryStore) SetClock(clock func() time.Time) { m.clock = clock }

// Register records the table and its reference in the owning session.
func (m *InMemoryStore) Register(ctx context.Context, sessionID, filename string, t *table.Table) (*core.RegisterResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := m.clock()
	fileID := core.NewID()
	ref := core.FileRef{FileID: fileID, Filename: filename, AddedAt: now}
	if err := m.sessions.AddFile(sessionID, ref); err != nil {
		return nil, err
	}
	meta := buildMeta(sessionID, fileID, filename, t, now)
	m.mu.Lock()
	if _, ok := m.files[sessionID]; !ok {
		m.files[sessionID] = make(map[string]*storedFile)
	}
	m.files[sessionID][fileID] = &storedFile{
		meta:     meta,
		payload:  t,
		analyses: make(map[string]any),
		modified: now,
	}
	m.mu.Unlock()
	return buildResult(meta, ref, t), nil
}

func (m *InMemoryStore) lookup(sessionID, fileID string) (*storedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[sessionID][fileID]
	if !ok {
		return nil, core.ErrFileNotFound
	}
	return f, nil
}

// Retrieve returns the stored table. Tables are immutable, so the shared
// pointer is safe to hand out.
func (m *InMemoryStore) Retrieve(ctx context.Context, sessionID, fileID string) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := m.lookup(sessionID, fileID)
	if err != nil {
		return nil, err
	}
	return f.payload, nil
}

// Summary returns the metadata computed at registration.
func (m *InMemoryStore) Summary(ctx context.Context, sessionID, fileID string) (*core.FileMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := m.lookup(sessionID, fileID)
	if err != nil {
		return nil, err
	}
	meta := f.meta
	return &meta, nil
}

// SaveAnalysis appends a saved analysis result under the file.
func (m *InMemoryStore) SaveAnalysis(ctx context.Context, sessionID, fileID, analysisID string, result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[sessionID][fileID]
	if !ok {
		return core.ErrFileNotFound
	}
	f.analyses[analysisID] = result
	f.modified = m.clock()
	return nil
}

// ListAnalyses returns the analysis ids saved for the file.
func (m *InMemoryStore) ListAnalyses(ctx context.Context, sessionID, fileID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[sessionID][fileID]
	if !ok {
		return nil, core.ErrFileNotFound
	}
	ids := make([]string, 0, len(f.analyses))
	for id := range f.analyses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// RemoveFile drops the stored table and the session's reference to it.
func (m *InMemoryStore) RemoveFile(ctx context.Context, sessionID, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.files[sessionID], fileID)
	m.mu.Unlock()
	_, err := m.sessions.Update(sessionID, func(s *core.Session) error {
		s.RemoveFile(fileID)
		return nil
	})
	if errors.Is(err, core.ErrSessionNotFound) || errors.Is(err, core.ErrSessionExpired) {
		return nil
	}
	return err
}

// RemoveSession drops all files owned by the session.
func (m *InMemoryStore) RemoveSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.files, sessionID)
	m.mu.Unlock()
	return nil
}

// StaleFiles enumerates files not modified within the retention window.
func (m *InMemoryStore) StaleFiles(ctx context.Context, olderThan time.Duration) ([]core.FileLocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := m.clock()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stale []core.FileLocation
	for sessionID, files := range m.files {
		for fileID, f := range files {
			if now.Sub(f.modified) >= olderThan {
				stale = append(stale, core.FileLocation{SessionID: sessionID, FileID: fileID})
			}
		}
	}
	return stale, nil
}
