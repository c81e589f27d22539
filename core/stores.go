package core

import (
	"context"
	"time"

	"github.com/datachat-ai/datachat/table"
)

// Mutation is a caller-supplied change applied to a session under the
// store's per-id exclusivity. It receives a private working copy; returning
// an error discards the copy so a failed mutation never partially applies.
type Mutation func(s *Session) error

// SessionStore persists TTL-bounded session records. Implementations must
// serialize mutations per session id (updates on distinct ids proceed
// independently) so overlapping read-modify-write sequences cannot lose
// writes, and must treat sessions past their expiry deadline as absent even
// before a reaper sweep removes them.
type SessionStore interface {
	// Get returns a snapshot of the session or ErrSessionNotFound /
	// ErrSessionExpired.
	Get(id string) (*Session, error)

	// Create inserts a new empty session, evicting the least-recently-active
	// session first when the live-session capacity is reached. An existing
	// session under the same id is replaced.
	Create(id string) (*Session, error)

	// Update applies the mutation atomically with respect to other updates
	// on the same id and refreshes the expiry deadline on success. Returns
	// the updated snapshot.
	Update(id string, fn Mutation) (*Session, error)

	// AddFile appends a file reference, enforcing the per-session file cap.
	AddFile(id string, ref FileRef) error

	// AppendConversation appends a history entry, truncating oldest entries
	// beyond the history cap.
	AppendConversation(id string, e ConversationEntry) error

	// Delete removes the session. Removing a non-existent id is a no-op.
	Delete(id string)

	// IDs returns a snapshot of the stored session ids, expired entries
	// included. Intended for sweep enumeration.
	IDs() []string

	// ExpireIfStale removes the session if its retention window has elapsed,
	// reporting whether a removal happened. Safe to call concurrently with
	// live traffic.
	ExpireIfStale(id string) bool
}

// ColumnInfo is the cached descriptive metadata for one column, computed
// once at registration.
type ColumnInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	NullCount   int    `json:"null_count"`
	UniqueCount int    `json:"unique_count"`
}

// FileMeta is the metadata record persisted alongside each registered table.
type FileMeta struct {
	FileID           string       `json:"file_id"`
	SessionID        string       `json:"session_id"`
	OriginalFilename string       `json:"original_filename"`
	CreatedAt        time.Time    `json:"created_at"`
	Size             int64        `json:"size"`
	RowCount         int          `json:"row_count"`
	ColumnCount      int          `json:"column_count"`
	Columns          []ColumnInfo `json:"columns"`
}

// RegisterResult is returned from FileRegistry.Register: the new reference,
// the cached metadata and a small leading-row sample for prompts and upload
// responses.
type RegisterResult struct {
	Ref    FileRef          `json:"ref"`
	Meta   FileMeta         `json:"meta"`
	Sample []map[string]any `json:"sample_data"`
}

// FileLocation addresses one registered file for sweep enumeration.
type FileLocation struct {
	SessionID string
	FileID    string
}

// FileRegistry catalogues uploaded tables per session. Registration
// delegates the file-count check to the SessionStore so the check and the
// reference insert are atomic under the same per-session discipline.
type FileRegistry interface {
	// Register persists the table, computes metadata once and records the
	// reference in the owning session.
	Register(ctx context.Context, sessionID, filename string, t *table.Table) (*RegisterResult, error)

	// Retrieve loads the table content from storage.
	Retrieve(ctx context.Context, sessionID, fileID string) (*table.Table, error)

	// Summary returns the metadata cached at registration without reloading
	// the table.
	Summary(ctx context.Context, sessionID, fileID string) (*FileMeta, error)

	// SaveAnalysis appends a saved analysis result under the file, keyed by
	// analysis id.
	SaveAnalysis(ctx context.Context, sessionID, fileID, analysisID string, result any) error

	// ListAnalyses returns the analysis ids saved for the file.
	ListAnalyses(ctx context.Context, sessionID, fileID string) ([]string, error)

	// RemoveFile deletes one file's storage and drops its session reference
	// when the session is still alive.
	RemoveFile(ctx context.Context, sessionID, fileID string) error

	// RemoveSession deletes all storage owned by the session.
	RemoveSession(ctx context.Context, sessionID string) error

	// StaleFiles enumerates files whose storage has not been modified within
	// the retention window, independent of session liveness.
	StaleFiles(ctx context.Context, olderThan time.Duration) ([]FileLocation, error)
}
