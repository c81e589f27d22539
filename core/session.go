package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh opaque identifier (file ids, analysis ids).
func NewID() string { return uuid.NewString() }

// FileRef is a catalogue entry pointing at a registered table. It is
// immutable once created; sessions hold references, the registry owns the
// backing storage.
type FileRef struct {
	FileID   string    `json:"file_id"`
	Filename string    `json:"filename"`
	AddedAt  time.Time `json:"added_at"`
}

// ConversationEntry is one exchange in a session's history. Response is
// opaque to the session core; it is stored and returned verbatim.
type ConversationEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Query     string          `json:"query"`
	Response  json.RawMessage `json:"response"`
	FileID    string          `json:"file_id,omitempty"`
}

// Session is the per-user conversational and file-association state, bounded
// in history length and file count and evicted after a retention window of
// inactivity.
//
// Contract:
//   - Owned exclusively by a SessionStore; mutate only through Update
//   - len(Files) never exceeds the store's per-session file cap
//   - History is oldest-first and capped; overflow drops oldest entries
//   - ExpiresAt is LastActive plus the retention window, recomputed on
//     every successful mutation
type Session struct {
	ID         string              `json:"session_id"`
	CreatedAt  time.Time           `json:"created_at"`
	LastActive time.Time           `json:"last_active"`
	Files      []FileRef           `json:"files"`
	History    []ConversationEntry `json:"conversation_history"`
	ExpiresAt  time.Time           `json:"expires_at"`
}

// NewSession creates an empty session with both timestamps set to now and
// the expiry deadline a full retention window out.
func NewSession(id string, now time.Time, retention time.Duration) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  now,
		LastActive: now,
		Files:      []FileRef{},
		History:    []ConversationEntry{},
		ExpiresAt:  now.Add(retention),
	}
}

// Expired reports whether the retention window has fully elapsed at the
// given instant. The deadline itself counts as expired.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Touch refreshes the activity timestamp and expiry deadline.
func (s *Session) Touch(now time.Time, retention time.Duration) {
	s.LastActive = now
	s.ExpiresAt = now.Add(retention)
}

// AddFile appends a file reference, rejecting with CapacityError once max
// references are held. A non-positive max means unbounded. Existing files
// are never evicted implicitly.
func (s *Session) AddFile(ref FileRef, max int) error {
	if max > 0 && len(s.Files) >= max {
		return &CapacityError{Kind: CapacityFiles, Limit: max}
	}
	s.Files = append(s.Files, ref)
	return nil
}

// RemoveFile drops the reference with the given id if present.
func (s *Session) RemoveFile(fileID string) {
	for i, f := range s.Files {
		if f.FileID == fileID {
			s.Files = append(s.Files[:i], s.Files[i+1:]...)
			return
		}
	}
}

// AppendConversation appends an entry and truncates from the front until the
// history cap holds, so the retained entries are the most recent ones.
func (s *Session) AppendConversation(e ConversationEntry, max int) {
	s.History = append(s.History, e)
	if max > 0 && len(s.History) > max {
		s.History = s.History[len(s.History)-max:]
	}
}

// ConversationForFile returns the history entries associated with a file id,
// preserving order.
func (s *Session) ConversationForFile(fileID string) []ConversationEntry {
	var out []ConversationEntry
	for _, e := range s.History {
		if e.FileID == fileID {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Files = make([]FileRef, len(s.Files))
	copy(clone.Files, s.Files)
	clone.History = make([]ConversationEntry, len(s.History))
	copy(clone.History, s.History)
	return &clone
}
