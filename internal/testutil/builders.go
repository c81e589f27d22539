package testutil

import (
	"encoding/json"
	"time"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/table"
)

// SessionBuilder constructs sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").File("f1", "a.csv").Exchange("q", "a").Build()
type SessionBuilder struct {
	sess *core.Session
}

// NewSessionBuilder starts a session fixture with both timestamps at now
// and a one hour retention window.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{sess: core.NewSession(id, time.Now(), time.Hour)}
}

// File appends a file reference (chainable).
func (b *SessionBuilder) File(fileID, filename string) *SessionBuilder {
	b.sess.Files = append(b.sess.Files, core.FileRef{
		FileID:   fileID,
		Filename: filename,
		AddedAt:  b.sess.CreatedAt,
	})
	return b
}

// Exchange appends a history entry with a plain-text answer (chainable).
func (b *SessionBuilder) Exchange(query, answer string) *SessionBuilder {
	raw, _ := json.Marshal(map[string]string{"answer": answer})
	b.sess.History = append(b.sess.History, core.ConversationEntry{
		Timestamp: time.Now(),
		Query:     query,
		Response:  raw,
	})
	return b
}

// LastActive backdates the activity timestamp and expiry deadline
// (chainable).
func (b *SessionBuilder) LastActive(at time.Time, retention time.Duration) *SessionBuilder {
	b.sess.LastActive = at
	b.sess.ExpiresAt = at.Add(retention)
	return b
}

// Build returns the finished session.
func (b *SessionBuilder) Build() *core.Session { return b.sess }

// SalesTable is the canonical fixture used across executor tests:
//
//	cat  sales
//	A    10
//	A    20
//	B    5
func SalesTable() *table.Table {
	return table.NewBuilder().
		AddString("cat", []string{"A", "A", "B"}).
		AddFloat64("sales", []float64{10, 20, 5}).
		MustBuild()
}
