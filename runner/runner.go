package runner

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/dataop"
	"github.com/datachat-ai/datachat/logging"
	"github.com/datachat-ai/datachat/model"
	"github.com/datachat-ai/datachat/registry"
	"github.com/datachat-ai/datachat/session"
	"github.com/datachat-ai/datachat/table"
)

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// SessionStore persists session state. Defaults to an in-memory store.
	SessionStore core.SessionStore
	// Registry catalogues uploaded tables. Defaults to an in-memory
	// registry wired to the session store.
	Registry core.FileRegistry
	// StorageRetries is how many additional attempts transient storage
	// failures get before surfacing. Other error kinds never retry.
	StorageRetries int
	Logger         logging.Logger
}

// Runner coordinates the analysis pipeline. Public methods are safe for
// concurrent use; per-session ordering is delegated to the session store.
type Runner struct {
	model    model.Model
	sessions core.SessionStore
	registry core.FileRegistry
	retries  int
	logger   logging.Logger
}

// New constructs a Runner with optional overrides. Unset stores default to
// in-memory implementations, which is sufficient for tests and demos.
func New(m model.Model, optFns ...func(o *Options)) *Runner {
	opts := Options{
		StorageRetries: 2,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.Registry == nil {
		opts.Registry = registry.NewInMemoryStore(opts.SessionStore)
	}
	return &Runner{
		model:    m,
		sessions: opts.SessionStore,
		registry: opts.Registry,
		retries:  opts.StorageRetries,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Sessions exposes the underlying session store for wiring (reaper, tests).
func (r *Runner) Sessions() core.SessionStore { return r.sessions }

// Registry exposes the underlying file registry for wiring.
func (r *Runner) Registry() core.FileRegistry { return r.registry }

// ChatResult is the outcome of one exchange: the model's answer plus the
// executed operation's result, if the plan contained one.
type ChatResult struct {
	SessionID        string         `json:"session_id"`
	AnalysisID       string         `json:"analysis_id,omitempty"`
	Answer           string         `json:"answer"`
	Result           *dataop.Result `json:"data_results,omitempty"`
	DataType         string         `json:"data_type,omitempty"`
	SuggestedVizType string         `json:"suggested_viz_type,omitempty"`
	CodeSnippet      string         `json:"code_snippet,omitempty"`
	Suggestions      []string       `json:"suggestions,omitempty"`
}

// Upload registers an already-parsed table under the session, creating the
// session on first contact.
func (r *Runner) Upload(ctx context.Context, sessionID, filename string, t *table.Table) (*core.RegisterResult, error) {
	if _, err := r.getOrCreate(sessionID); err != nil {
		return nil, err
	}
	var res *core.RegisterResult
	err := r.withStorageRetry(ctx, func() error {
		var err error
		res, err = r.registry.Register(ctx, sessionID, filename, t)
		return err
	})
	return res, err
}

// Chat runs one exchange: the query goes to the model along with the
// session history and the target file's context; a planned operation is
// validated, executed and saved as an analysis result; the exchange is
// appended to the session history. Validation, capacity and unknown-column
// failures surface unchanged so the caller can report the offending field.
func (r *Runner) Chat(ctx context.Context, sessionID, fileID, query string) (*ChatResult, error) {
	sess, err := r.getOrCreate(sessionID)
	if err != nil {
		return nil, err
	}

	req := model.Request{Query: query, History: sess.History}
	var tbl *table.Table
	if fileID != "" {
		var meta *core.FileMeta
		if err := r.withStorageRetry(ctx, func() error {
			var err error
			meta, err = r.registry.Summary(ctx, sessionID, fileID)
			return err
		}); err != nil {
			return nil, err
		}
		if err := r.withStorageRetry(ctx, func() error {
			var err error
			tbl, err = r.registry.Retrieve(ctx, sessionID, fileID)
			return err
		}); err != nil {
			return nil, err
		}
		req.Data = &model.DataContext{Meta: *meta, Sample: tbl.Head(3).Records()}
	}

	resp, err := r.model.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &ChatResult{
		SessionID:        sessionID,
		Answer:           resp.Answer,
		DataType:         resp.DataType,
		SuggestedVizType: resp.SuggestedVizType,
		CodeSnippet:      resp.CodeSnippet,
		Suggestions:      resp.Suggestions,
	}

	if len(resp.Operation) > 0 {
		if tbl == nil {
			return nil, core.ErrFileNotFound
		}
		desc, err := dataop.ParseDescriptor(resp.Operation)
		if err != nil {
			return nil, err
		}
		result, err := dataop.Apply(ctx, tbl, desc)
		if err != nil {
			return nil, err
		}
		out.Result = result
		out.AnalysisID = core.NewID()
		if err := r.withStorageRetry(ctx, func() error {
			return r.registry.SaveAnalysis(ctx, sessionID, fileID, out.AnalysisID, out)
		}); err != nil {
			// The analysis already succeeded; losing the saved copy is not
			// worth failing the exchange over.
			r.logger.Warn("could not save analysis result",
				"session_id", sessionID, "file_id", fileID, "error", err)
			out.AnalysisID = ""
		}
	}

	payload, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	entry := core.ConversationEntry{
		Timestamp: time.Now().UTC(),
		Query:     query,
		Response:  payload,
		FileID:    fileID,
	}
	if err := r.sessions.AppendConversation(sessionID, entry); err != nil {
		return nil, err
	}
	return out, nil
}

// History returns the session's conversation, optionally filtered to one
// file.
func (r *Runner) History(ctx context.Context, sessionID, fileID string) ([]core.ConversationEntry, error) {
	sess, err := r.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if fileID == "" {
		return sess.History, nil
	}
	return sess.ConversationForFile(fileID), nil
}

// EndSession deletes the session and all storage it owns.
func (r *Runner) EndSession(ctx context.Context, sessionID string) error {
	r.sessions.Delete(sessionID)
	return r.registry.RemoveSession(ctx, sessionID)
}

// getOrCreate fetches the session, creating a fresh one when it is absent
// or expired.
func (r *Runner) getOrCreate(sessionID string) (*core.Session, error) {
	sess, err := r.sessions.Get(sessionID)
	if errors.Is(err, core.ErrSessionNotFound) || errors.Is(err, core.ErrSessionExpired) {
		return r.sessions.Create(sessionID)
	}
	return sess, err
}

// withStorageRetry retries fn on transient storage failures only, up to the
// configured budget. All other error kinds are terminal for the request.
func (r *Runner) withStorageRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if err == nil || !core.IsRetryable(err) {
			return err
		}
		r.logger.Warn("retrying after storage error", "attempt", attempt+1, "error", err)
	}
	return err
}
