package reaper

import (
	"context"
	"sync"
	"time"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/logging"
)

// SessionSweeper is the slice of the session store the reaper needs:
// enumeration plus conditional removal of stale entries.
type SessionSweeper interface {
	IDs() []string
	ExpireIfStale(id string) bool
}

// FileSweeper is the slice of the file registry the reaper needs. Files can
// expire independently of their owning session, so both sweeps run even when
// no session expired.
type FileSweeper interface {
	StaleFiles(ctx context.Context, olderThan time.Duration) ([]core.FileLocation, error)
	RemoveFile(ctx context.Context, sessionID, fileID string) error
	RemoveSession(ctx context.Context, sessionID string) error
}

// Options configure a Reaper.
type Options struct {
	// Interval between sweeps.
	Interval time.Duration
	// FileRetention is how long a file's storage may go unmodified before
	// it is deleted, independent of session liveness.
	FileRetention time.Duration
	Logger        logging.Logger
}

// Reaper periodically sweeps expired sessions (cascading their file
// storage) and independently stale files. Start launches the background
// goroutine; Stop waits for it to finish. Sweeps are idempotent and safe to
// run while requests are being served.
type Reaper struct {
	sessions SessionSweeper
	files    FileSweeper
	opts     Options

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New constructs a Reaper with optional overrides. The default interval is
// one hour with a seven day file retention.
func New(sessions SessionSweeper, files FileSweeper, optFns ...func(o *Options)) *Reaper {
	opts := Options{
		Interval:      time.Hour,
		FileRetention: 7 * 24 * time.Hour,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Reaper{sessions: sessions, files: files, opts: opts}
}

// Start launches the periodic sweep loop. It returns immediately; the loop
// stops when Stop is called or the parent context is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for the in-flight sweep, if any.
func (r *Reaper) Stop() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
			<-r.done
		}
	})
}

// Sweep runs one pass over sessions and files. Exported so callers can
// trigger an immediate sweep (startup cleanup, tests).
func (r *Reaper) Sweep(ctx context.Context) {
	r.sweepSessions(ctx)
	r.sweepFiles(ctx)
}

// sweepSessions removes sessions whose retention window has elapsed. The
// per-entity store call holds no lock across the enumeration, so live
// traffic proceeds during the sweep.
func (r *Reaper) sweepSessions(ctx context.Context) {
	removed := 0
	for _, id := range r.sessions.IDs() {
		if ctx.Err() != nil {
			return
		}
		if !r.sessions.ExpireIfStale(id) {
			continue
		}
		removed++
		if err := r.files.RemoveSession(ctx, id); err != nil {
			r.opts.Logger.Error("session file cleanup failed", "session_id", id, "error", err)
		}
	}
	if removed > 0 {
		r.opts.Logger.Info("reaped expired sessions", "count", removed)
	}
}

// sweepFiles removes file storage left unmodified beyond the file retention
// window, even when the owning session is still alive.
func (r *Reaper) sweepFiles(ctx context.Context) {
	stale, err := r.files.StaleFiles(ctx, r.opts.FileRetention)
	if err != nil {
		r.opts.Logger.Error("stale file enumeration failed", "error", err)
		return
	}
	removed := 0
	for _, loc := range stale {
		if ctx.Err() != nil {
			return
		}
		if err := r.files.RemoveFile(ctx, loc.SessionID, loc.FileID); err != nil {
			r.opts.Logger.Error("file cleanup failed",
				"session_id", loc.SessionID, "file_id", loc.FileID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		r.opts.Logger.Info("reaped stale files", "count", removed)
	}
}
