// Package datachat provides a high-level façade over the session store,
// file registry, operation executor and model adapters, enabling a
// conversational CSV-analysis pipeline to be assembled in a few lines. Most
// applications:
//  1. Load or construct config.Settings
//  2. Create an App via New() (optionally overriding stores, model, logger)
//  3. Call App.Start to launch background expiry, then use App.Runner
//
// Defaults are safe for local development: in-memory session store,
// disk-backed file registry under the configured data directory and a NoOp
// logger. Production deployments typically supply a structured logger and
// durable stores.
package datachat

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/datachat-ai/datachat/config"
	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/logging"
	"github.com/datachat-ai/datachat/model"
	"github.com/datachat-ai/datachat/model/anthropic"
	"github.com/datachat-ai/datachat/model/openai"
	"github.com/datachat-ai/datachat/reaper"
	"github.com/datachat-ai/datachat/registry"
	"github.com/datachat-ai/datachat/runner"
	"github.com/datachat-ai/datachat/session"
)

// Options configure the App beyond what Settings carry.
type Options struct {
	// Model overrides the provider adapter built from Settings.
	Model model.Model
	// InMemoryRegistry swaps the disk-backed registry for the volatile one
	// (tests, demos without a writable data directory).
	InMemoryRegistry bool
	Logger           logging.Logger
}

// App aggregates the wired components. Runner serves requests; the reaper
// runs between Start and Stop.
type App struct {
	Runner   *runner.Runner
	Sessions core.SessionStore
	Registry core.FileRegistry

	reaper *reaper.Reaper
}

// New wires an App from settings with optional overrides.
func New(settings config.Settings, optFns ...func(o *Options)) (*App, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	sessions := session.NewInMemoryStore(func(o *session.Options) {
		o.MaxActiveSessions = settings.MaxActiveSessions
		o.MaxFilesPerSession = settings.MaxFilesPerSession
		o.MaxConversationHistory = settings.MaxConversationHistory
		o.RetentionWindow = settings.SessionTTL.Std()
		o.Logger = logger
	})

	var reg core.FileRegistry
	if opts.InMemoryRegistry {
		reg = registry.NewInMemoryStore(sessions)
	} else {
		diskReg, err := registry.NewDiskStore(settings.DataDir, sessions, func(o *registry.DiskOptions) {
			o.Logger = logger
		})
		if err != nil {
			return nil, err
		}
		reg = diskReg
	}
	// Evictions and expiries cascade to the registry so orphaned storage
	// does not wait for the next sweep.
	sessions.SetOnEvict(func(sessionID string) {
		if err := reg.RemoveSession(context.Background(), sessionID); err != nil {
			logger.Warn("evicted session cleanup failed", "session_id", sessionID, "error", err)
		}
	})

	m := opts.Model
	if m == nil {
		var err error
		m, err = buildModel(settings)
		if err != nil {
			return nil, err
		}
	}

	rp := reaper.New(sessions, reg, func(o *reaper.Options) {
		o.Interval = settings.CleanupInterval.Std()
		o.FileRetention = settings.FileTTL.Std()
		o.Logger = logger
	})

	run := runner.New(m, func(o *runner.Options) {
		o.SessionStore = sessions
		o.Registry = reg
		o.Logger = logger
	})

	return &App{Runner: run, Sessions: sessions, Registry: reg, reaper: rp}, nil
}

func buildModel(settings config.Settings) (model.Model, error) {
	switch settings.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if settings.Model != "" {
				o.Model = settings.Model
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if settings.Model != "" {
				o.Model = anthropicsdk.Model(settings.Model)
			}
			o.APIKey = settings.APIKey
		}), nil
	}
	return nil, fmt.Errorf("unknown provider %q", settings.Provider)
}

// Start launches the background expiry sweeper.
func (a *App) Start(ctx context.Context) { a.reaper.Start(ctx) }

// Stop terminates the sweeper, waiting for an in-flight sweep.
func (a *App) Stop() { a.reaper.Stop() }
