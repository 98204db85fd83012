package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/fleetworks/allocd/internal/alloc"
	"github.com/fleetworks/allocd/internal/audit"
	cfgpkg "github.com/fleetworks/allocd/internal/config"
	"github.com/fleetworks/allocd/internal/intake"
	"github.com/fleetworks/allocd/internal/settings"
	"github.com/fleetworks/allocd/internal/stats"
	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
	"github.com/fleetworks/allocd/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        log.Logger
}

// Runtime wires storage, config, and the component stores for a single-node
// instance. Settings are initialized on open so the engine always has a
// complete tunable set.
type Runtime struct {
	db       *pebblestore.DB
	config   cfgpkg.Config
	logger   log.Logger
	requests *intake.Store
	settings *settings.Store
	core     *alloc.Core
	stats    *stats.Aggregator
	audit    *audit.Log
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync, FsyncInterval: opts.FsyncInterval})
	if err != nil {
		return nil, err
	}
	requests := intake.NewStore(db)
	set := settings.NewWithLogger(db, logger)
	if err := set.Initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	core := alloc.NewWithLogger(db, requests, set, logger)
	return &Runtime{
		db:       db,
		config:   opts.Config,
		logger:   logger,
		requests: requests,
		settings: set,
		core:     core,
		stats:    stats.NewWithLogger(db, core, logger),
		audit:    audit.NewWithLogger(db, logger),
	}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime's base logger.
func (r *Runtime) Logger() log.Logger { return r.logger }

// Requests returns the service-request store.
func (r *Runtime) Requests() *intake.Store { return r.requests }

// Settings returns the live-tunable settings store.
func (r *Runtime) Settings() *settings.Store { return r.settings }

// Core returns the allocation engine.
func (r *Runtime) Core() *alloc.Core { return r.core }

// Stats returns the rollup aggregator.
func (r *Runtime) Stats() *stats.Aggregator { return r.stats }

// Audit returns the audit log.
func (r *Runtime) Audit() *audit.Log { return r.audit }
