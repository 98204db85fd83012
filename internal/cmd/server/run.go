package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/fleetworks/allocd/internal/config"
	"github.com/fleetworks/allocd/internal/monitor"
	"github.com/fleetworks/allocd/internal/runtime"
	httpserver "github.com/fleetworks/allocd/internal/server/http"
	allocsvc "github.com/fleetworks/allocd/internal/services/alloc"
	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
	logpkg "github.com/fleetworks/allocd/pkg/log"
)

// getenv is swappable in tests.
var getenv = func(key string) string { return os.Getenv(key) }

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// Options configures a server run.
type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Run starts the HTTP server and monitor and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	storeDir := filepath.Join(opts.DataDir, "store")

	cfg := &logpkg.Config{
		Level:  getenvDefault("ALLOCD_LOG_LEVEL", "info"),
		Format: getenvDefault("ALLOCD_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(cfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("starting allocd server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", storeDir),
		logpkg.Str("level", cfg.Level),
		logpkg.Str("format", cfg.Format),
	)

	svc := allocsvc.NewWithLogger(rt, procLogger)
	hsrv := httpserver.New(rt, svc)

	var mon *monitor.Monitor
	if !opts.Config.MonitorDisabled {
		mon = monitor.New(svc,
			time.Duration(opts.Config.MonitorIntervalMs)*time.Millisecond,
			opts.Config.MonitorWorkers,
			procLogger)
		mon.Start(sctx)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server error", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	if mon != nil {
		mon.Stop()
	}
	hsrv.Close()
	wg.Wait()
	procLogger.Info("allocd server stopped")
	return nil
}
