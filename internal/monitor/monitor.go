package monitor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	allocsvc "github.com/fleetworks/allocd/internal/services/alloc"
	"github.com/fleetworks/allocd/pkg/log"
)

// Monitor periodically drives the allocation engine: batch generation for
// new requests, lease-expiry recovery, stats aggregation, and audit
// retention. It is constructed and started explicitly by the server; the
// engine itself never self-schedules.
type Monitor struct {
	svc      *allocsvc.Service
	interval time.Duration
	workers  int
	logger   log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor. workers bounds how many maintenance tasks run
// concurrently within one tick.
func New(svc *allocsvc.Service, interval time.Duration, workers int, logger log.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Monitor{
		svc:      svc,
		interval: interval,
		workers:  workers,
		logger:   logger.With(log.Component("monitor")),
	}
}

// Start launches the tick loop. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
	m.logger.Info("monitor started",
		log.Int64("interval_ms", m.interval.Milliseconds()), log.Int("workers", m.workers))
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one maintenance pass. Failures are logged; a tick never crashes
// the loop.
func (m *Monitor) Tick(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	g.Go(func() error {
		if _, err := m.svc.ProcessNewRequests(ctx); err != nil {
			m.logger.Error("allocation pass failed", log.Err(err))
		}
		return nil
	})
	g.Go(func() error {
		if _, err := m.svc.ReleaseExpired(ctx); err != nil {
			m.logger.Error("lease sweep failed", log.Err(err))
		}
		return nil
	})
	g.Go(func() error {
		if _, err := m.svc.AggregateStats(ctx); err != nil {
			m.logger.Error("stats aggregation failed", log.Err(err))
		}
		return nil
	})
	g.Go(func() error {
		if err := m.svc.TrimAudit(ctx); err != nil {
			m.logger.Error("audit trim failed", log.Err(err))
		}
		return nil
	})
	_ = g.Wait()
}
