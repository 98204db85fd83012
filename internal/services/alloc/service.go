package allocsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetworks/allocd/internal/alloc"
	"github.com/fleetworks/allocd/internal/audit"
	"github.com/fleetworks/allocd/internal/intake"
	"github.com/fleetworks/allocd/internal/runtime"
	"github.com/fleetworks/allocd/internal/settings"
	"github.com/fleetworks/allocd/internal/stats"
	"github.com/fleetworks/allocd/pkg/id"
	logpkg "github.com/fleetworks/allocd/pkg/log"
)

// nowMs is the service clock, injectable in tests.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// Service is the transport-facing facade over the allocation engine. It adds
// audit records and logging around the core operations; state semantics live
// in the underlying packages.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// New creates the service with the runtime's logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, rt.Logger())
}

// NewWithLogger creates the service with a custom logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Service{rt: rt, logger: logger.With(logpkg.Component("allocsvc"))}
}

func (s *Service) auditEvent(ctx context.Context, action, actor string, detail any) {
	var raw json.RawMessage
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			raw = b
		}
	}
	s.rt.Audit().Append(ctx, audit.Event{Ms: nowMs(), Action: action, Actor: actor, Detail: raw})
}

// SubmitRequest stores a new service request.
func (s *Service) SubmitRequest(ctx context.Context, in intake.SubmitInput) (intake.Request, error) {
	req, err := s.rt.Requests().Submit(ctx, in, nowMs())
	if err != nil {
		return intake.Request{}, err
	}
	s.auditEvent(ctx, "request.submit", "", map[string]string{
		"request": req.ID.String(), "website": req.Website,
	})
	return req, nil
}

// GetRequest loads one request.
func (s *Service) GetRequest(ctx context.Context, rid id.ID) (intake.Request, error) {
	return s.rt.Requests().Get(ctx, rid)
}

// ListRequests lists requests, optionally by status.
func (s *Service) ListRequests(ctx context.Context, status string, limit int) ([]intake.Request, error) {
	return s.rt.Requests().List(ctx, status, limit)
}

// DeleteRequest soft-deletes a request.
func (s *Service) DeleteRequest(ctx context.Context, rid id.ID) error {
	if err := s.rt.Requests().SoftDelete(ctx, rid); err != nil {
		return err
	}
	s.auditEvent(ctx, "request.delete", "", map[string]string{"request": rid.String()})
	return nil
}

// ProcessNewRequests runs one allocation pass.
func (s *Service) ProcessNewRequests(ctx context.Context) (alloc.ProcessResult, error) {
	res, err := s.rt.Core().ProcessNewRequests(ctx, nowMs())
	if err != nil {
		return res, err
	}
	if res.RequestsProcessed > 0 || len(res.Errors) > 0 {
		s.auditEvent(ctx, "alloc.process", "", res)
	}
	return res, nil
}

// ReleaseExpired runs one lease-expiry sweep.
func (s *Service) ReleaseExpired(ctx context.Context) (alloc.ReleaseResult, error) {
	res, err := s.rt.Core().ReleaseExpiredClaims(ctx, nowMs())
	if err != nil {
		return res, err
	}
	if res.Released > 0 || res.Poisoned > 0 {
		s.auditEvent(ctx, "alloc.release", "", res)
	}
	return res, nil
}

// Claim hands pending items to a worker.
func (s *Service) Claim(ctx context.Context, worker string, max int) ([]alloc.ClaimedItem, error) {
	items, err := s.rt.Core().Claim(ctx, worker, max, nowMs())
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		ids := make([]string, len(items))
		for i, it := range items {
			ids[i] = it.ID.String()
		}
		s.auditEvent(ctx, "alloc.claim", worker, map[string]any{"items": ids})
	}
	return items, nil
}

// Complete records a worker's outcome for an item.
func (s *Service) Complete(ctx context.Context, itemID id.ID, outcome string, result json.RawMessage) error {
	if err := s.rt.Core().Complete(ctx, itemID, outcome, result, nowMs()); err != nil {
		return err
	}
	s.auditEvent(ctx, "alloc.complete", "", map[string]string{
		"item": itemID.String(), "outcome": outcome,
	})
	return nil
}

// Pending lists pending items in claim order, optionally CEL-filtered.
func (s *Service) Pending(ctx context.Context, filter string, limit int) ([]alloc.Item, error) {
	return s.rt.Core().Pending(ctx, filter, limit, nowMs())
}

// QueueStatistics aggregates queue composition.
func (s *Service) QueueStatistics(ctx context.Context) (alloc.Statistics, error) {
	return s.rt.Core().GetStatistics(ctx, nowMs())
}

// ListSettings lists the live settings.
func (s *Service) ListSettings(ctx context.Context) ([]settings.Entry, error) {
	return s.rt.Settings().List(ctx)
}

// UpdateSetting changes one setting.
func (s *Service) UpdateSetting(ctx context.Context, key, value string) error {
	if err := s.rt.Settings().Update(ctx, key, value); err != nil {
		return err
	}
	s.auditEvent(ctx, "config.update", "", map[string]string{"key": key, "value": value})
	return nil
}

// ResetSettings restores every setting to its default.
func (s *Service) ResetSettings(ctx context.Context) error {
	if err := s.rt.Settings().ResetDefaults(ctx); err != nil {
		return err
	}
	s.auditEvent(ctx, "config.reset", "", nil)
	return nil
}

// InitSettings inserts defaults for missing settings.
func (s *Service) InitSettings(ctx context.Context) error {
	if err := s.rt.Settings().Initialize(ctx); err != nil {
		return err
	}
	s.auditEvent(ctx, "config.init", "", nil)
	return nil
}

// AggregateStats folds new outcomes into the rollups.
func (s *Service) AggregateStats(ctx context.Context) (stats.AggregateResult, error) {
	return s.rt.Stats().Aggregate(ctx)
}

// RebuildStats re-folds the whole outcome log.
func (s *Service) RebuildStats(ctx context.Context) (stats.AggregateResult, error) {
	res, err := s.rt.Stats().Rebuild(ctx)
	if err != nil {
		return res, err
	}
	s.auditEvent(ctx, "stats.rebuild", "", res)
	return res, nil
}

// DailyStats lists daily rollups within [from, to].
func (s *Service) DailyStats(ctx context.Context, from, to string) ([]stats.Daily, error) {
	return s.rt.Stats().DailyRange(ctx, from, to)
}

// WebsiteStats lists per-site rollups.
func (s *Service) WebsiteStats(ctx context.Context, website string) ([]stats.Website, error) {
	return s.rt.Stats().WebsiteStats(ctx, website)
}

// AuditTrail reads recent audit events.
func (s *Service) AuditTrail(ctx context.Context, limit int, sinceMs int64) ([]audit.Event, error) {
	return s.rt.Audit().Read(ctx, limit, sinceMs)
}

// TrimAudit enforces the configured audit retention.
func (s *Service) TrimAudit(ctx context.Context) error {
	deleted, err := s.rt.Audit().Trim(ctx, s.rt.Config().AuditMaxEntries)
	if err != nil {
		return fmt.Errorf("allocsvc: trim audit: %w", err)
	}
	if deleted > 0 {
		s.logger.Debug("trimmed audit log", logpkg.Int("deleted", deleted))
	}
	return nil
}

// Health checks the underlying store.
func (s *Service) Health(ctx context.Context) error {
	return s.rt.CheckHealth(ctx)
}
