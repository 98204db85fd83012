package allocsvc

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetworks/allocd/internal/alloc"
	cfgpkg "github.com/fleetworks/allocd/internal/config"
	"github.com/fleetworks/allocd/internal/intake"
	"github.com/fleetworks/allocd/internal/runtime"
	"github.com/fleetworks/allocd/internal/settings"
	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
	"github.com/fleetworks/allocd/pkg/log"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	logger := log.NewLogger(log.WithOutput(log.NewWriterOutput(io.Discard)))
	rt, err := runtime.Open(runtime.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
		Config:  cfgpkg.Default(),
		Logger:  logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return New(rt)
}

func withClock(t *testing.T, ms int64) {
	t.Helper()
	prev := nowMs
	nowMs = func() int64 { return ms }
	t.Cleanup(func() { nowMs = prev })
}

func TestEndToEndFlow(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	withClock(t, 1_000_000)

	req, err := s.SubmitRequest(ctx, intake.SubmitInput{Website: "example.com", Priority: 3})
	require.NoError(t, err)

	res, err := s.ProcessNewRequests(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.RequestsProcessed)
	require.Equal(t, 10, res.ItemsCreated)

	claimed, err := s.Claim(ctx, "worker-1", 4)
	require.NoError(t, err)
	require.Len(t, claimed, 4)
	require.NotEmpty(t, claimed[0].Receipt)

	require.NoError(t, s.Complete(ctx, claimed[0].ID, alloc.ItemDone, json.RawMessage(`{"ok":true}`)))

	stats, err := s.QueueStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, stats.Total)
	require.Equal(t, 6, stats.ByStatus[alloc.ItemPending])
	require.Equal(t, 3, stats.ByStatus[alloc.ItemClaimed])
	require.Equal(t, 1, stats.ByStatus[alloc.ItemDone])

	agg, err := s.AggregateStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, agg.Processed)

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, intake.StatusRunning, got.Status)
}

func TestMutationsAreAudited(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	withClock(t, 1_000_000)

	_, err := s.SubmitRequest(ctx, intake.SubmitInput{Website: "example.com"})
	require.NoError(t, err)
	_, err = s.ProcessNewRequests(ctx)
	require.NoError(t, err)
	_, err = s.Claim(ctx, "w1", 1)
	require.NoError(t, err)
	require.NoError(t, s.UpdateSetting(ctx, settings.KeyBatchSize, "5"))

	events, err := s.AuditTrail(ctx, 100, 0)
	require.NoError(t, err)
	actions := make(map[string]int)
	for _, ev := range events {
		actions[ev.Action]++
	}
	require.Equal(t, 1, actions["request.submit"])
	require.Equal(t, 1, actions["alloc.process"])
	require.Equal(t, 1, actions["alloc.claim"])
	require.Equal(t, 1, actions["config.update"])
}

func TestReleaseExpiredThroughService(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	withClock(t, 1_000_000)

	_, err := s.SubmitRequest(ctx, intake.SubmitInput{Website: "example.com"})
	require.NoError(t, err)
	_, err = s.ProcessNewRequests(ctx)
	require.NoError(t, err)
	_, err = s.Claim(ctx, "w1", 2)
	require.NoError(t, err)

	// Before expiry nothing is released.
	res, err := s.ReleaseExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Released)

	withClock(t, 1_000_000+61_000)
	res, err = s.ReleaseExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Released)
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	entries, err := s.ListSettings(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	require.NoError(t, s.UpdateSetting(ctx, settings.KeyClaimMaxItems, "4"))
	require.Error(t, s.UpdateSetting(ctx, "bogus", "1"))
	require.NoError(t, s.ResetSettings(ctx))

	entries, err = s.ListSettings(ctx)
	require.NoError(t, err)
	for _, e := range entries {
		require.Equal(t, e.Default, e.Value)
	}
}

func TestHealth(t *testing.T) {
	require.NoError(t, newTestService(t).Health(context.Background()))
}
