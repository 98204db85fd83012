package alloc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/fleetworks/allocd/internal/intake"
	"github.com/fleetworks/allocd/pkg/id"
)

func TestClaimOrdersByScoreThenOldest(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 1
	core, store := newTestCore(t, tun)

	// Same createdMs, different priorities: score order is purely priority.
	low := submit(t, store, "low.com", 1, 1000)
	high := submit(t, store, "high.com", 9, 1000)
	mid := submit(t, store, "mid.com", 5, 1000)
	if _, err := core.ProcessNewRequests(ctx, 1000); err != nil {
		t.Fatalf("process: %v", err)
	}

	claimed, err := core.Claim(ctx, "w1", 3, 2000)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("claimed = %d, want 3", len(claimed))
	}
	wantOrder := []id.ID{high.ID, mid.ID, low.ID}
	for i, want := range wantOrder {
		if claimed[i].RequestID != want {
			t.Fatalf("claim[%d] from request %s, want %s", i, claimed[i].RequestID, want)
		}
	}
}

func TestClaimFIFOWithinEqualScore(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 1
	core, store := newTestCore(t, tun)

	first := submit(t, store, "first.com", 2, 1000)
	second := submit(t, store, "second.com", 2, 1000)

	// Allocate within the same age second so scores stay equal while allocMs
	// differs.
	if _, err := core.allocate(ctx, mustGet(t, store, first.ID), tun, 1100); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if _, err := core.allocate(ctx, mustGet(t, store, second.ID), tun, 1900); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	claimed, err := core.Claim(ctx, "w1", 2, 2000)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed = %d, want 2", len(claimed))
	}
	if claimed[0].RequestID != first.ID || claimed[1].RequestID != second.ID {
		t.Fatal("equal-score items must claim oldest allocation first")
	}
}

func mustGet(t *testing.T, store *intake.Store, rid id.ID) intake.Request {
	t.Helper()
	req, err := store.Get(context.Background(), rid)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	return req
}

func TestConcurrentClaimersNeverShareAnItem(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 40
	tun.ClaimMaxItems = 50
	core, store := newTestCore(t, tun)

	submit(t, store, "example.com", 1, 1000)
	if _, err := core.ProcessNewRequests(ctx, 1000); err != nil {
		t.Fatalf("process: %v", err)
	}

	const workers = 8
	var mu sync.Mutex
	seen := map[id.ID]string{}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				claimed, err := core.Claim(ctx, worker, 3, 2000)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, ci := range claimed {
					if prev, dup := seen[ci.ID]; dup {
						t.Errorf("item %s handed to both %s and %s", ci.ID, prev, worker)
					}
					seen[ci.ID] = worker
				}
				mu.Unlock()
			}
		}("worker-" + string(rune('a'+w)))
	}
	wg.Wait()
	if len(seen) != 40 {
		t.Fatalf("claimed %d distinct items, want 40", len(seen))
	}
}

func TestClaimClampsToConfiguredMax(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 30
	tun.ClaimMaxItems = 5
	core, store := newTestCore(t, tun)

	submit(t, store, "example.com", 1, 1000)
	if _, err := core.ProcessNewRequests(ctx, 1000); err != nil {
		t.Fatalf("process: %v", err)
	}

	claimed, err := core.Claim(ctx, "w1", 100, 2000)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 5 {
		t.Fatalf("claimed = %d, want 5", len(claimed))
	}
	for _, ci := range claimed {
		if ci.Status != ItemClaimed || ci.Worker != "w1" || ci.Attempts != 1 {
			t.Fatalf("unexpected claimed item: %+v", ci.Item)
		}
		if ci.ExpiresMs != 2000+tun.ClaimLeaseMs {
			t.Fatalf("expiry = %d", ci.ExpiresMs)
		}
		if ci.Receipt == "" {
			t.Fatal("missing receipt")
		}
	}
}

func TestClaimEmptyQueueReturnsNothing(t *testing.T) {
	core, _ := newTestCore(t, testTunables())
	claimed, err := core.Claim(context.Background(), "w1", 5, 1000)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("claimed = %d, want 0", len(claimed))
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 1
	core, store := newTestCore(t, tun)

	submit(t, store, "example.com", 1, 1000)
	if _, err := core.ProcessNewRequests(ctx, 1000); err != nil {
		t.Fatalf("process: %v", err)
	}
	claimed, err := core.Claim(ctx, "w1", 1, 2000)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(claimed))
	}
	itemID := claimed[0].ID

	result := json.RawMessage(`{"pages":3}`)
	if err := core.Complete(ctx, itemID, ItemDone, result, 3000); err != nil {
		t.Fatalf("complete: %v", err)
	}
	item, err := core.GetItem(ctx, itemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Status != ItemDone || string(item.Result) != `{"pages":3}` {
		t.Fatalf("unexpected item: %+v", item)
	}

	// Completing again conflicts: terminal states never change.
	err = core.Complete(ctx, itemID, ItemFailed, nil, 4000)
	if !errorsIsConflict(err) {
		t.Fatalf("want conflict, got %v", err)
	}

	// A later release sweep must not resurrect it.
	res, err := core.ReleaseExpiredClaims(ctx, 999_000)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if res.Released != 0 || res.Poisoned != 0 {
		t.Fatalf("release touched terminal item: %+v", res)
	}
}

func errorsIsConflict(err error) bool { return errors.Is(err, ErrConflict) }

func TestCompleteUnknownItem(t *testing.T) {
	core, _ := newTestCore(t, testTunables())
	missing := newTestIDs()()
	err := core.Complete(context.Background(), missing, ItemDone, nil, 1000)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCompleteRejectsInvalidOutcome(t *testing.T) {
	core, _ := newTestCore(t, testTunables())
	err := core.Complete(context.Background(), newTestIDs()(), "MAYBE", nil, 1000)
	if err == nil {
		t.Fatal("want validation error")
	}
}

func TestCompleteUnclaimedItemConflicts(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 1
	core, store := newTestCore(t, tun)

	req := submit(t, store, "example.com", 1, 1000)
	if _, err := core.ProcessNewRequests(ctx, 1000); err != nil {
		t.Fatalf("process: %v", err)
	}
	items, err := core.RequestItems(ctx, req.ID)
	if err != nil || len(items) != 1 {
		t.Fatalf("items: %v (%d)", err, len(items))
	}
	if err := core.Complete(ctx, items[0].ID, ItemDone, nil, 2000); !errorsIsConflict(err) {
		t.Fatalf("want conflict for PENDING item, got %v", err)
	}
}

func TestCompletingAllItemsCompletesRequest(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 2
	core, store := newTestCore(t, tun)

	req := submit(t, store, "example.com", 1, 1000)
	if _, err := core.ProcessNewRequests(ctx, 1000); err != nil {
		t.Fatalf("process: %v", err)
	}
	claimed, err := core.Claim(ctx, "w1", 2, 2000)
	if err != nil || len(claimed) != 2 {
		t.Fatalf("claim: %v (%d)", err, len(claimed))
	}
	if got := mustGet(t, store, req.ID); got.Status != intake.StatusRunning {
		t.Fatalf("request status = %s, want RUNNING", got.Status)
	}

	if err := core.Complete(ctx, claimed[0].ID, ItemDone, nil, 3000); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := mustGet(t, store, req.ID); got.Status != intake.StatusRunning {
		t.Fatalf("request completed early: %s", got.Status)
	}
	if err := core.Complete(ctx, claimed[1].ID, ItemFailed, nil, 4000); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := mustGet(t, store, req.ID); got.Status != intake.StatusCompleted {
		t.Fatalf("request status = %s, want COMPLETED", got.Status)
	}
}

func TestLeaseRecoveryBoundary(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 1
	core, store := newTestCore(t, tun)

	submit(t, store, "example.com", 1, 0)
	if _, err := core.ProcessNewRequests(ctx, 0); err != nil {
		t.Fatalf("process: %v", err)
	}
	claimed, err := core.Claim(ctx, "w1", 1, 0)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d)", err, len(claimed))
	}
	itemID := claimed[0].ID

	// Lease is 60s. At t=59s the claim still holds.
	res, err := core.ReleaseExpiredClaims(ctx, 59_000)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if res.Released != 0 {
		t.Fatal("released an unexpired claim")
	}
	if _, err := core.Claim(ctx, "w2", 1, 59_000); err != nil {
		t.Fatalf("claim: %v", err)
	}
	item, _ := core.GetItem(ctx, itemID)
	if item.Worker != "w1" {
		t.Fatal("second worker stole a live claim")
	}

	// At t=61s the sweep returns it, original position intact.
	res, err = core.ReleaseExpiredClaims(ctx, 61_000)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if res.Released != 1 {
		t.Fatalf("released = %d, want 1", res.Released)
	}
	item, err = core.GetItem(ctx, itemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Status != ItemPending || item.ClaimedMs != 0 || item.LeaseMs != 0 {
		t.Fatalf("unexpected released item: %+v", item)
	}

	reclaimed, err := core.Claim(ctx, "w2", 1, 61_000)
	if err != nil || len(reclaimed) != 1 {
		t.Fatalf("reclaim: %v (%d)", err, len(reclaimed))
	}
	if reclaimed[0].ID != itemID || reclaimed[0].Attempts != 2 {
		t.Fatalf("unexpected reclaim: %+v", reclaimed[0].Item)
	}

	// The lapsed worker's late completion conflicts once someone else holds
	// the item and completes it.
	if err := core.Complete(ctx, itemID, ItemDone, nil, 62_000); err != nil {
		t.Fatalf("complete by w2: %v", err)
	}
	if err := core.Complete(ctx, itemID, ItemDone, nil, 63_000); !errorsIsConflict(err) {
		t.Fatalf("want conflict for stale completion, got %v", err)
	}
}

func TestPoisonAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 1
	tun.MaxClaimAttempts = 2
	core, store := newTestCore(t, tun)

	submit(t, store, "example.com", 1, 0)
	if _, err := core.ProcessNewRequests(ctx, 0); err != nil {
		t.Fatalf("process: %v", err)
	}

	now := int64(0)
	// Attempt 1: claim and let the lease lapse.
	claimed, err := core.Claim(ctx, "w1", 1, now)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v", err)
	}
	itemID := claimed[0].ID
	now += tun.ClaimLeaseMs + 1000
	if res, _ := core.ReleaseExpiredClaims(ctx, now); res.Released != 1 {
		t.Fatal("first release failed")
	}

	// Attempt 2: claim again, lapse again. Attempts now reaches the ceiling.
	if claimed, err = core.Claim(ctx, "w1", 1, now); err != nil || len(claimed) != 1 {
		t.Fatalf("reclaim: %v", err)
	}
	now += tun.ClaimLeaseMs + 1000
	res, err := core.ReleaseExpiredClaims(ctx, now)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if res.Poisoned != 1 || res.Released != 0 {
		t.Fatalf("unexpected sweep: %+v", res)
	}

	item, err := core.GetItem(ctx, itemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Status != ItemFailed {
		t.Fatalf("status = %s, want FAILED", item.Status)
	}
	// Poisoned items never reappear in the queue.
	if again, err := core.Claim(ctx, "w2", 1, now); err != nil || len(again) != 0 {
		t.Fatalf("poisoned item reclaimed: %v (%d)", err, len(again))
	}
}

func TestPendingFilterAndReadOnly(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 2
	core, store := newTestCore(t, tun)

	submit(t, store, "alpha.com", 9, 1000)
	submit(t, store, "beta.com", 1, 1000)
	if _, err := core.ProcessNewRequests(ctx, 1000); err != nil {
		t.Fatalf("process: %v", err)
	}

	all, err := core.Pending(ctx, "", 100, 2000)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("pending = %d, want 4", len(all))
	}
	// Claim order: both alpha items (score 90) before both beta items.
	if all[0].Website != "alpha.com" || all[1].Website != "alpha.com" {
		t.Fatalf("unexpected order: %s %s", all[0].Website, all[1].Website)
	}

	filtered, err := core.Pending(ctx, `website == "beta.com" && score < 50`, 100, 2000)
	if err != nil {
		t.Fatalf("filtered pending: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("filtered = %d, want 2", len(filtered))
	}

	if _, err := core.Pending(ctx, `website ==`, 100, 2000); err == nil {
		t.Fatal("want error for malformed filter")
	}

	// Listing never consumed anything.
	again, err := core.Pending(ctx, "", 100, 2000)
	if err != nil || len(again) != 4 {
		t.Fatalf("pending after pending: %v (%d)", err, len(again))
	}
}

func TestGetStatistics(t *testing.T) {
	ctx := context.Background()
	tun := testTunables()
	tun.BatchSize = 3
	core, store := newTestCore(t, tun)

	submit(t, store, "example.com", 1, 1000)
	if _, err := core.ProcessNewRequests(ctx, 1000); err != nil {
		t.Fatalf("process: %v", err)
	}
	claimed, err := core.Claim(ctx, "w1", 1, 2000)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v", err)
	}
	if err := core.Complete(ctx, claimed[0].ID, ItemDone, nil, 3000); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stats, err := core.GetStatistics(ctx, 3000)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3", stats.Total)
	}
	if stats.ByStatus[ItemPending] != 2 || stats.ByStatus[ItemDone] != 1 {
		t.Fatalf("unexpected by-status: %+v", stats.ByStatus)
	}
	if stats.ScoreBands["0-99"] != 3 {
		t.Fatalf("unexpected score bands: %+v", stats.ScoreBands)
	}
	if stats.AgeBands["<1m"] != 2 {
		t.Fatalf("unexpected age bands: %+v", stats.AgeBands)
	}
}
