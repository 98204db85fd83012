package alloc

import (
	"context"
	"errors"
	"testing"

	"github.com/fleetworks/allocd/internal/intake"
	"github.com/fleetworks/allocd/pkg/id"
)

func TestProcessNewRequestsCreatesBatchAndItems(t *testing.T) {
	ctx := context.Background()
	core, store := newTestCore(t, testTunables())

	req := submit(t, store, "example.com", 5, 1000)

	res, err := core.ProcessNewRequests(ctx, 31_000)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.RequestsProcessed != 1 || res.BatchesCreated != 1 || res.ItemsCreated != 10 {
		t.Fatalf("unexpected result: %+v", res)
	}

	got, err := store.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != intake.StatusPending {
		t.Fatalf("request status = %s, want PENDING", got.Status)
	}

	batches, err := core.Batches(ctx, req.ID)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if len(batches) != 1 || batches[0].Number != 1 || batches[0].Items != 10 {
		t.Fatalf("unexpected batches: %+v", batches)
	}

	items, err := core.RequestItems(ctx, req.ID)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 10 {
		t.Fatalf("items = %d, want 10", len(items))
	}
	// score = 5*10 + 30s*1
	for _, it := range items {
		if it.Status != ItemPending || it.Score != 80 || it.AllocMs != 31_000 {
			t.Fatalf("unexpected item: %+v", it)
		}
	}

	pending, err := core.Pending(ctx, "", 100, 31_000)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 10 {
		t.Fatalf("pending = %d, want 10", len(pending))
	}
}

func TestProcessNewRequestsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	core, store := newTestCore(t, testTunables())

	req := submit(t, store, "example.com", 1, 1000)

	if _, err := core.ProcessNewRequests(ctx, 2000); err != nil {
		t.Fatalf("process: %v", err)
	}
	res, err := core.ProcessNewRequests(ctx, 3000)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if res.RequestsProcessed != 0 || res.ItemsCreated != 0 {
		t.Fatalf("second run created work: %+v", res)
	}
	batches, err := core.Batches(ctx, req.ID)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
}

func TestProcessNewRequestsSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	core, store := newTestCore(t, testTunables())

	req := submit(t, store, "example.com", 1, 1000)
	if err := store.SoftDelete(ctx, req.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	res, err := core.ProcessNewRequests(ctx, 2000)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.RequestsProcessed != 0 {
		t.Fatalf("processed deleted request: %+v", res)
	}
}

// failingRequests simulates a request store whose conditional transition
// errors, to verify the run records the failure and keeps going.
type failingRequests struct {
	reqs []intake.Request
	bad  map[id.ID]bool
	*intake.Store
}

func (f *failingRequests) ScanNew(context.Context, int) ([]intake.Request, error) {
	return f.reqs, nil
}

func (f *failingRequests) BeginAllocation(ctx context.Context, rid id.ID) (bool, error) {
	if f.bad[rid] {
		return false, errors.New("transition failed")
	}
	return f.Store.BeginAllocation(ctx, rid)
}

func TestProcessNewRequestsCollectsPerRequestErrors(t *testing.T) {
	ctx := context.Background()
	core, store := newTestCore(t, testTunables())

	good := submit(t, store, "a.com", 1, 1000)
	bad := submit(t, store, "b.com", 1, 1000)
	core.requests = &failingRequests{
		reqs:  []intake.Request{bad, good},
		bad:   map[id.ID]bool{bad.ID: true},
		Store: store,
	}

	res, err := core.ProcessNewRequests(ctx, 2000)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.RequestsProcessed != 1 {
		t.Fatalf("processed = %d, want 1", res.RequestsProcessed)
	}
	if len(res.Errors) != 1 || res.Errors[0].RequestID != bad.ID {
		t.Fatalf("unexpected errors: %+v", res.Errors)
	}
}

func TestBatchNumbersIncrementPerRequest(t *testing.T) {
	ctx := context.Background()
	core, store := newTestCore(t, testTunables())

	req := submit(t, store, "example.com", 1, 1000)
	if _, err := core.ProcessNewRequests(ctx, 2000); err != nil {
		t.Fatalf("process: %v", err)
	}

	// A second allocation for the same request appends batch 2.
	if _, err := core.allocate(ctx, req, testTunables(), 3000); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	batches, err := core.Batches(ctx, req.ID)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if len(batches) != 2 || batches[0].Number != 1 || batches[1].Number != 2 {
		t.Fatalf("unexpected batches: %+v", batches)
	}
}
