package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestSubmitAndGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	req, err := s.Submit(ctx, SubmitInput{Website: "example.com", Priority: 5}, 1000)
	require.NoError(t, err)
	require.Equal(t, StatusNew, req.Status)
	require.False(t, req.ID.IsZero())

	got, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, req.Website, got.Website)
	require.Equal(t, int64(5), got.Priority)
	require.Equal(t, int64(1000), got.CreatedMs)
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Submit(ctx, SubmitInput{Website: ""}, 1000)
	require.Error(t, err)

	_, err = s.Submit(ctx, SubmitInput{Website: "a.com", Priority: -1}, 1000)
	require.Error(t, err)
}

func TestScanNewOrderAndExclusions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first, err := s.Submit(ctx, SubmitInput{Website: "a.com"}, 100)
	require.NoError(t, err)
	second, err := s.Submit(ctx, SubmitInput{Website: "b.com"}, 200)
	require.NoError(t, err)
	deleted, err := s.Submit(ctx, SubmitInput{Website: "c.com"}, 300)
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, deleted.ID))

	got, err := s.ScanNew(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, first.ID, got[0].ID)
	require.Equal(t, second.ID, got[1].ID)
}

func TestBeginAllocationIsConditional(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	req, err := s.Submit(ctx, SubmitInput{Website: "a.com"}, 100)
	require.NoError(t, err)

	ok, err := s.BeginAllocation(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Second attempt sees PENDING and must refuse.
	ok, err = s.BeginAllocation(ctx, req.ID)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)

	// That request no longer shows up as NEW.
	news, err := s.ScanNew(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, news)
}

func TestBeginAllocationSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	req, err := s.Submit(ctx, SubmitInput{Website: "a.com"}, 100)
	require.NoError(t, err)
	require.NoError(t, s.SoftDelete(ctx, req.ID))

	ok, err := s.BeginAllocation(ctx, req.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStatusTransitions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	req, err := s.Submit(ctx, SubmitInput{Website: "a.com"}, 100)
	require.NoError(t, err)

	ok, err := s.BeginAllocation(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.MarkRunning(ctx, req.ID, "tool-7"))
	got, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, got.Status)
	require.Equal(t, "tool-7", got.ToolID)

	// MarkRunning on a non-PENDING request is a no-op.
	require.NoError(t, s.MarkRunning(ctx, req.ID, "tool-8"))
	got, err = s.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "tool-7", got.ToolID)

	require.NoError(t, s.MarkCompleted(ctx, req.ID))
	got, err = s.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
}

func TestMarkError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	req, err := s.Submit(ctx, SubmitInput{Website: "a.com"}, 100)
	require.NoError(t, err)
	require.NoError(t, s.MarkError(ctx, req.ID, "boom"))

	got, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusError, got.Status)
	require.Equal(t, "boom", got.Error)

	errored, err := s.List(ctx, StatusError, 10)
	require.NoError(t, err)
	require.Len(t, errored, 1)
}

func TestListByStatusAndAll(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.Submit(ctx, SubmitInput{Website: "a.com"}, int64(100+i))
		require.NoError(t, err)
	}
	all, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)

	news, err := s.List(ctx, StatusNew, 2)
	require.NoError(t, err)
	require.Len(t, news, 2)
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)
	var missing = s.ids.Next()
	_, err := s.Get(context.Background(), missing)
	require.ErrorIs(t, err, ErrNotFound)
}
