package alloc

import (
	"context"
	"io"
	"testing"

	"github.com/fleetworks/allocd/internal/intake"
	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
	"github.com/fleetworks/allocd/pkg/id"
	"github.com/fleetworks/allocd/pkg/log"
)

func newTestIDs() func() id.ID {
	g := id.NewGenerator()
	return func() id.ID { return g.Next() }
}

type fixedTunables struct{ t Tunables }

func (f fixedTunables) Tunables(context.Context) (Tunables, error) { return f.t, nil }

func testTunables() Tunables {
	return Tunables{
		ClaimLeaseMs:     60_000,
		ClaimMaxItems:    16,
		BatchSize:        10,
		PriorityWeight:   10,
		AgeWeight:        1,
		MaxClaimAttempts: 3,
		ReleaseScanLimit: 1024,
	}
}

func quietLogger() log.Logger {
	return log.NewLogger(log.WithOutput(log.NewWriterOutput(io.Discard)))
}

func newTestCore(t *testing.T, tun Tunables) (*Core, *intake.Store) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := intake.NewStore(db)
	return NewWithLogger(db, store, fixedTunables{tun}, quietLogger()), store
}

func submit(t *testing.T, store *intake.Store, website string, priority, createdMs int64) intake.Request {
	t.Helper()
	req, err := store.Submit(context.Background(), intake.SubmitInput{Website: website, Priority: priority}, createdMs)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return req
}
