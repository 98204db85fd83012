package alloc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fleetworks/allocd/internal/intake"
	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
	"github.com/fleetworks/allocd/pkg/id"
	"github.com/fleetworks/allocd/pkg/log"
)

var (
	// ErrNotFound is returned for unknown item IDs.
	ErrNotFound = errors.New("alloc: item not found")
	// ErrConflict is returned when a transition is attempted from a state
	// that does not allow it, e.g. completing an item that is not CLAIMED.
	ErrConflict = errors.New("alloc: state conflict")
)

// Tunables are the live queue settings, read fresh on every operation.
type Tunables struct {
	ClaimLeaseMs     int64
	ClaimMaxItems    int
	BatchSize        int
	PriorityWeight   int64
	AgeWeight        int64
	MaxClaimAttempts int
	ReleaseScanLimit int
}

// TunablesSource supplies a consistent snapshot of the queue settings.
type TunablesSource interface {
	Tunables(ctx context.Context) (Tunables, error)
}

// RequestSource is the request-store contract the engine drives. The
// conditional BeginAllocation transition is what guards a request against
// double batch generation.
type RequestSource interface {
	ScanNew(ctx context.Context, limit int) ([]intake.Request, error)
	BeginAllocation(ctx context.Context, rid id.ID) (bool, error)
	MarkRunning(ctx context.Context, rid id.ID, worker string) error
	MarkCompleted(ctx context.Context, rid id.ID) error
	MarkError(ctx context.Context, rid id.ID, msg string) error
}

// Core owns the allocation keyspace. All writes go through mu and commit as
// one Pebble batch per operation.
type Core struct {
	db       *pebblestore.DB
	mu       sync.Mutex
	ids      *id.Generator
	requests RequestSource
	tunables TunablesSource
	logger   log.Logger
}

// New creates the allocation core with a default logger.
func New(db *pebblestore.DB, requests RequestSource, tunables TunablesSource) *Core {
	return NewWithLogger(db, requests, tunables, log.NewLogger())
}

// NewWithLogger creates the allocation core with the provided logger.
func NewWithLogger(db *pebblestore.DB, requests RequestSource, tunables TunablesSource, logger log.Logger) *Core {
	return &Core{
		db:       db,
		ids:      id.NewGenerator(),
		requests: requests,
		tunables: tunables,
		logger:   logger.With(log.Component("alloc")),
	}
}

// GetItem loads one item record.
func (c *Core) GetItem(_ context.Context, itemID id.ID) (Item, error) {
	raw, err := c.db.Get(itemKey(itemID))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	var it Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return Item{}, fmt.Errorf("alloc: decode item %s: %w", itemID, err)
	}
	return it, nil
}

// Batches lists the batches generated for a request in number order.
func (c *Core) Batches(_ context.Context, reqID id.ID) ([]Batch, error) {
	it, err := c.db.PrefixIter(batchPrefix(reqID))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []Batch
	for ok := it.First(); ok; ok = it.Next() {
		var b Batch
		if err := json.Unmarshal(it.Value(), &b); err != nil {
			return nil, fmt.Errorf("alloc: decode batch: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// RequestItems lists every item allocated for a request.
func (c *Core) RequestItems(ctx context.Context, reqID id.ID) ([]Item, error) {
	it, err := c.db.PrefixIter(reqItemsPrefix(reqID))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []Item
	for ok := it.First(); ok; ok = it.Next() {
		itemID, err := idFromKeyTail(it.Key())
		if err != nil {
			continue
		}
		item, err := c.GetItem(ctx, itemID)
		if err != nil {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func marshalInto(b *pebblestore.Batch, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(key, raw, nil)
}
