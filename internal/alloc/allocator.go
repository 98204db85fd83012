package alloc

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/fleetworks/allocd/internal/intake"
	"github.com/fleetworks/allocd/pkg/id"
	"github.com/fleetworks/allocd/pkg/log"
)

// processScanLimit bounds how many NEW requests one run picks up. Remaining
// requests are handled on the next tick.
const processScanLimit = 256

// RequestError records a per-request failure from an allocation run.
type RequestError struct {
	RequestID id.ID  `json:"request_id"`
	Err       string `json:"error"`
}

// ProcessResult summarizes one ProcessNewRequests run.
type ProcessResult struct {
	RequestsProcessed int            `json:"requests_processed"`
	BatchesCreated    int            `json:"batches_created"`
	ItemsCreated      int            `json:"items_created"`
	Errors            []RequestError `json:"errors,omitempty"`
}

// ProcessNewRequests scans NEW requests in creation order and generates one
// allocation batch of PENDING items per request. Each request is first
// advanced NEW -> PENDING through the store's conditional transition, so a
// request picked up by a concurrent run is skipped, never double-batched.
// A request whose batch generation fails is marked ERROR and the run
// continues with the rest.
func (c *Core) ProcessNewRequests(ctx context.Context, nowMs int64) (ProcessResult, error) {
	var res ProcessResult
	tun, err := c.tunables.Tunables(ctx)
	if err != nil {
		return res, fmt.Errorf("alloc: read tunables: %w", err)
	}
	reqs, err := c.requests.ScanNew(ctx, processScanLimit)
	if err != nil {
		return res, fmt.Errorf("alloc: scan new requests: %w", err)
	}
	for _, req := range reqs {
		ok, err := c.requests.BeginAllocation(ctx, req.ID)
		if err != nil {
			res.Errors = append(res.Errors, RequestError{RequestID: req.ID, Err: err.Error()})
			continue
		}
		if !ok {
			continue
		}
		items, err := c.allocate(ctx, req, tun, nowMs)
		if err != nil {
			c.logger.Error("batch generation failed",
				log.Str("request", req.ID.String()), log.Err(err))
			if merr := c.requests.MarkError(ctx, req.ID, err.Error()); merr != nil {
				c.logger.Error("mark request error failed",
					log.Str("request", req.ID.String()), log.Err(merr))
			}
			res.Errors = append(res.Errors, RequestError{RequestID: req.ID, Err: err.Error()})
			continue
		}
		res.RequestsProcessed++
		res.BatchesCreated++
		res.ItemsCreated += items
	}
	if res.RequestsProcessed > 0 || len(res.Errors) > 0 {
		c.logger.Info("allocation run",
			log.Int("requests", res.RequestsProcessed),
			log.Int("items", res.ItemsCreated),
			log.Int("errors", len(res.Errors)))
	}
	return res, nil
}

// allocate writes one batch of items for the request as a single commit:
// batch record, item records, request-membership entries, and pending-index
// entries all land together or not at all.
func (c *Core) allocate(ctx context.Context, req intake.Request, tun Tunables, nowMs int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.nextBatchNumber(req.ID)
	if err != nil {
		return 0, err
	}
	count := tun.BatchSize
	if count <= 0 {
		count = 1
	}
	score := Score(req.Priority, req.CreatedMs, nowMs, tun.PriorityWeight, tun.AgeWeight)

	b := c.db.NewBatch()
	defer b.Close()
	if err := marshalInto(b, batchKey(req.ID, n), Batch{
		RequestID: req.ID,
		Number:    n,
		Items:     count,
		CreatedMs: nowMs,
	}); err != nil {
		return 0, err
	}
	for i := 0; i < count; i++ {
		item := Item{
			ID:          c.ids.Next(),
			RequestID:   req.ID,
			BatchNumber: n,
			Website:     req.Website,
			Status:      ItemPending,
			Score:       score,
			AllocMs:     nowMs,
			Payload:     req.Config,
		}
		if err := marshalInto(b, itemKey(item.ID), item); err != nil {
			return 0, err
		}
		if err := b.Set(reqItemKey(req.ID, item.ID), nil, nil); err != nil {
			return 0, err
		}
		if err := b.Set(pendingKey(item.Score, item.AllocMs, item.ID), nil, nil); err != nil {
			return 0, err
		}
	}
	if err := c.db.CommitBatch(ctx, b); err != nil {
		return 0, fmt.Errorf("commit batch %d: %w", n, err)
	}
	return count, nil
}

// nextBatchNumber returns max existing batch number for the request plus one.
// Caller holds c.mu.
func (c *Core) nextBatchNumber(reqID id.ID) (uint32, error) {
	it, err := c.db.PrefixIter(batchPrefix(reqID))
	if err != nil {
		return 0, err
	}
	defer it.Close()
	var last uint32
	if it.Last() {
		k := it.Key()
		last = binary.BigEndian.Uint32(k[len(k)-4:])
	}
	return last + 1, nil
}
