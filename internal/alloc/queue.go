package alloc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fleetworks/allocd/pkg/id"
	"github.com/fleetworks/allocd/pkg/log"
)

// Claim atomically hands up to max pending items to a worker, in
// score-descending then oldest-first order. Claimed items get a lease; the
// worker must Complete each item before the lease expires or the item
// returns to the queue. Returns zero items when the queue is empty; callers
// poll.
func (c *Core) Claim(ctx context.Context, worker string, max int, nowMs int64) ([]ClaimedItem, error) {
	if worker == "" {
		return nil, fmt.Errorf("alloc: worker is required")
	}
	tun, err := c.tunables.Tunables(ctx)
	if err != nil {
		return nil, fmt.Errorf("alloc: read tunables: %w", err)
	}
	if max <= 0 || max > tun.ClaimMaxItems {
		max = tun.ClaimMaxItems
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	it, err := c.db.PrefixIter([]byte(prefixPending))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	b := c.db.NewBatch()
	defer b.Close()
	var claimed []ClaimedItem
	for ok := it.First(); ok && len(claimed) < max; ok = it.Next() {
		itemID, err := idFromKeyTail(it.Key())
		if err != nil {
			continue
		}
		item, err := c.GetItem(ctx, itemID)
		if err != nil {
			continue
		}
		// Stale index entries for items already past PENDING are skipped
		// and swept here rather than failing the claim.
		if item.Status != ItemPending {
			if err := b.Delete(append([]byte(nil), it.Key()...), nil); err != nil {
				return nil, err
			}
			continue
		}
		leaseMs := LeaseFor(item.Score, tun.ClaimLeaseMs)
		item.Status = ItemClaimed
		item.ClaimedMs = nowMs
		item.LeaseMs = leaseMs
		item.ExpiresMs = nowMs + leaseMs
		item.Attempts++
		item.Worker = worker
		if err := marshalInto(b, itemKey(item.ID), item); err != nil {
			return nil, err
		}
		if err := b.Delete(append([]byte(nil), it.Key()...), nil); err != nil {
			return nil, err
		}
		if err := b.Set(claimedKey(item.ExpiresMs, item.ID), nil, nil); err != nil {
			return nil, err
		}
		claimed = append(claimed, ClaimedItem{Item: item, Receipt: uuid.NewString()})
	}
	if b.Count() > 0 {
		if err := c.db.CommitBatch(ctx, b); err != nil {
			return nil, fmt.Errorf("alloc: commit claim: %w", err)
		}
	}
	if len(claimed) > 0 {
		c.logger.Debug("claimed items",
			log.Str("worker", worker), log.Int("count", len(claimed)))
		c.markRequestsRunning(ctx, worker, claimed)
	}
	return claimed, nil
}

// markRequestsRunning advances each distinct request of the claimed items.
// The transition is PENDING -> RUNNING only; the store ignores the rest.
func (c *Core) markRequestsRunning(ctx context.Context, worker string, claimed []ClaimedItem) {
	seen := make(map[id.ID]bool, len(claimed))
	for _, ci := range claimed {
		if seen[ci.RequestID] {
			continue
		}
		seen[ci.RequestID] = true
		if err := c.requests.MarkRunning(ctx, ci.RequestID, worker); err != nil {
			c.logger.Warn("mark request running failed",
				log.Str("request", ci.RequestID.String()), log.Err(err))
		}
	}
}

// Complete records a worker's terminal outcome for a claimed item. outcome
// must be DONE or FAILED. An item that is not currently CLAIMED returns
// ErrConflict: the lease already expired and the item was rehanded, or the
// item already completed. Once every item of the request is terminal the
// request itself is marked COMPLETED.
func (c *Core) Complete(ctx context.Context, itemID id.ID, outcome string, result json.RawMessage, nowMs int64) error {
	if outcome != ItemDone && outcome != ItemFailed {
		return fmt.Errorf("alloc: invalid outcome %q", outcome)
	}
	item, err := c.complete(ctx, itemID, outcome, result, nowMs)
	if err != nil {
		return err
	}
	c.maybeCompleteRequest(ctx, item.RequestID)
	return nil
}

func (c *Core) complete(ctx context.Context, itemID id.ID, outcome string, result json.RawMessage, nowMs int64) (Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	if item.Status != ItemClaimed {
		return Item{}, fmt.Errorf("%w: item %s is %s", ErrConflict, itemID, item.Status)
	}

	expiresMs := item.ExpiresMs
	worker := item.Worker
	item.Status = outcome
	item.ClaimedMs = 0
	item.LeaseMs = 0
	item.ExpiresMs = 0
	item.Result = result

	b := c.db.NewBatch()
	defer b.Close()
	if err := marshalInto(b, itemKey(item.ID), item); err != nil {
		return Item{}, err
	}
	if err := b.Delete(claimedKey(expiresMs, item.ID), nil); err != nil {
		return Item{}, err
	}
	if err := marshalInto(b, outcomeKey(nowMs, item.ID), Outcome{
		ItemID:    item.ID,
		RequestID: item.RequestID,
		Website:   item.Website,
		Outcome:   outcome,
		Worker:    worker,
		DoneMs:    nowMs,
	}); err != nil {
		return Item{}, err
	}
	if err := c.db.CommitBatch(ctx, b); err != nil {
		return Item{}, fmt.Errorf("alloc: commit completion: %w", err)
	}
	return item, nil
}

// maybeCompleteRequest marks the request COMPLETED when no non-terminal item
// remains. Best effort; a failure here only delays the request rollup.
func (c *Core) maybeCompleteRequest(ctx context.Context, reqID id.ID) {
	items, err := c.RequestItems(ctx, reqID)
	if err != nil {
		c.logger.Warn("list request items failed",
			log.Str("request", reqID.String()), log.Err(err))
		return
	}
	for _, it := range items {
		if !it.Terminal() {
			return
		}
	}
	if err := c.requests.MarkCompleted(ctx, reqID); err != nil {
		c.logger.Warn("mark request completed failed",
			log.Str("request", reqID.String()), log.Err(err))
	}
}

// ItemError records a per-item failure from a release run.
type ItemError struct {
	ItemID id.ID  `json:"item_id"`
	Err    string `json:"error"`
}

// ReleaseResult summarizes one ReleaseExpiredClaims run.
type ReleaseResult struct {
	Released int         `json:"released"`
	Poisoned int         `json:"poisoned"`
	Errors   []ItemError `json:"errors,omitempty"`
}

// ReleaseExpiredClaims returns items whose lease has expired to the pending
// queue, restoring their original score and allocation-time position. An item
// that already reached the attempt ceiling is poisoned to FAILED instead of
// being rehanded forever. Row-level: one bad record never stops the sweep.
func (c *Core) ReleaseExpiredClaims(ctx context.Context, nowMs int64) (ReleaseResult, error) {
	var res ReleaseResult
	tun, err := c.tunables.Tunables(ctx)
	if err != nil {
		return res, fmt.Errorf("alloc: read tunables: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	it, err := c.db.PrefixIter([]byte(prefixClaimed))
	if err != nil {
		return res, err
	}
	defer it.Close()

	b := c.db.NewBatch()
	defer b.Close()
	scanned := 0
	for ok := it.First(); ok && scanned < tun.ReleaseScanLimit; ok = it.Next() {
		if claimedKeyExpiry(it.Key()) > nowMs {
			break
		}
		scanned++
		key := append([]byte(nil), it.Key()...)
		itemID, err := idFromKeyTail(key)
		if err != nil {
			res.Errors = append(res.Errors, ItemError{Err: err.Error()})
			continue
		}
		item, err := c.GetItem(ctx, itemID)
		if err != nil {
			res.Errors = append(res.Errors, ItemError{ItemID: itemID, Err: err.Error()})
			continue
		}
		if item.Status != ItemClaimed {
			// Stale entry left behind by an older transition.
			if err := b.Delete(key, nil); err != nil {
				return res, err
			}
			continue
		}
		if err := b.Delete(key, nil); err != nil {
			return res, err
		}
		if item.Attempts >= tun.MaxClaimAttempts {
			item.Status = ItemFailed
			item.ClaimedMs = 0
			item.LeaseMs = 0
			item.ExpiresMs = 0
			if err := marshalInto(b, itemKey(item.ID), item); err != nil {
				return res, err
			}
			if err := marshalInto(b, outcomeKey(nowMs, item.ID), Outcome{
				ItemID:    item.ID,
				RequestID: item.RequestID,
				Website:   item.Website,
				Outcome:   ItemFailed,
				Worker:    item.Worker,
				DoneMs:    nowMs,
			}); err != nil {
				return res, err
			}
			res.Poisoned++
			c.logger.Warn("item poisoned after repeated lease expiry",
				log.Str("item", item.ID.String()), log.Int("attempts", item.Attempts))
			continue
		}
		item.Status = ItemPending
		item.ClaimedMs = 0
		item.LeaseMs = 0
		item.ExpiresMs = 0
		if err := marshalInto(b, itemKey(item.ID), item); err != nil {
			return res, err
		}
		if err := b.Set(pendingKey(item.Score, item.AllocMs, item.ID), nil, nil); err != nil {
			return res, err
		}
		res.Released++
	}
	if b.Count() > 0 {
		if err := c.db.CommitBatch(ctx, b); err != nil {
			return res, fmt.Errorf("alloc: commit release: %w", err)
		}
	}
	if res.Released > 0 || res.Poisoned > 0 {
		c.logger.Info("lease sweep",
			log.Int("released", res.Released), log.Int("poisoned", res.Poisoned))
	}
	return res, nil
}

// Pending lists pending items in claim order without mutating anything.
// filter is an optional CEL expression over the item's attributes.
func (c *Core) Pending(ctx context.Context, filter string, limit int, nowMs int64) ([]Item, error) {
	if limit <= 0 {
		limit = 100
	}
	f, err := newItemFilter(filter)
	if err != nil {
		return nil, fmt.Errorf("alloc: invalid filter: %w", err)
	}
	it, err := c.db.PrefixIter([]byte(prefixPending))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	out := make([]Item, 0, limit)
	for ok := it.First(); ok && len(out) < limit; ok = it.Next() {
		itemID, err := idFromKeyTail(it.Key())
		if err != nil {
			continue
		}
		item, err := c.GetItem(ctx, itemID)
		if err != nil || item.Status != ItemPending {
			continue
		}
		if !f.Eval(item, nowMs) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// Statistics aggregates queue composition by status, score band, and pending
// age band.
type Statistics struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ScoreBands map[string]int `json:"score_bands"`
	AgeBands   map[string]int `json:"age_bands"`
}

func scoreBand(score int64) string {
	switch {
	case score < 100:
		return "0-99"
	case score < 1000:
		return "100-999"
	default:
		return "1000+"
	}
}

func ageBand(allocMs, nowMs int64) string {
	age := nowMs - allocMs
	switch {
	case age < 60_000:
		return "<1m"
	case age < 600_000:
		return "1m-10m"
	default:
		return ">10m"
	}
}

// GetStatistics folds every item record into the aggregate view.
func (c *Core) GetStatistics(_ context.Context, nowMs int64) (Statistics, error) {
	stats := Statistics{
		ByStatus:   map[string]int{},
		ScoreBands: map[string]int{},
		AgeBands:   map[string]int{},
	}
	it, err := c.db.PrefixIter([]byte(prefixItem))
	if err != nil {
		return stats, err
	}
	defer it.Close()
	for ok := it.First(); ok; ok = it.Next() {
		var item Item
		if err := json.Unmarshal(it.Value(), &item); err != nil {
			continue
		}
		stats.Total++
		stats.ByStatus[item.Status]++
		stats.ScoreBands[scoreBand(item.Score)]++
		if item.Status == ItemPending {
			stats.AgeBands[ageBand(item.AllocMs, nowMs)]++
		}
	}
	return stats, nil
}
