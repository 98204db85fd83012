package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fleetworks/allocd/internal/alloc"
	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
	"github.com/fleetworks/allocd/pkg/log"
)

const (
	prefixDaily = "stats_daily/"
	prefixSite  = "stats_site/"
	cursorKey   = "stats_cursor"

	scanChunk = 512
)

// Daily is the per-day allocation rollup.
type Daily struct {
	Date   string `json:"date"`
	Done   int    `json:"done"`
	Failed int    `json:"failed"`
	Total  int    `json:"total"`
}

// Website is the per-site per-day rollup.
type Website struct {
	Website     string  `json:"website"`
	Date        string  `json:"date"`
	Done        int     `json:"done"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// AggregateResult summarizes one aggregation pass.
type AggregateResult struct {
	Processed int `json:"processed"`
}

// Aggregator folds the engine's terminal-transition log into daily and
// per-website rollups. Incremental passes resume from a stored cursor;
// Rebuild drops everything and re-folds the whole log, which must produce
// the same rollups an incremental history would.
type Aggregator struct {
	db     *pebblestore.DB
	core   *alloc.Core
	mu     sync.Mutex
	logger log.Logger
}

// New creates an aggregator with a default logger.
func New(db *pebblestore.DB, core *alloc.Core) *Aggregator {
	return NewWithLogger(db, core, log.NewLogger())
}

// NewWithLogger creates an aggregator with the provided logger.
func NewWithLogger(db *pebblestore.DB, core *alloc.Core, logger log.Logger) *Aggregator {
	return &Aggregator{db: db, core: core, logger: logger.With(log.Component("stats"))}
}

func dateOf(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02")
}

func dailyKey(date string) []byte { return []byte(prefixDaily + date) }

func siteKey(website, date string) []byte {
	return []byte(prefixSite + website + "/" + date)
}

// Aggregate folds log entries appended since the last pass.
func (a *Aggregator) Aggregate(ctx context.Context) (AggregateResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var res AggregateResult
	cursor, err := a.loadCursor()
	if err != nil {
		return res, err
	}
	for {
		outcomes, next, err := a.core.ScanOutcomes(ctx, cursor, scanChunk)
		if err != nil {
			return res, fmt.Errorf("stats: scan outcomes: %w", err)
		}
		if len(outcomes) == 0 {
			break
		}
		if err := a.fold(ctx, outcomes, next); err != nil {
			return res, err
		}
		res.Processed += len(outcomes)
		cursor = next
		if len(outcomes) < scanChunk {
			break
		}
	}
	if res.Processed > 0 {
		a.logger.Debug("aggregated outcomes", log.Int("processed", res.Processed))
	}
	return res, nil
}

// Rebuild drops every rollup and the cursor, then re-folds the whole log.
func (a *Aggregator) Rebuild(ctx context.Context) (AggregateResult, error) {
	a.mu.Lock()
	if err := a.db.DeletePrefix(ctx, []byte(prefixDaily)); err != nil {
		a.mu.Unlock()
		return AggregateResult{}, fmt.Errorf("stats: clear daily: %w", err)
	}
	if err := a.db.DeletePrefix(ctx, []byte(prefixSite)); err != nil {
		a.mu.Unlock()
		return AggregateResult{}, fmt.Errorf("stats: clear sites: %w", err)
	}
	if err := a.db.Delete([]byte(cursorKey)); err != nil && !pebblestore.IsNotFound(err) {
		a.mu.Unlock()
		return AggregateResult{}, fmt.Errorf("stats: clear cursor: %w", err)
	}
	a.mu.Unlock()
	a.logger.Info("rebuilding rollups")
	return a.Aggregate(ctx)
}

// fold applies one chunk of outcomes and advances the cursor in the same
// commit, so a crash never double-counts a chunk.
func (a *Aggregator) fold(ctx context.Context, outcomes []alloc.Outcome, cursor []byte) error {
	dailies := map[string]*Daily{}
	sites := map[string]*Website{}
	for _, o := range outcomes {
		date := dateOf(o.DoneMs)
		d, ok := dailies[date]
		if !ok {
			loaded, err := a.loadDaily(date)
			if err != nil {
				return err
			}
			d = &loaded
			dailies[date] = d
		}
		sk := o.Website + "/" + date
		w, ok := sites[sk]
		if !ok {
			loaded, err := a.loadSite(o.Website, date)
			if err != nil {
				return err
			}
			w = &loaded
			sites[sk] = w
		}
		switch o.Outcome {
		case alloc.ItemDone:
			d.Done++
			w.Done++
		case alloc.ItemFailed:
			d.Failed++
			w.Failed++
		}
		d.Total = d.Done + d.Failed
	}

	b := a.db.NewBatch()
	defer b.Close()
	for date, d := range dailies {
		raw, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if err := b.Set(dailyKey(date), raw, nil); err != nil {
			return err
		}
	}
	for _, w := range sites {
		if n := w.Done + w.Failed; n > 0 {
			w.SuccessRate = float64(w.Done) / float64(n)
		}
		raw, err := json.Marshal(w)
		if err != nil {
			return err
		}
		if err := b.Set(siteKey(w.Website, w.Date), raw, nil); err != nil {
			return err
		}
	}
	if err := b.Set([]byte(cursorKey), cursor, nil); err != nil {
		return err
	}
	if err := a.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("stats: commit rollups: %w", err)
	}
	return nil
}

func (a *Aggregator) loadCursor() ([]byte, error) {
	raw, err := a.db.Get([]byte(cursorKey))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stats: read cursor: %w", err)
	}
	return raw, nil
}

func (a *Aggregator) loadDaily(date string) (Daily, error) {
	raw, err := a.db.Get(dailyKey(date))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Daily{Date: date}, nil
		}
		return Daily{}, err
	}
	var d Daily
	if err := json.Unmarshal(raw, &d); err != nil {
		return Daily{}, fmt.Errorf("stats: decode daily %s: %w", date, err)
	}
	return d, nil
}

func (a *Aggregator) loadSite(website, date string) (Website, error) {
	raw, err := a.db.Get(siteKey(website, date))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Website{Website: website, Date: date}, nil
		}
		return Website{}, err
	}
	var w Website
	if err := json.Unmarshal(raw, &w); err != nil {
		return Website{}, fmt.Errorf("stats: decode site %s/%s: %w", website, date, err)
	}
	return w, nil
}

// DailyRange lists daily rollups within [from, to], inclusive, ordered by
// date. Empty bounds are open.
func (a *Aggregator) DailyRange(_ context.Context, from, to string) ([]Daily, error) {
	it, err := a.db.PrefixIter([]byte(prefixDaily))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []Daily
	for ok := it.First(); ok; ok = it.Next() {
		date := string(it.Key()[len(prefixDaily):])
		if from != "" && date < from {
			continue
		}
		if to != "" && date > to {
			break
		}
		var d Daily
		if err := json.Unmarshal(it.Value(), &d); err != nil {
			return nil, fmt.Errorf("stats: decode daily %s: %w", date, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// WebsiteStats lists per-site rollups, optionally restricted to one website.
func (a *Aggregator) WebsiteStats(_ context.Context, website string) ([]Website, error) {
	prefix := []byte(prefixSite)
	if website != "" {
		prefix = []byte(prefixSite + website + "/")
	}
	it, err := a.db.PrefixIter(prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []Website
	for ok := it.First(); ok; ok = it.Next() {
		var w Website
		if err := json.Unmarshal(it.Value(), &w); err != nil {
			return nil, fmt.Errorf("stats: decode site rollup: %w", err)
		}
		out = append(out, w)
	}
	return out, nil
}
