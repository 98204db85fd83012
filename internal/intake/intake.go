package intake

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
	"github.com/fleetworks/allocd/pkg/id"
)

// Request statuses. NEW requests are the allocator's input; PENDING means
// batches exist; RUNNING means at least one item has been claimed; COMPLETED
// means every item reached a terminal state; ERROR marks a request that
// failed batch generation and needs operator attention.
const (
	StatusNew       = "NEW"
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusError     = "ERROR"
)

// ErrNotFound is returned for unknown request IDs.
var ErrNotFound = errors.New("intake: request not found")

// Request is a client-submitted unit of work awaiting allocation.
type Request struct {
	ID        id.ID           `json:"id"`
	Status    string          `json:"status"`
	Deleted   bool            `json:"deleted"`
	ToolID    string          `json:"tool_id,omitempty"`
	Website   string          `json:"website"`
	Priority  int64           `json:"priority"`
	CreatedMs int64           `json:"created_ms"`
	Error     string          `json:"error,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// SubmitInput carries the client-supplied fields of a new request.
type SubmitInput struct {
	Website  string
	Priority int64
	Config   json.RawMessage
}

// Store persists service requests and their status index.
//
// All writes go through the store's mutex so a status transition and its
// index maintenance commit as one batch, which is what makes
// BeginAllocation's NEW check a conditional update.
type Store struct {
	db  *pebblestore.DB
	mu  sync.Mutex
	ids *id.Generator
}

// NewStore creates a request store over the shared database.
func NewStore(db *pebblestore.DB) *Store {
	return &Store{db: db, ids: id.NewGenerator()}
}

const (
	prefixReq       = "req/"
	prefixStatusIdx = "req_status_idx/"
)

func reqKey(rid id.ID) []byte {
	key := make([]byte, len(prefixReq)+16)
	copy(key, prefixReq)
	copy(key[len(prefixReq):], rid[:])
	return key
}

// statusIdxKey orders requests of one status by creation time.
// Format: req_status_idx/{status}/{created_ms 8B BE}/{id 16B}
func statusIdxKey(status string, createdMs int64, rid id.ID) []byte {
	prefix := prefixStatusIdx + status + "/"
	key := make([]byte, len(prefix)+8+16)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(createdMs))
	copy(key[len(prefix)+8:], rid[:])
	return key
}

func statusIdxPrefix(status string) []byte {
	return []byte(prefixStatusIdx + status + "/")
}

// Submit validates and persists a request with status NEW.
func (s *Store) Submit(ctx context.Context, in SubmitInput, nowMs int64) (Request, error) {
	if in.Website == "" {
		return Request{}, errors.New("intake: website is required")
	}
	if in.Priority < 0 {
		return Request{}, errors.New("intake: priority must be >= 0")
	}
	req := Request{
		ID:        s.ids.Next(),
		Status:    StatusNew,
		Website:   in.Website,
		Priority:  in.Priority,
		CreatedMs: nowMs,
		Config:    in.Config,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.db.NewBatch()
	defer b.Close()
	val, err := json.Marshal(req)
	if err != nil {
		return Request{}, err
	}
	if err := b.Set(reqKey(req.ID), val, nil); err != nil {
		return Request{}, err
	}
	if err := b.Set(statusIdxKey(StatusNew, req.CreatedMs, req.ID), nil, nil); err != nil {
		return Request{}, err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Get loads one request.
func (s *Store) Get(_ context.Context, rid id.ID) (Request, error) {
	raw, err := s.db.Get(reqKey(rid))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("intake: decode request %s: %w", rid, err)
	}
	return req, nil
}

// List returns requests, optionally restricted to one status, in creation
// order. Soft-deleted requests are included so operators can see them; queue
// paths use ScanNew which excludes them.
func (s *Store) List(ctx context.Context, status string, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 100
	}
	out := make([]Request, 0, limit)
	if status != "" {
		it, err := s.db.PrefixIter(statusIdxPrefix(status))
		if err != nil {
			return nil, err
		}
		defer it.Close()
		for ok := it.First(); ok && len(out) < limit; ok = it.Next() {
			k := it.Key()
			rid, err := id.FromBytes(k[len(k)-16:])
			if err != nil {
				continue
			}
			req, err := s.Get(ctx, rid)
			if err != nil {
				continue
			}
			out = append(out, req)
		}
		return out, nil
	}
	it, err := s.db.PrefixIter([]byte(prefixReq))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for ok := it.First(); ok && len(out) < limit; ok = it.Next() {
		var req Request
		if err := json.Unmarshal(it.Value(), &req); err != nil {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

// SoftDelete marks a request deleted. Deleted requests are excluded from all
// queue consideration but remain readable.
func (s *Store) SoftDelete(ctx context.Context, rid id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.Get(ctx, rid)
	if err != nil {
		return err
	}
	req.Deleted = true
	return s.put(ctx, req, req.Status)
}

// ScanNew returns up to limit non-deleted NEW requests in creation order.
func (s *Store) ScanNew(ctx context.Context, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = 100
	}
	it, err := s.db.PrefixIter(statusIdxPrefix(StatusNew))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	out := make([]Request, 0, limit)
	for ok := it.First(); ok && len(out) < limit; ok = it.Next() {
		k := it.Key()
		rid, err := id.FromBytes(k[len(k)-16:])
		if err != nil {
			continue
		}
		req, err := s.Get(ctx, rid)
		if err != nil {
			continue
		}
		if req.Deleted || req.Status != StatusNew {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

// BeginAllocation conditionally advances a request from NEW to PENDING.
// Returns false when the request is no longer NEW (taken by a concurrent
// allocator run) or is soft-deleted; batch generation must not proceed then.
func (s *Store) BeginAllocation(ctx context.Context, rid id.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.Get(ctx, rid)
	if err != nil {
		return false, err
	}
	if req.Status != StatusNew || req.Deleted {
		return false, nil
	}
	old := req.Status
	req.Status = StatusPending
	if err := s.put(ctx, req, old); err != nil {
		return false, err
	}
	return true, nil
}

// MarkRunning records that a request's work has been picked up by a worker.
// Only PENDING requests move; anything else is left as-is.
func (s *Store) MarkRunning(ctx context.Context, rid id.ID, toolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.Get(ctx, rid)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return nil
	}
	old := req.Status
	req.Status = StatusRunning
	req.ToolID = toolID
	return s.put(ctx, req, old)
}

// MarkCompleted records that every item of the request reached a terminal state.
func (s *Store) MarkCompleted(ctx context.Context, rid id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.Get(ctx, rid)
	if err != nil {
		return err
	}
	if req.Status == StatusCompleted {
		return nil
	}
	old := req.Status
	req.Status = StatusCompleted
	return s.put(ctx, req, old)
}

// MarkError flags a request whose batch generation failed. The request is
// visible to operators under the ERROR status and never silently dropped.
func (s *Store) MarkError(ctx context.Context, rid id.ID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.Get(ctx, rid)
	if err != nil {
		return err
	}
	old := req.Status
	req.Status = StatusError
	req.Error = msg
	return s.put(ctx, req, old)
}

// put writes the request and moves its status index entry in one batch.
// Caller holds s.mu.
func (s *Store) put(ctx context.Context, req Request, oldStatus string) error {
	b := s.db.NewBatch()
	defer b.Close()
	val, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := b.Set(reqKey(req.ID), val, nil); err != nil {
		return err
	}
	if oldStatus != req.Status {
		if err := b.Delete(statusIdxKey(oldStatus, req.CreatedMs, req.ID), nil); err != nil {
			return err
		}
		if err := b.Set(statusIdxKey(req.Status, req.CreatedMs, req.ID), nil, nil); err != nil {
			return err
		}
	}
	return s.db.CommitBatch(ctx, b)
}
