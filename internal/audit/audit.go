package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	pebblestore "github.com/fleetworks/allocd/internal/storage/pebble"
	"github.com/fleetworks/allocd/pkg/log"
)

const prefix = "audit/"

// Event is one operator-visible action record.
type Event struct {
	Ms     int64           `json:"ms"`
	Action string          `json:"action"`
	Actor  string          `json:"actor,omitempty"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// Log is an append-only audit trail over the shared store. Appends are best
// effort: failures are logged and swallowed so auditing never fails the
// operation being audited.
type Log struct {
	db     *pebblestore.DB
	mu     sync.Mutex
	seq    uint32
	lastMs int64
	logger log.Logger
}

// New creates an audit log with a default logger.
func New(db *pebblestore.DB) *Log {
	return NewWithLogger(db, log.NewLogger())
}

// NewWithLogger creates an audit log with the provided logger.
func NewWithLogger(db *pebblestore.DB, logger log.Logger) *Log {
	return &Log{db: db, logger: logger.With(log.Component("audit"))}
}

// key: audit/{ms 8B BE}/{seq 4B BE}. seq disambiguates events within one ms.
func eventKey(ms int64, seq uint32) []byte {
	key := make([]byte, len(prefix)+8+1+4)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(ms))
	key[len(prefix)+8] = '/'
	binary.BigEndian.PutUint32(key[len(prefix)+9:], seq)
	return key
}

// Append records an event. Errors are logged, never returned.
func (l *Log) Append(ctx context.Context, ev Event) {
	l.mu.Lock()
	if ev.Ms == l.lastMs {
		l.seq++
	} else {
		l.lastMs = ev.Ms
		l.seq = 0
	}
	key := eventKey(ev.Ms, l.seq)
	l.mu.Unlock()

	raw, err := json.Marshal(ev)
	if err != nil {
		l.logger.Warn("encode audit event failed", log.Err(err))
		return
	}
	if err := l.db.Set(key, raw); err != nil {
		l.logger.Warn("append audit event failed",
			log.Str("action", ev.Action), log.Err(err))
	}
}

// Read returns up to limit events with Ms >= sinceMs, newest last.
func (l *Log) Read(_ context.Context, limit int, sinceMs int64) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	it, err := l.db.PrefixIter([]byte(prefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []Event
	ok := it.First()
	if sinceMs > 0 {
		ok = it.SeekGE(eventKey(sinceMs, 0))
	}
	for ; ok && len(out) < limit; ok = it.Next() {
		var ev Event
		if err := json.Unmarshal(it.Value(), &ev); err != nil {
			return nil, fmt.Errorf("audit: decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Trim deletes the oldest events beyond maxEntries. Returns how many were
// removed.
func (l *Log) Trim(ctx context.Context, maxEntries int) (int, error) {
	if maxEntries <= 0 {
		return 0, nil
	}
	it, err := l.db.PrefixIter([]byte(prefix))
	if err != nil {
		return 0, err
	}
	defer it.Close()
	total := 0
	for ok := it.First(); ok; ok = it.Next() {
		total++
	}
	excess := total - maxEntries
	if excess <= 0 {
		return 0, nil
	}
	b := l.db.NewBatch()
	defer b.Close()
	deleted := 0
	for ok := it.First(); ok && deleted < excess; ok = it.Next() {
		if err := b.Delete(append([]byte(nil), it.Key()...), nil); err != nil {
			return 0, err
		}
		deleted++
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return 0, fmt.Errorf("audit: trim: %w", err)
	}
	return deleted, nil
}
