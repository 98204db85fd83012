package alloc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// ScanOutcomes reads terminal-transition log entries after the opaque cursor,
// oldest first, returning the entries and the cursor to resume from. A nil
// cursor starts from the beginning; fewer than limit entries means the log
// is drained.
func (c *Core) ScanOutcomes(_ context.Context, after []byte, limit int) ([]Outcome, []byte, error) {
	if limit <= 0 {
		limit = 512
	}
	lower := []byte(prefixOutcome)
	if len(after) > 0 {
		// Resume strictly after the cursor key.
		lower = append(append([]byte(nil), after...), 0)
	}
	upper := append([]byte(prefixOutcome), 0xFF)
	it, err := c.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, after, err
	}
	defer it.Close()

	var out []Outcome
	cursor := append([]byte(nil), after...)
	for ok := it.First(); ok && len(out) < limit; ok = it.Next() {
		var o Outcome
		if err := json.Unmarshal(it.Value(), &o); err != nil {
			return nil, cursor, fmt.Errorf("alloc: decode outcome: %w", err)
		}
		out = append(out, o)
		cursor = append(cursor[:0], it.Key()...)
	}
	return out, cursor, nil
}
