package alloc

import (
	"encoding/json"
	"strings"

	"github.com/google/cel-go/cel"
)

// itemFilter wraps a compiled CEL program evaluated against pending items.
// When disabled, Eval always returns true.
type itemFilter struct {
	prog    cel.Program
	enabled bool
}

func newItemFilter(expr string) (itemFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return itemFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("request_id", cel.StringType),
		cel.Variable("website", cel.StringType),
		cel.Variable("score", cel.IntType),
		cel.Variable("alloc_ms", cel.IntType),
		cel.Variable("attempts", cel.IntType),
		// Parsed item payload (map/list/values) for field filtering
		cel.Variable("payload", cel.DynType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return itemFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return itemFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return itemFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return itemFilter{}, err
	}
	return itemFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an item. When disabled,
// returns true; evaluation errors filter the item out.
func (f itemFilter) Eval(item Item, nowMs int64) bool {
	if !f.enabled {
		return true
	}
	var payload any
	_ = json.Unmarshal(item.Payload, &payload)
	out, _, err := f.prog.Eval(map[string]any{
		"id":         item.ID.String(),
		"request_id": item.RequestID.String(),
		"website":    item.Website,
		"score":      item.Score,
		"alloc_ms":   item.AllocMs,
		"attempts":   int64(item.Attempts),
		"payload":    payload,
		"now_ms":     nowMs,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
