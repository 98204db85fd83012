package alloc

import (
	"encoding/json"

	"github.com/fleetworks/allocd/pkg/id"
)

// Item statuses.
const (
	ItemPending = "PENDING"
	ItemClaimed = "CLAIMED"
	ItemDone    = "DONE"
	ItemFailed  = "FAILED"
)

// Item is one claimable unit of work.
type Item struct {
	ID          id.ID           `json:"id"`
	RequestID   id.ID           `json:"request_id"`
	BatchNumber uint32          `json:"batch_number"`
	Website     string          `json:"website"`
	Status      string          `json:"status"`
	Score       int64           `json:"score"`
	AllocMs     int64           `json:"alloc_ms"`
	ClaimedMs   int64           `json:"claimed_ms,omitempty"`
	LeaseMs     int64           `json:"lease_ms,omitempty"`
	ExpiresMs   int64           `json:"expires_ms,omitempty"`
	Attempts    int             `json:"attempts"`
	Worker      string          `json:"worker,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Terminal reports whether the item can never change state again.
func (it Item) Terminal() bool {
	return it.Status == ItemDone || it.Status == ItemFailed
}

// Batch records one batch-generation event for a request. Batches are
// append-only; Number is 1-based and unique per request.
type Batch struct {
	RequestID id.ID  `json:"request_id"`
	Number    uint32 `json:"number"`
	Items     int    `json:"items"`
	CreatedMs int64  `json:"created_ms"`
}

// Outcome is the terminal-transition log entry the stats aggregator folds.
type Outcome struct {
	ItemID    id.ID  `json:"item_id"`
	RequestID id.ID  `json:"request_id"`
	Website   string `json:"website"`
	Outcome   string `json:"outcome"`
	Worker    string `json:"worker,omitempty"`
	DoneMs    int64  `json:"done_ms"`
}

// ClaimedItem is what a worker receives from Claim.
type ClaimedItem struct {
	Item
	Receipt string `json:"receipt"`
}
