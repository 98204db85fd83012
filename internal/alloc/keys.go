package alloc

import (
	"encoding/binary"

	"github.com/fleetworks/allocd/pkg/id"
)

// Keyspace layout. Index segments are big-endian so Pebble's byte order is
// the scan order the engine needs.
//
//	item/{id16}                                 item record
//	batch/{reqID16}/{n 4B BE}                   batch record, append-only
//	req_items/{reqID16}/{itemID16}              request -> items membership
//	pending_idx/{^score 8B}/{allocMs 8B}/{id16} claim-order index
//	claimed_idx/{expiresMs 8B}/{id16}           lease-expiry index
//	outcome_log/{doneMs 8B}/{id16}              terminal-transition log
const (
	prefixItem     = "item/"
	prefixBatch    = "batch/"
	prefixReqItems = "req_items/"
	prefixPending  = "pending_idx/"
	prefixClaimed  = "claimed_idx/"
	prefixOutcome  = "outcome_log/"
)

func itemKey(itemID id.ID) []byte {
	key := make([]byte, len(prefixItem)+16)
	copy(key, prefixItem)
	copy(key[len(prefixItem):], itemID[:])
	return key
}

func batchKey(reqID id.ID, n uint32) []byte {
	key := make([]byte, len(prefixBatch)+16+1+4)
	copy(key, prefixBatch)
	copy(key[len(prefixBatch):], reqID[:])
	key[len(prefixBatch)+16] = '/'
	binary.BigEndian.PutUint32(key[len(prefixBatch)+17:], n)
	return key
}

func batchPrefix(reqID id.ID) []byte {
	key := make([]byte, len(prefixBatch)+16+1)
	copy(key, prefixBatch)
	copy(key[len(prefixBatch):], reqID[:])
	key[len(prefixBatch)+16] = '/'
	return key
}

func reqItemKey(reqID, itemID id.ID) []byte {
	key := make([]byte, len(prefixReqItems)+16+1+16)
	copy(key, prefixReqItems)
	copy(key[len(prefixReqItems):], reqID[:])
	key[len(prefixReqItems)+16] = '/'
	copy(key[len(prefixReqItems)+17:], itemID[:])
	return key
}

func reqItemsPrefix(reqID id.ID) []byte {
	key := make([]byte, len(prefixReqItems)+16+1)
	copy(key, prefixReqItems)
	copy(key[len(prefixReqItems):], reqID[:])
	key[len(prefixReqItems)+16] = '/'
	return key
}

// pendingKey inverts the score so ascending iteration yields score-descending,
// then allocMs-ascending, then id.
func pendingKey(score, allocMs int64, itemID id.ID) []byte {
	key := make([]byte, len(prefixPending)+8+8+16)
	copy(key, prefixPending)
	binary.BigEndian.PutUint64(key[len(prefixPending):], ^uint64(score))
	binary.BigEndian.PutUint64(key[len(prefixPending)+8:], uint64(allocMs))
	copy(key[len(prefixPending)+16:], itemID[:])
	return key
}

func claimedKey(expiresMs int64, itemID id.ID) []byte {
	key := make([]byte, len(prefixClaimed)+8+16)
	copy(key, prefixClaimed)
	binary.BigEndian.PutUint64(key[len(prefixClaimed):], uint64(expiresMs))
	copy(key[len(prefixClaimed)+8:], itemID[:])
	return key
}

func claimedKeyExpiry(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(prefixClaimed) : len(prefixClaimed)+8]))
}

func outcomeKey(doneMs int64, itemID id.ID) []byte {
	key := make([]byte, len(prefixOutcome)+8+16)
	copy(key, prefixOutcome)
	binary.BigEndian.PutUint64(key[len(prefixOutcome):], uint64(doneMs))
	copy(key[len(prefixOutcome)+8:], itemID[:])
	return key
}

// idFromKeyTail parses the trailing 16-byte id of an index key.
func idFromKeyTail(key []byte) (id.ID, error) {
	return id.FromBytes(key[len(key)-16:])
}
