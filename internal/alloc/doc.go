// Package alloc implements the allocation engine: batch generation from new
// service requests, the lease-based claim queue, expiry recovery, and queue
// statistics.
//
// All state lives in the shared Pebble store under a flat keyspace. Every
// item transition commits as a single batch under the core's writer mutex, so
// concurrent claimers and the reclaimer never hand the same item to two
// workers. Read paths (Pending, Statistics) use iterators without the lock.
//
// Item lifecycle: PENDING -> CLAIMED -> DONE | FAILED, with CLAIMED -> PENDING
// on lease expiry until the attempt ceiling poisons the item to FAILED.
package alloc
