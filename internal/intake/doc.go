// Package intake persists client service requests and their lifecycle.
//
// Requests enter with status NEW and are advanced by the allocation engine:
// NEW -> PENDING when batches are generated, PENDING -> RUNNING when a worker
// claims work, and RUNNING -> COMPLETED once every item is terminal. Requests
// whose batch generation fails land in ERROR. The store keeps a per-status
// index ordered by creation time so the allocator scans NEW requests in
// arrival order.
package intake
