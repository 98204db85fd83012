// Package id provides 128-bit, lexicographically sortable identifiers used
// for service requests, batches, and allocation items. Sorting IDs as bytes
// sorts them by creation time, which keeps index scans in insertion order.
package id
