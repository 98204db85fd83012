// Package pebblestore wraps Pebble with the durability policy and iteration
// helpers the allocation engine relies on. All state transitions in the
// engine commit as single Pebble batches through this wrapper, which is what
// makes a claim or release atomic with its index maintenance.
package pebblestore
