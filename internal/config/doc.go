// Package config loads the static process configuration for allocd: listen
// address, data directory, and monitor cadence. Values come from built-in
// defaults, an optional JSON file, and ALLOCD_* environment overlays, in that
// order.
package config
