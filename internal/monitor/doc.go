// Package monitor runs the engine's periodic maintenance: allocation passes
// over new requests, lease-expiry recovery, stats aggregation, and audit
// trimming. One tick fans the tasks out over a bounded worker pool.
package monitor
