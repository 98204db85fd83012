// Package allocsvc exposes the allocation engine to transports. It wraps the
// core, intake, settings, stats, and audit stores behind one facade, stamps
// operations with the service clock, and records audit events for mutating
// calls.
package allocsvc
