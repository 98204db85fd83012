// Package audit keeps an append-only trail of operator-visible actions:
// claims, completions, lease sweeps, allocation runs, and settings changes.
// Appending is best effort and never fails the audited operation.
package audit
