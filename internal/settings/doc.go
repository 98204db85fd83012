// Package settings stores the live-tunable queue configuration: lease
// duration, claim and batch sizes, scoring weights, and recovery limits.
// The key set is closed; updates to unknown keys are rejected. The engine
// reads a fresh snapshot on every operation, so updates take effect without
// a restart.
package settings
