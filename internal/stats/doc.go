// Package stats maintains daily and per-website completion rollups by
// folding the allocation engine's outcome log. Aggregation is incremental
// behind a persisted cursor; a full rebuild re-folds the entire log and
// yields identical rollups.
package stats
