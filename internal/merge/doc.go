// Package merge implements the per-instrument merge-and-reconcile engine.
//
// For one instrument, the engine joins a raw bar slice with that instrument's
// adjustment factors (as-of, forward filled) and status flags (by date),
// derives the adjusted columns, merges the result into any existing snapshot
// with keep-last deduplication on date, recomputes daily returns over the
// whole sequence and persists it.
//
// Joins use a date-keyed ordered map per instrument rather than a general
// relational join: every key is a trading day and the key set is small.
package merge
