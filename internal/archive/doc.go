// Package archive implements the append-only relational archive of raw observations.
//
// Writers:
//   - Raw bars (raw_bars)
//   - Adjustment factors (adjustment_factors)
//   - Status flags (status_flags)
//
// Rows are keyed by (code, date) and inserted with ON CONFLICT DO NOTHING; rows
// are never updated. The only delete is the boundary replacement policy, which
// removes and re-inserts the watermark date in one transaction to absorb
// same-day corrections.
//
// The Reader answers watermark queries and feeds snapshot rebuilds.
package archive
