// Package pipeline implements the Batch Orchestrator.
//
// A run:
//   - Partitions the instrument universe into fixed-size batches
//   - Per batch, derives the fetch window from archive watermarks
//   - Fetches bars, factors and status for the whole batch in one call
//   - Merges each instrument into its snapshot, then archives its raw rows
//   - Isolates per-instrument failures; a fetch failure aborts the run
//
// Instruments are processed sequentially unless Workers > 1. The merge is
// keyed by date and idempotent, so processing order does not affect results.
package pipeline
