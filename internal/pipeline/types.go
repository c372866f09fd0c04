package pipeline

import (
	"context"
	"time"

	"github.com/rickgao/barvault/internal/merge"
	"github.com/rickgao/barvault/internal/model"
	"github.com/rickgao/barvault/internal/watermark"
)

// Batch is what the fetch collaborator returns for a list of codes.
type Batch struct {
	Bars    map[string][]model.RawBar // Keyed by code
	Factors *model.FactorTable        // Wide, one column per code
	Status  model.StatusLookup        // May be nil when the vendor has none
}

// Fetcher retrieves raw data for codes over [start, end].
type Fetcher interface {
	Fetch(ctx context.Context, codes []string, start, end model.Date) (*Batch, error)
}

// FetcherFunc is a function adapter for Fetcher.
type FetcherFunc func(ctx context.Context, codes []string, start, end model.Date) (*Batch, error)

func (f FetcherFunc) Fetch(ctx context.Context, codes []string, start, end model.Date) (*Batch, error) {
	return f(ctx, codes, start, end)
}

// Merger folds one instrument's slice into its snapshot.
type Merger interface {
	Merge(in merge.Input) (*merge.Result, error)
}

// Archiver appends raw rows for one instrument.
type Archiver interface {
	WriteBars(ctx context.Context, code string, bars []model.RawBar, watermark model.Date) error
	WriteFactors(ctx context.Context, code string, factors []model.AdjustmentFactor, watermark model.Date) error
	WriteStatus(ctx context.Context, code string, status []model.StatusFlag, watermark model.Date) error
}

// Watermarks loads the latest archived date per code and table.
type Watermarks interface {
	Load(ctx context.Context) (set watermark.Set, degraded bool)
}

// Config holds orchestrator configuration.
type Config struct {
	BatchSize    int           // Codes per fetch
	StartDate    model.Date    // Fetch start for codes with nothing archived
	Workers      int           // Concurrent instruments per batch (1 = sequential)
	FetchTimeout time.Duration // Per-batch fetch timeout, 0 = none
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:    200,
		StartDate:    20150101,
		Workers:      1,
		FetchTimeout: 10 * time.Minute,
	}
}

// BatchSummary counts instrument outcomes for one batch.
type BatchSummary struct {
	Index     int
	Start     model.Date
	End       model.Date
	Attempted int
	Processed int
	Skipped   int // No bar data
	Failed    int // Merge or archive error
	Conflicts int // Processed with a recoverable archive conflict
}

// Summary aggregates a run.
type Summary struct {
	RunID     string
	Batches   []BatchSummary
	Attempted int
	Processed int
	Skipped   int
	Failed    int
	Degraded  bool // Some batch ran without watermarks
}

func (s *Summary) add(b BatchSummary) {
	s.Batches = append(s.Batches, b)
	s.Attempted += b.Attempted
	s.Processed += b.Processed
	s.Skipped += b.Skipped
	s.Failed += b.Failed
}
