package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/barvault/internal/archive"
	"github.com/rickgao/barvault/internal/merge"
	"github.com/rickgao/barvault/internal/model"
	"github.com/rickgao/barvault/internal/watermark"
)

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeConflict
	outcomeSkipped
	outcomeFailed
)

// Orchestrator drives one incremental run over the instrument universe.
type Orchestrator struct {
	cfg        Config
	fetcher    Fetcher
	merger     Merger
	archive    Archiver
	watermarks Watermarks
	logger     *slog.Logger

	now func() time.Time
}

// New creates a new Orchestrator.
func New(cfg Config, fetcher Fetcher, merger Merger, archive Archiver, watermarks Watermarks, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Orchestrator{
		cfg:        cfg,
		fetcher:    fetcher,
		merger:     merger,
		archive:    archive,
		watermarks: watermarks,
		logger:     logger,
		now:        time.Now,
	}
}

// Partition splits codes into consecutive batches of at most size codes.
func Partition(codes []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(codes); start += size {
		end := min(start+size, len(codes))
		out = append(out, codes[start:end])
	}
	return out
}

// Run processes every batch in order. It returns an error only for failures
// that abort the run (fetch failure or cancellation); the summary covers the
// batches completed so far. Callers own and must release the archive
// connection and vendor session regardless of the outcome.
func (o *Orchestrator) Run(ctx context.Context, codes []string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString()}
	logger := o.logger.With("run_id", summary.RunID)
	today := model.DateOf(o.now())

	batches := Partition(codes, o.cfg.BatchSize)
	logger.Info("run started",
		"codes", len(codes),
		"batches", len(batches),
		"batch_size", o.cfg.BatchSize,
		"workers", o.cfg.Workers,
		"end", today,
	)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			logger.Warn("run cancelled", "completed_batches", i)
			return summary, err
		}

		marks, degraded := o.watermarks.Load(ctx)
		if degraded {
			summary.Degraded = true
		}

		bs := BatchSummary{
			Index:     i,
			Start:     marks.Bars.BatchStart(batch, o.cfg.StartDate),
			End:       today,
			Attempted: len(batch),
		}

		data, err := o.fetch(ctx, batch, bs.Start, bs.End)
		if err != nil {
			logger.Error("batch fetch failed, aborting run",
				"batch", i,
				"start", bs.Start,
				"end", bs.End,
				"error", err,
			)
			bs.Failed = len(batch)
			summary.add(bs)
			return summary, fmt.Errorf("fetch batch %d: %w", i, err)
		}

		o.processBatch(ctx, logger, batch, data, marks, &bs)
		summary.add(bs)

		logger.Info("batch complete",
			"batch", i,
			"start", bs.Start,
			"end", bs.End,
			"attempted", bs.Attempted,
			"processed", bs.Processed,
			"skipped", bs.Skipped,
			"failed", bs.Failed,
			"conflicts", bs.Conflicts,
		)
	}

	logger.Info("run complete",
		"batches", len(summary.Batches),
		"attempted", summary.Attempted,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"degraded", summary.Degraded,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (o *Orchestrator) fetch(ctx context.Context, codes []string, start, end model.Date) (*Batch, error) {
	if o.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
	}
	data, err := o.fetcher.Fetch(ctx, codes, start, end)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = &Batch{}
	}
	return data, nil
}

// processBatch runs every instrument with bounded concurrency. Per-instrument
// errors are counted, never propagated.
func (o *Orchestrator) processBatch(ctx context.Context, logger *slog.Logger, codes []string, data *Batch, marks watermark.Set, bs *BatchSummary) {
	var processed, conflicts, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for _, code := range codes {
		g.Go(func() error {
			switch o.processOne(gctx, logger, code, data, marks.For(code)) {
			case outcomeProcessed:
				processed.Add(1)
			case outcomeConflict:
				processed.Add(1)
				conflicts.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			case outcomeFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	bs.Processed = int(processed.Load())
	bs.Conflicts = int(conflicts.Load())
	bs.Skipped = int(skipped.Load())
	bs.Failed = int(failed.Load())
}

// processOne merges then archives one instrument. The snapshot is written
// before the archive so that a crash in between is repaired by the next run
// re-fetching from the older watermark.
func (o *Orchestrator) processOne(ctx context.Context, logger *slog.Logger, code string, data *Batch, mark watermark.Mark) (result outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("instrument failed", "code", code, "reason", "panic", "error", r)
			result = outcomeFailed
		}
	}()

	bars := data.Bars[code]
	if len(bars) == 0 {
		logger.Warn("instrument skipped", "code", code, "reason", "no bar data")
		return outcomeSkipped
	}

	res, err := o.merger.Merge(merge.Input{
		Code:    code,
		Bars:    bars,
		Factors: data.Factors,
		Status:  data.Status,
	})
	if errors.Is(err, merge.ErrNoBars) {
		logger.Warn("instrument skipped", "code", code, "reason", "no usable bar data")
		return outcomeSkipped
	}
	if err != nil {
		logger.Error("instrument failed", "code", code, "reason", "merge", "error", err)
		return outcomeFailed
	}

	var status []model.StatusFlag
	if data.Status != nil {
		status = data.Status.Lookup(code)
	}

	conflicted := false
	writes := []struct {
		what string
		fn   func() error
	}{
		{"bars", func() error { return o.archive.WriteBars(ctx, code, bars, mark.Bars) }},
		{"factors", func() error { return o.archive.WriteFactors(ctx, code, data.Factors.Column(code), mark.Factors) }},
		{"status", func() error { return o.archive.WriteStatus(ctx, code, status, mark.Status) }},
	}
	for _, w := range writes {
		err := w.fn()
		var ce *archive.ConflictError
		switch {
		case err == nil:
		case errors.As(err, &ce):
			logger.Warn("archive conflict", "code", code, "table", ce.Table, "rows", len(ce.Dates))
			conflicted = true
		default:
			logger.Error("instrument failed", "code", code, "reason", "archive "+w.what, "error", err)
			return outcomeFailed
		}
	}

	logger.Debug("instrument processed",
		"code", code,
		"new_rows", res.NewRows,
		"total_rows", len(res.Records),
		"written", res.Written,
	)
	if conflicted {
		return outcomeConflict
	}
	return outcomeProcessed
}
