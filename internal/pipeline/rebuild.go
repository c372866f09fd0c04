package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/barvault/internal/merge"
	"github.com/rickgao/barvault/internal/model"
)

// ArchiveSource reads one instrument's full archived history.
type ArchiveSource interface {
	Bars(ctx context.Context, code string) ([]model.RawBar, error)
	Factors(ctx context.Context, code string) ([]model.AdjustmentFactor, error)
	Status(ctx context.Context, code string) ([]model.StatusFlag, error)
}

// Rebuilder recomputes a snapshot from scratch.
type Rebuilder interface {
	Rebuild(in merge.Input) (*merge.Result, error)
}

// Rebuild rewrites the snapshot of every code from the archive alone. Like
// Run, a failing code is logged and counted; only cancellation is returned.
func Rebuild(ctx context.Context, src ArchiveSource, rb Rebuilder, codes []string, workers int, logger *slog.Logger) (*Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	summary := &Summary{RunID: uuid.NewString()}
	logger = logger.With("run_id", summary.RunID)
	logger.Info("rebuild started", "codes", len(codes), "workers", workers)

	var processed, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, code := range codes {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := rebuildOne(gctx, src, rb, code)
			switch {
			case err == nil:
				processed.Add(1)
				logger.Debug("snapshot rebuilt", "code", code, "rows", len(res.Records))
			case errors.Is(err, merge.ErrNoBars):
				skipped.Add(1)
				logger.Warn("instrument skipped", "code", code, "reason", "no archived bars")
			default:
				failed.Add(1)
				logger.Error("instrument failed", "code", code, "reason", "rebuild", "error", err)
			}
			return nil
		})
	}
	g.Wait()

	summary.add(BatchSummary{
		Attempted: len(codes),
		Processed: int(processed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	})
	logger.Info("rebuild complete",
		"attempted", summary.Attempted,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, ctx.Err()
}

func rebuildOne(ctx context.Context, src ArchiveSource, rb Rebuilder, code string) (*merge.Result, error) {
	bars, err := src.Bars(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}
	factors, err := src.Factors(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("read factors: %w", err)
	}
	status, err := src.Status(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}

	return rb.Rebuild(merge.Input{
		Code:    code,
		Bars:    bars,
		Factors: model.FactorTableFromRows(factors),
		Status:  model.StatusTable(status),
	})
}
