package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/barvault/internal/model"
)

// DB is the pgx surface the archive uses. *pgxpool.Pool, *pgx.Conn and pgx.Tx
// all satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Writer appends raw observations for one instrument at a time.
type Writer struct {
	db     DB
	policy Policy
	logger *slog.Logger

	mu      sync.Mutex
	metrics Metrics
}

// NewWriter creates a Writer.
func NewWriter(db DB, policy Policy, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		db:     db,
		policy: policy,
		logger: logger,
	}
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// WriteBars archives bars for code. watermark is the code's latest archived
// bar date, 0 if none.
func (w *Writer) WriteBars(ctx context.Context, code string, bars []model.RawBar, watermark model.Date) error {
	return write(ctx, w, barTable, code, bars, watermark)
}

// WriteFactors archives code's factor observations. watermark is the code's
// latest archived factor date, which may lie past its last bar.
func (w *Writer) WriteFactors(ctx context.Context, code string, factors []model.AdjustmentFactor, watermark model.Date) error {
	return write(ctx, w, factorTable, code, factors, watermark)
}

// WriteStatus archives code's status rows. watermark is the code's latest
// archived status date.
func (w *Writer) WriteStatus(ctx context.Context, code string, status []model.StatusFlag, watermark model.Date) error {
	return write(ctx, w, statusTable, code, status, watermark)
}

func write[T any](ctx context.Context, w *Writer, t table[T], code string, rows []T, watermark model.Date) error {
	kept, skipped, boundary := admit(rows, t.date, watermark, w.policy)

	w.mu.Lock()
	w.metrics.Skipped += int64(skipped)
	w.mu.Unlock()

	if len(kept) == 0 {
		return nil
	}

	start := time.Now()
	var replaced int64
	var conflicted []model.Date

	err := pgx.BeginFunc(ctx, w.db, func(tx pgx.Tx) error {
		if boundary {
			ct, err := tx.Exec(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE code = $1 AND date = $2`, t.name),
				code, watermark.Time(),
			)
			if err != nil {
				return fmt.Errorf("delete boundary row: %w", err)
			}
			replaced = ct.RowsAffected()
		}

		var err error
		conflicted, err = batchInsert(ctx, tx, t, code, kept)
		return err
	})
	if err != nil {
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		return fmt.Errorf("archive %s for %s: %w", t.name, code, err)
	}

	w.mu.Lock()
	w.metrics.Inserts += int64(len(kept) - len(conflicted))
	w.metrics.Conflicts += int64(len(conflicted))
	w.metrics.Replaced += replaced
	w.metrics.Flushes++
	w.mu.Unlock()

	w.logger.Debug("archived rows",
		"table", t.name,
		"code", code,
		"count", len(kept),
		"skipped", skipped,
		"replaced", replaced,
		"conflicts", len(conflicted),
		"duration", time.Since(start),
	)

	if len(conflicted) > 0 {
		return &ConflictError{Table: t.name, Code: code, Dates: conflicted}
	}
	return nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING and
// returns the dates that hit an existing key.
func batchInsert[T any](ctx context.Context, db DB, t table[T], code string, rows []T) ([]model.Date, error) {
	batch := &pgx.Batch{}
	queueInserts(batch, t, code, rows)

	results := db.SendBatch(ctx, batch)
	defer results.Close()

	var conflicted []model.Date
	for _, r := range rows {
		ct, err := results.Exec()
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() == 0 {
			conflicted = append(conflicted, t.date(r))
		}
	}
	return conflicted, nil
}

// admit applies the watermark policy. boundary reports whether a kept row is
// dated on the watermark and needs the delete-then-insert path.
func admit[T any](rows []T, date func(T) model.Date, watermark model.Date, p Policy) (kept []T, skipped int, boundary bool) {
	if watermark == 0 {
		return rows, 0, false
	}
	kept = make([]T, 0, len(rows))
	for _, r := range rows {
		d := date(r)
		switch {
		case d > watermark:
			kept = append(kept, r)
		case d == watermark && p == ReplaceBoundary:
			kept = append(kept, r)
			boundary = true
		default:
			skipped++
		}
	}
	return kept, skipped, boundary
}
