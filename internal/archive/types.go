package archive

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/barvault/internal/model"
)

// Policy decides what happens to incoming rows dated on or before a code's watermark.
type Policy int

const (
	// SkipSettled drops every row dated on or before the watermark.
	SkipSettled Policy = iota

	// ReplaceBoundary drops rows before the watermark and deletes then
	// re-inserts rows dated exactly on it.
	ReplaceBoundary
)

func (p Policy) String() string {
	if p == ReplaceBoundary {
		return "replace_boundary"
	}
	return "skip_settled"
}

// ConflictError reports rows that collided with existing keys outside the
// boundary handling. The non-conflicting rows were written; it is recoverable.
type ConflictError struct {
	Table string
	Code  string
	Dates []model.Date
}

func (e *ConflictError) Error() string {
	ds := make([]string, 0, len(e.Dates))
	for i, d := range e.Dates {
		if i == 5 {
			ds = append(ds, fmt.Sprintf("... +%d more", len(e.Dates)-5))
			break
		}
		ds = append(ds, d.String())
	}
	return fmt.Sprintf("%s: %d conflicting rows for %s (%s)", e.Table, len(e.Dates), e.Code, strings.Join(ds, ", "))
}

// Metrics holds counters for a writer.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Skipped   int64 // Rows dropped by the watermark policy
	Replaced  int64 // Boundary rows deleted before re-insert
	Errors    int64
	Flushes   int64
}

// table describes how one row type maps onto its archive table.
type table[T any] struct {
	name   string
	insert string
	date   func(T) model.Date
	args   func(code string, row T) []any
}

var barTable = table[model.RawBar]{
	name: "raw_bars",
	insert: `
		INSERT INTO raw_bars (code, date, open, high, low, close, volume, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code, date) DO NOTHING
	`,
	date: func(b model.RawBar) model.Date { return b.Date },
	args: barArgs,
}

var factorTable = table[model.AdjustmentFactor]{
	name: "adjustment_factors",
	insert: `
		INSERT INTO adjustment_factors (code, date, factor)
		VALUES ($1, $2, $3)
		ON CONFLICT (code, date) DO NOTHING
	`,
	date: func(f model.AdjustmentFactor) model.Date { return f.Date },
	args: factorArgs,
}

var statusTable = table[model.StatusFlag]{
	name: "status_flags",
	insert: `
		INSERT INTO status_flags (code, date, high_limit_price, low_limit_price, is_st, is_suspended)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code, date) DO NOTHING
	`,
	date: func(s model.StatusFlag) model.Date { return s.Date },
	args: statusArgs,
}

func barArgs(code string, b model.RawBar) []any {
	return []any{code, b.Date.Time(), b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount}
}

func factorArgs(code string, f model.AdjustmentFactor) []any {
	return []any{code, f.Date.Time(), f.Factor}
}

func statusArgs(code string, s model.StatusFlag) []any {
	return []any{code, s.Date.Time(), s.HighLimitPrice, s.LowLimitPrice, s.IsST, s.IsSuspended}
}

// queueInserts adds one insert per row to batch.
func queueInserts[T any](batch *pgx.Batch, t table[T], code string, rows []T) {
	for _, r := range rows {
		batch.Queue(t.insert, t.args(code, r)...)
	}
}
