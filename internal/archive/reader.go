package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/barvault/internal/model"
)

// Reader queries archived observations.
type Reader struct {
	db DB
}

// NewReader creates a Reader.
func NewReader(db DB) *Reader {
	return &Reader{db: db}
}

// LatestDates returns the most recent archived bar date per code. Codes with
// no archived bars are absent.
func (r *Reader) LatestDates(ctx context.Context) (map[string]model.Date, error) {
	return r.latestDates(ctx, barTable.name)
}

// LatestFactorDates returns the most recent archived factor date per code.
func (r *Reader) LatestFactorDates(ctx context.Context) (map[string]model.Date, error) {
	return r.latestDates(ctx, factorTable.name)
}

// LatestStatusDates returns the most recent archived status date per code.
func (r *Reader) LatestStatusDates(ctx context.Context) (map[string]model.Date, error) {
	return r.latestDates(ctx, statusTable.name)
}

func (r *Reader) latestDates(ctx context.Context, table string) (map[string]model.Date, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT code, MAX(date) FROM %s GROUP BY code`, table))
	if err != nil {
		return nil, fmt.Errorf("query latest %s dates: %w", table, err)
	}

	out := make(map[string]model.Date)
	var (
		code string
		day  time.Time
	)
	_, err = pgx.ForEachRow(rows, []any{&code, &day}, func() error {
		out[code] = model.DateOf(day)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan latest %s dates: %w", table, err)
	}
	return out, nil
}

// Codes lists every code with archived bars, in ascending order.
func (r *Reader) Codes(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT code FROM raw_bars ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan codes: %w", err)
	}
	return codes, nil
}

// Bars returns all archived bars for code in date order.
func (r *Reader) Bars(ctx context.Context, code string) ([]model.RawBar, error) {
	rows, err := r.db.Query(ctx, `
		SELECT date, open, high, low, close, volume, amount
		FROM raw_bars WHERE code = $1 ORDER BY date
	`, code)
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", code, err)
	}

	bars, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.RawBar, error) {
		b := model.RawBar{Code: code}
		var day time.Time
		err := row.Scan(&day, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Amount)
		b.Date = model.DateOf(day)
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan bars %s: %w", code, err)
	}
	return bars, nil
}

// Factors returns all archived factor observations for code in date order.
func (r *Reader) Factors(ctx context.Context, code string) ([]model.AdjustmentFactor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT date, factor FROM adjustment_factors WHERE code = $1 ORDER BY date
	`, code)
	if err != nil {
		return nil, fmt.Errorf("query factors %s: %w", code, err)
	}

	factors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AdjustmentFactor, error) {
		f := model.AdjustmentFactor{Code: code}
		var day time.Time
		err := row.Scan(&day, &f.Factor)
		f.Date = model.DateOf(day)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan factors %s: %w", code, err)
	}
	return factors, nil
}

// Status returns all archived status rows for code in date order.
func (r *Reader) Status(ctx context.Context, code string) ([]model.StatusFlag, error) {
	rows, err := r.db.Query(ctx, `
		SELECT date, high_limit_price, low_limit_price, is_st, is_suspended
		FROM status_flags WHERE code = $1 ORDER BY date
	`, code)
	if err != nil {
		return nil, fmt.Errorf("query status %s: %w", code, err)
	}

	status, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StatusFlag, error) {
		s := model.StatusFlag{Code: code}
		var day time.Time
		err := row.Scan(&day, &s.HighLimitPrice, &s.LowLimitPrice, &s.IsST, &s.IsSuspended)
		s.Date = model.DateOf(day)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan status %s: %w", code, err)
	}
	return status, nil
}
