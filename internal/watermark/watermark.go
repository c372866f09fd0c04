// Package watermark derives, per instrument, the latest durably archived date
// and turns it into fetch windows.
package watermark

import (
	"context"
	"log/slog"

	"github.com/rickgao/barvault/internal/model"
)

// Source reports the latest archived date per code for each archive table.
type Source interface {
	LatestDates(ctx context.Context) (map[string]model.Date, error)
	LatestFactorDates(ctx context.Context) (map[string]model.Date, error)
	LatestStatusDates(ctx context.Context) (map[string]model.Date, error)
}

// Marks maps code to its last archived date. Codes with nothing archived are absent.
type Marks map[string]model.Date

// Get returns the code's watermark, or def when it has none.
func (m Marks) Get(code string, def model.Date) model.Date {
	if d, ok := m[code]; ok {
		return d
	}
	return def
}

// BatchStart returns the earliest watermark across codes, substituting def for
// codes with no archived data. An empty batch yields def.
func (m Marks) BatchStart(codes []string, def model.Date) model.Date {
	start := model.Date(0)
	for _, code := range codes {
		d := m.Get(code, def)
		if start == 0 || d < start {
			start = d
		}
	}
	if start == 0 {
		return def
	}
	return start
}

// Set holds the watermarks of each archive table. Factor and status rows can
// run past the last bar (a suspended instrument still gets both), so each
// table is tracked on its own.
type Set struct {
	Bars    Marks
	Factors Marks
	Status  Marks
}

// Mark is one code's watermark per table, 0 where nothing is archived.
type Mark struct {
	Bars    model.Date
	Factors model.Date
	Status  model.Date
}

// For returns code's watermarks.
func (s Set) For(code string) Mark {
	return Mark{
		Bars:    s.Bars.Get(code, 0),
		Factors: s.Factors.Get(code, 0),
		Status:  s.Status.Get(code, 0),
	}
}

// Tracker loads watermarks from the archive.
type Tracker struct {
	source Source
	logger *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(source Source, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{source: source, logger: logger}
}

// Load returns the current watermarks. If any table cannot be read it logs a
// warning and returns an empty Set, so every code falls back to the caller's
// default start date. The second return value reports whether that happened.
func (t *Tracker) Load(ctx context.Context) (set Set, degraded bool) {
	queries := []struct {
		table string
		load  func(context.Context) (map[string]model.Date, error)
		dst   *Marks
	}{
		{"raw_bars", t.source.LatestDates, &set.Bars},
		{"adjustment_factors", t.source.LatestFactorDates, &set.Factors},
		{"status_flags", t.source.LatestStatusDates, &set.Status},
	}
	for _, q := range queries {
		latest, err := q.load(ctx)
		if err != nil {
			t.logger.Warn("watermarks unavailable, falling back to global start date",
				"table", q.table,
				"error", err,
			)
			return Set{}, true
		}
		*q.dst = Marks(latest)
	}

	t.logger.Info("watermarks loaded",
		"bar_codes", len(set.Bars),
		"factor_codes", len(set.Factors),
		"status_codes", len(set.Status),
	)
	return set, false
}
