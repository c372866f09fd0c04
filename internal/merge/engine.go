package merge

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/rickgao/barvault/internal/model"
	"github.com/rickgao/barvault/internal/snapshot"
)

// ErrNoBars means there was nothing to derive: no usable bars and no snapshot.
var ErrNoBars = errors.New("no bar data")

// Boundary selects which incoming dates are re-processed against an existing
// snapshot whose last date is D_max.
type Boundary int

const (
	// BoundaryStrict keeps only dates after D_max; settled history is never touched.
	BoundaryStrict Boundary = iota

	// BoundaryInclusive also re-derives D_max itself, picking up same-day corrections.
	BoundaryInclusive
)

// ParseBoundary maps a config value to a Boundary.
func ParseBoundary(s string) (Boundary, error) {
	switch s {
	case "strict", "":
		return BoundaryStrict, nil
	case "inclusive":
		return BoundaryInclusive, nil
	default:
		return 0, fmt.Errorf("unknown boundary policy %q", s)
	}
}

func (b Boundary) String() string {
	if b == BoundaryInclusive {
		return "inclusive"
	}
	return "strict"
}

// keeps reports whether a bar dated d is re-processed against lastDate.
func (b Boundary) keeps(d, lastDate model.Date) bool {
	if b == BoundaryInclusive {
		return d >= lastDate
	}
	return d > lastDate
}

// SnapshotStore persists full derived sequences per instrument.
type SnapshotStore interface {
	Read(code string) ([]model.DerivedRecord, error)
	Write(code string, records []model.DerivedRecord) error
}

// Input is everything the engine needs for one instrument.
type Input struct {
	Code    string
	Bars    []model.RawBar
	Factors *model.FactorTable // Wide table; the engine extracts Code's column
	Status  model.StatusLookup // May be nil
}

// Result describes one merge.
type Result struct {
	Code          string
	Records       []model.DerivedRecord // Full sequence as persisted (or unchanged)
	PriorRows     int                   // Rows in the snapshot before the merge
	NewRows       int                   // Rows derived from the incoming slice
	LastDate      model.Date            // D_max of the prior snapshot, 0 if none
	Written       bool                  // False for a no-op
	MissingLimits int                   // Derived rows without limit prices
	DroppedBars   int
}

// Engine merges incoming data into per-instrument snapshots.
type Engine struct {
	boundary Boundary
	store    SnapshotStore
	logger   *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(boundary Boundary, store SnapshotStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		boundary: boundary,
		store:    store,
		logger:   logger,
	}
}

// Merge folds in.Bars into the instrument's snapshot and persists the result.
// Re-applying the same input is a no-op or rewrites identical records.
func (e *Engine) Merge(in Input) (*Result, error) {
	prior, err := e.loadPrior(in.Code)
	if err != nil {
		return nil, err
	}

	bars, dropped := usableBars(in.Code, in.Bars)
	if dropped > 0 {
		e.logger.Warn("dropped malformed bars", "code", in.Code, "count", dropped)
	}

	res := &Result{
		Code:        in.Code,
		PriorRows:   len(prior),
		DroppedBars: dropped,
	}

	if len(prior) > 0 {
		res.LastDate = prior[len(prior)-1].Date
		bars = restrict(bars, res.LastDate, e.boundary)
		if len(bars) == 0 {
			res.Records = prior
			e.logger.Debug("snapshot up to date",
				"code", in.Code,
				"last_date", res.LastDate,
				"boundary", e.boundary,
			)
			return res, nil
		}
	} else if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoBars, in.Code)
	}

	s := newSeries(len(prior) + len(bars))
	for _, r := range prior {
		s.put(r)
	}

	seed := seedFactor(prior, bars[0].Date)
	fresh, missing := e.deriveAll(in, bars, seed)
	for _, r := range fresh {
		s.put(r)
	}

	res.Records = s.sorted()
	res.NewRows = len(fresh)
	res.MissingLimits = missing

	if err := e.store.Write(in.Code, res.Records); err != nil {
		return nil, err
	}
	res.Written = true

	e.logger.Debug("merged snapshot",
		"code", in.Code,
		"prior_rows", res.PriorRows,
		"new_rows", res.NewRows,
		"total_rows", len(res.Records),
	)
	return res, nil
}

// Rebuild derives the full sequence from in alone, ignoring and replacing any
// existing snapshot. Used to re-derive snapshots from the archive.
func (e *Engine) Rebuild(in Input) (*Result, error) {
	bars, dropped := usableBars(in.Code, in.Bars)
	if dropped > 0 {
		e.logger.Warn("dropped malformed bars", "code", in.Code, "count", dropped)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoBars, in.Code)
	}

	s := newSeries(len(bars))
	fresh, missing := e.deriveAll(in, bars, math.NaN())
	for _, r := range fresh {
		s.put(r)
	}

	res := &Result{
		Code:          in.Code,
		Records:       s.sorted(),
		NewRows:       len(fresh),
		MissingLimits: missing,
		DroppedBars:   dropped,
	}
	if err := e.store.Write(in.Code, res.Records); err != nil {
		return nil, err
	}
	res.Written = true

	e.logger.Info("rebuilt snapshot", "code", in.Code, "rows", len(res.Records))
	return res, nil
}

// loadPrior reads the existing snapshot. A corrupt snapshot is treated as absent.
func (e *Engine) loadPrior(code string) ([]model.DerivedRecord, error) {
	prior, err := e.store.Read(code)
	switch {
	case err == nil:
		return prior, nil
	case errors.Is(err, snapshot.ErrNotFound):
		return nil, nil
	case errors.Is(err, snapshot.ErrCorrupt):
		e.logger.Warn("snapshot unreadable, recomputing from incoming data",
			"code", code,
			"error", err,
		)
		return nil, nil
	default:
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
}

// deriveAll joins sorted bars with factors and status and derives one record per bar.
func (e *Engine) deriveAll(in Input, bars []model.RawBar, seed float64) ([]model.DerivedRecord, int) {
	factors, badFactors := usableFactors(in.Factors.Column(in.Code))
	if badFactors > 0 {
		e.logger.Warn("dropped unusable adjustment factors", "code", in.Code, "count", badFactors)
	}
	cursor := newFactorCursor(factors, seed)

	var status map[model.Date]model.StatusFlag
	if in.Status != nil {
		status = statusByDate(in.Status.Lookup(in.Code))
	}

	out := make([]model.DerivedRecord, 0, len(bars))
	missing := 0
	for _, b := range bars {
		st, ok := status[b.Date]
		rec, limitsKnown := derive(b, cursor.at(b.Date), st, ok)
		if !limitsKnown {
			missing++
		}
		out = append(out, rec)
	}

	if missing > 0 {
		e.logger.Error("limit prices missing, limit flags default to false",
			"code", in.Code,
			"rows", missing,
			"status_rows", len(status),
		)
	}
	return out, missing
}

// restrict keeps the bars the boundary policy re-processes. bars must be sorted.
func restrict(bars []model.RawBar, lastDate model.Date, b Boundary) []model.RawBar {
	i := sort.Search(len(bars), func(i int) bool { return b.keeps(bars[i].Date, lastDate) })
	return bars[i:]
}

// seedFactor returns the factor of the last prior record dated before d, or NaN.
func seedFactor(prior []model.DerivedRecord, d model.Date) float64 {
	i := sort.Search(len(prior), func(i int) bool { return prior[i].Date >= d })
	if i == 0 {
		return math.NaN()
	}
	return prior[i-1].AdjFactor
}
