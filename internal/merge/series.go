package merge

import (
	"slices"

	"github.com/rickgao/barvault/internal/model"
)

// series is an insertion-ordered map of derived records keyed by date.
// put replaces an existing date in place, which gives keep-last semantics.
type series struct {
	index map[model.Date]int
	rows  []model.DerivedRecord
}

func newSeries(capacity int) *series {
	return &series{
		index: make(map[model.Date]int, capacity),
		rows:  make([]model.DerivedRecord, 0, capacity),
	}
}

func (s *series) put(r model.DerivedRecord) {
	if i, ok := s.index[r.Date]; ok {
		s.rows[i] = r
		return
	}
	s.index[r.Date] = len(s.rows)
	s.rows = append(s.rows, r)
}

// sorted returns the records in ascending date order with daily returns
// recomputed over the full sequence.
func (s *series) sorted() []model.DerivedRecord {
	out := slices.Clone(s.rows)
	slices.SortFunc(out, func(a, b model.DerivedRecord) int { return int(a.Date - b.Date) })
	recomputeReturns(out)
	return out
}

// recomputeReturns sets DailyReturn to the percent change of ClosePost.
// The first row, and any row following a zero close, has no return.
func recomputeReturns(records []model.DerivedRecord) {
	for i := range records {
		records[i].DailyReturn = nil
		if i == 0 {
			continue
		}
		prev := records[i-1].ClosePost
		if prev == 0 {
			continue
		}
		r := records[i].ClosePost/prev - 1
		records[i].DailyReturn = &r
	}
}
