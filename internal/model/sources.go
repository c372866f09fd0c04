package model

import (
	"fmt"
	"math"
	"slices"
)

// FactorTable is a wide table of adjustment factors: one row per date, one
// column per code. Missing cells are simply absent.
type FactorTable struct {
	dates   []Date
	columns map[string]map[Date]float64
}

// NewFactorTable builds a table from aligned columns. Each column must have one
// value per date; NaN marks a missing cell.
func NewFactorTable(dates []Date, columns map[string][]float64) (*FactorTable, error) {
	t := &FactorTable{columns: make(map[string]map[Date]float64, len(columns))}
	for code, values := range columns {
		if len(values) != len(dates) {
			return nil, fmt.Errorf("factor column %s: %d values for %d dates", code, len(values), len(dates))
		}
		for i, v := range values {
			if math.IsNaN(v) {
				continue
			}
			t.Set(code, dates[i], v)
		}
	}
	return t, nil
}

// FactorTableFromRows builds a table from long-form rows.
func FactorTableFromRows(rows []AdjustmentFactor) *FactorTable {
	t := &FactorTable{columns: make(map[string]map[Date]float64)}
	for _, r := range rows {
		t.Set(r.Code, r.Date, r.Factor)
	}
	return t
}

// Set stores one cell, replacing any previous value.
func (t *FactorTable) Set(code string, date Date, factor float64) {
	if t.columns == nil {
		t.columns = make(map[string]map[Date]float64)
	}
	col, ok := t.columns[code]
	if !ok {
		col = make(map[Date]float64)
		t.columns[code] = col
	}
	if _, seen := col[date]; !seen {
		if i, found := slices.BinarySearch(t.dates, date); !found {
			t.dates = slices.Insert(t.dates, i, date)
		}
	}
	col[date] = factor
}

// Dates returns the table's row index in ascending order.
func (t *FactorTable) Dates() []Date {
	if t == nil {
		return nil
	}
	return t.dates
}

// Len returns the number of codes with at least one observation.
func (t *FactorTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.columns)
}

// Column extracts one code's observations in ascending date order.
// A nil table or unknown code yields nil.
func (t *FactorTable) Column(code string) []AdjustmentFactor {
	if t == nil {
		return nil
	}
	col := t.columns[code]
	if len(col) == 0 {
		return nil
	}
	out := make([]AdjustmentFactor, 0, len(col))
	for d, f := range col {
		out = append(out, AdjustmentFactor{Code: code, Date: d, Factor: f})
	}
	slices.SortFunc(out, func(a, b AdjustmentFactor) int { return int(a.Date - b.Date) })
	return out
}

// StatusLookup returns the status rows for one code, in any order.
// Codes the source knows nothing about yield an empty result.
type StatusLookup interface {
	Lookup(code string) []StatusFlag
}

// StatusByCode is a StatusLookup backed by a mapping from code to its rows.
type StatusByCode map[string][]StatusFlag

func (m StatusByCode) Lookup(code string) []StatusFlag {
	return m[code]
}

// StatusTable is a StatusLookup backed by one shared table filtered on Code.
type StatusTable []StatusFlag

func (t StatusTable) Lookup(code string) []StatusFlag {
	var out []StatusFlag
	for _, s := range t {
		if s.Code == code {
			out = append(out, s)
		}
	}
	return out
}
