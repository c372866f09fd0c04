package merge

import (
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/rickgao/barvault/internal/model"
)

// priceDecimals is the tick precision used when comparing a close to its limit price.
const priceDecimals = 2

// factorCursor yields the most recent factor observed on or before a date.
// Dates must be requested in ascending order.
type factorCursor struct {
	obs     []model.AdjustmentFactor
	next    int
	current float64 // NaN until an observation or seed is seen
}

func newFactorCursor(obs []model.AdjustmentFactor, seed float64) *factorCursor {
	return &factorCursor{obs: obs, current: seed}
}

func (c *factorCursor) at(d model.Date) float64 {
	for c.next < len(c.obs) && c.obs[c.next].Date <= d {
		c.current = c.obs[c.next].Factor
		c.next++
	}
	if math.IsNaN(c.current) {
		return 1.0
	}
	return c.current
}

// usableFactors drops observations that cannot scale a price.
func usableFactors(obs []model.AdjustmentFactor) (kept []model.AdjustmentFactor, dropped int) {
	kept = make([]model.AdjustmentFactor, 0, len(obs))
	for _, f := range obs {
		if !f.Date.Valid() || math.IsNaN(f.Factor) || math.IsInf(f.Factor, 0) || f.Factor <= 0 {
			dropped++
			continue
		}
		kept = append(kept, f)
	}
	slices.SortStableFunc(kept, func(a, b model.AdjustmentFactor) int { return int(a.Date - b.Date) })
	return kept, dropped
}

// usableBars drops rows with an invalid date, a foreign code or non-finite prices,
// and returns the rest in ascending date order. Duplicate dates keep input order
// so that the later row wins when put into a series.
func usableBars(code string, bars []model.RawBar) (kept []model.RawBar, dropped int) {
	kept = make([]model.RawBar, 0, len(bars))
	for _, b := range bars {
		if !b.Date.Valid() || (b.Code != "" && b.Code != code) || !finite(b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount) {
			dropped++
			continue
		}
		kept = append(kept, b)
	}
	slices.SortStableFunc(kept, func(a, b model.RawBar) int { return int(a.Date - b.Date) })
	return kept, dropped
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// statusByDate indexes one instrument's status rows; later rows win.
func statusByDate(rows []model.StatusFlag) map[model.Date]model.StatusFlag {
	m := make(map[model.Date]model.StatusFlag, len(rows))
	for _, s := range rows {
		m[s.Date] = s
	}
	return m
}

// derive builds the derived record for one bar. limitsKnown is false when the
// status source had no limit prices for the bar's date.
func derive(bar model.RawBar, factor float64, st model.StatusFlag, hasStatus bool) (rec model.DerivedRecord, limitsKnown bool) {
	rec = model.DerivedRecord{
		Date:       bar.Date,
		OpenPost:   bar.Open * factor,
		HighPost:   bar.High * factor,
		LowPost:    bar.Low * factor,
		ClosePost:  bar.Close * factor,
		CloseRaw:   bar.Close,
		AdjFactor:  factor,
		VolumePost: bar.Volume / factor,
		Amount:     bar.Amount,
	}

	suspended := hasStatus && st.IsSuspended
	rec.IsST = hasStatus && st.IsST
	rec.IsTrading = bar.Volume > 0 && !suspended

	if !hasStatus || !st.HasLimits() {
		return rec, false
	}

	closePrice := decimal.NewFromFloat(bar.Close).Round(priceDecimals)
	rec.IsLimitUp = closePrice.GreaterThanOrEqual(decimal.NewFromFloat(st.HighLimitPrice).Round(priceDecimals))
	rec.IsLimitDown = closePrice.LessThanOrEqual(decimal.NewFromFloat(st.LowLimitPrice).Round(priceDecimals))
	return rec, true
}
