package model

// -----------------------------------------------------------------------------
// Raw Types (archived as fetched)
// -----------------------------------------------------------------------------

// RawBar is one unadjusted daily OHLCV observation. Natural key (Code, Date).
type RawBar struct {
	Code   string
	Date   Date
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64 // Shares
	Amount float64 // Turnover in currency
}

// AdjustmentFactor is the cumulative backward-adjustment multiplier as of Date.
// Natural key (Code, Date).
type AdjustmentFactor struct {
	Code   string
	Date   Date
	Factor float64
}

// StatusFlag holds per-day trading status. Natural key (Code, Date).
// Limit prices of 0 mean the vendor did not report them.
type StatusFlag struct {
	Code           string
	Date           Date
	HighLimitPrice float64
	LowLimitPrice  float64
	IsST           bool // Special-treatment designation
	IsSuspended    bool
}

// HasLimits reports whether both daily price limits are present.
func (s StatusFlag) HasLimits() bool {
	return s.HighLimitPrice > 0 && s.LowLimitPrice > 0
}

// -----------------------------------------------------------------------------
// Derived Types (persisted in snapshots)
// -----------------------------------------------------------------------------

// DerivedRecord is the analytic row for one instrument on one date.
//
// DailyReturn depends on the ordered close_post sequence, not on the row alone;
// it is nil for the first row of a sequence.
type DerivedRecord struct {
	Date        Date
	OpenPost    float64
	HighPost    float64
	LowPost     float64
	ClosePost   float64
	CloseRaw    float64
	AdjFactor   float64
	DailyReturn *float64
	VolumePost  float64
	Amount      float64
	IsTrading   bool
	IsLimitUp   bool
	IsLimitDown bool
	IsST        bool
}
