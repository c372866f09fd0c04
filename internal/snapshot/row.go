package snapshot

import (
	"time"

	"github.com/rickgao/barvault/internal/model"
)

// row is the on-disk column layout. Column names match the DerivedRecord fields.
type row struct {
	Date        int32    `parquet:"date,date"`
	OpenPost    float64  `parquet:"open_post"`
	HighPost    float64  `parquet:"high_post"`
	LowPost     float64  `parquet:"low_post"`
	ClosePost   float64  `parquet:"close_post"`
	CloseRaw    float64  `parquet:"close_raw"`
	AdjFactor   float64  `parquet:"adj_factor"`
	DailyReturn *float64 `parquet:"daily_return,optional"`
	VolumePost  float64  `parquet:"volume_post"`
	Amount      float64  `parquet:"amount"`
	IsTrading   bool     `parquet:"is_trading"`
	IsLimitUp   bool     `parquet:"is_limit_up"`
	IsLimitDown bool     `parquet:"is_limit_down"`
	IsST        bool     `parquet:"is_st"`
}

const secondsPerDay = 24 * 60 * 60

// daysSinceEpoch encodes d as the Parquet DATE logical type.
func daysSinceEpoch(d model.Date) int32 {
	return int32(d.Time().Unix() / secondsPerDay)
}

func dateFromDays(days int32) model.Date {
	return model.DateOf(time.Unix(int64(days)*secondsPerDay, 0).UTC())
}

func toRow(r model.DerivedRecord) row {
	return row{
		Date:        daysSinceEpoch(r.Date),
		OpenPost:    r.OpenPost,
		HighPost:    r.HighPost,
		LowPost:     r.LowPost,
		ClosePost:   r.ClosePost,
		CloseRaw:    r.CloseRaw,
		AdjFactor:   r.AdjFactor,
		DailyReturn: r.DailyReturn,
		VolumePost:  r.VolumePost,
		Amount:      r.Amount,
		IsTrading:   r.IsTrading,
		IsLimitUp:   r.IsLimitUp,
		IsLimitDown: r.IsLimitDown,
		IsST:        r.IsST,
	}
}

func fromRow(r row) model.DerivedRecord {
	return model.DerivedRecord{
		Date:        dateFromDays(r.Date),
		OpenPost:    r.OpenPost,
		HighPost:    r.HighPost,
		LowPost:     r.LowPost,
		ClosePost:   r.ClosePost,
		CloseRaw:    r.CloseRaw,
		AdjFactor:   r.AdjFactor,
		DailyReturn: r.DailyReturn,
		VolumePost:  r.VolumePost,
		Amount:      r.Amount,
		IsTrading:   r.IsTrading,
		IsLimitUp:   r.IsLimitUp,
		IsLimitDown: r.IsLimitDown,
		IsST:        r.IsST,
	}
}
