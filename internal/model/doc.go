// Package model defines shared data types used across the price history pipeline.
//
// Conventions:
//   - Dates: Date, a calendar day encoded as YYYYMMDD (the vendor's native form)
//   - Prices: float64, unadjusted unless the field name ends in _post
//   - Codes: vendor instrument codes (e.g., "000001.SZ")
package model
