// Package database provides the PostgreSQL connection backing the raw archive.
//
// One pool, capped at a single connection by default, is opened per run and
// shared by every archive read and write. Tables:
//   - raw_bars: unadjusted daily OHLCV, primary key (code, date)
//   - adjustment_factors: cumulative backward-adjustment factors, primary key (code, date)
//   - status_flags: daily limit prices and ST/suspension flags, primary key (code, date)
package database
