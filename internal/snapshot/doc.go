// Package snapshot implements the Columnar Snapshot Store.
//
// Each instrument's full derived history lives in one Parquet file named
// <code>.parquet under the store directory. Files are always written whole:
// a new version is written to a uniquely named temp file in the same
// directory, synced, then renamed over the old one, so readers see either
// the previous or the next complete file and never a partial one.
package snapshot
