package config

import (
	"time"

	"github.com/rickgao/barvault/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultVendorTimeout = 60 * time.Second
	DefaultMaxRetries    = 3
	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 1
	DefaultMinConns      = 1
	DefaultStartDate     = model.Date(20150101)
	DefaultBatchSize     = 200
	DefaultWorkers       = 1
	DefaultBoundary      = "strict"
	DefaultFetchTimeout  = 10 * time.Minute
	DefaultSecurityType  = "EXTRA_STOCK_A"
	DefaultSnapshotDir   = "data/snapshots"
)

func (c *SyncerConfig) applyDefaults() {
	// Vendor defaults
	if c.Vendor.Timeout == 0 {
		c.Vendor.Timeout = DefaultVendorTimeout
	}
	if c.Vendor.MaxRetries == 0 {
		c.Vendor.MaxRetries = DefaultMaxRetries
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Sync defaults
	if c.Sync.StartDate == 0 {
		c.Sync.StartDate = DefaultStartDate
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = DefaultBatchSize
	}
	if c.Sync.Workers == 0 {
		c.Sync.Workers = DefaultWorkers
	}
	if c.Sync.Boundary == "" {
		c.Sync.Boundary = DefaultBoundary
	}
	if c.Sync.FetchTimeout == 0 {
		c.Sync.FetchTimeout = DefaultFetchTimeout
	}

	// Universe defaults
	if len(c.Universe.Codes) == 0 && c.Universe.SecurityType == "" {
		c.Universe.SecurityType = DefaultSecurityType
	}

	// Storage defaults
	if c.Storage.SnapshotDir == "" {
		c.Storage.SnapshotDir = DefaultSnapshotDir
	}
}
