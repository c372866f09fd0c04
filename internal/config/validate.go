package config

import (
	"errors"
	"fmt"
)

// Boundary policies accepted by sync.boundary.
const (
	BoundaryStrict    = "strict"
	BoundaryInclusive = "inclusive"
)

// Validate checks that all required fields are set and values are valid.
func (c *SyncerConfig) Validate() error {
	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Vendor.BaseURL == "" {
		return errors.New("vendor.base_url is required")
	}
	if c.Vendor.Username == "" {
		return errors.New("vendor.username is required")
	}
	if c.Vendor.MaxRetries < 0 {
		return errors.New("vendor.max_retries must be >= 0")
	}

	if !c.Sync.StartDate.Valid() {
		return fmt.Errorf("sync.start_date %d is not a valid date", c.Sync.StartDate)
	}
	if c.Sync.BatchSize < 1 {
		return errors.New("sync.batch_size must be >= 1")
	}
	if c.Sync.Workers < 1 {
		return errors.New("sync.workers must be >= 1")
	}
	if c.Sync.Boundary != BoundaryStrict && c.Sync.Boundary != BoundaryInclusive {
		return fmt.Errorf("sync.boundary must be %q or %q, got %q", BoundaryStrict, BoundaryInclusive, c.Sync.Boundary)
	}

	if len(c.Universe.Codes) == 0 && c.Universe.SecurityType == "" {
		return errors.New("universe.codes or universe.security_type is required")
	}

	if c.Storage.SnapshotDir == "" {
		return errors.New("storage.snapshot_dir is required")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
