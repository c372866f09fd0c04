package config

import (
	"time"

	"github.com/rickgao/barvault/internal/model"
)

// SyncerConfig is the root configuration shared by the syncer and rebuilder.
type SyncerConfig struct {
	Database DBConfig       `yaml:"database"`
	Vendor   VendorConfig   `yaml:"vendor"`
	Sync     SyncConfig     `yaml:"sync"`
	Universe UniverseConfig `yaml:"universe"`
	Storage  StorageConfig  `yaml:"storage"`
}

// DBConfig holds the archive database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// VendorConfig holds market data vendor settings.
type VendorConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// SyncConfig controls the incremental run.
type SyncConfig struct {
	StartDate    model.Date    `yaml:"start_date"` // Used for codes with nothing archived
	BatchSize    int           `yaml:"batch_size"`
	Workers      int           `yaml:"workers"`  // 1 = sequential
	Boundary     string        `yaml:"boundary"` // "strict" or "inclusive"
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// UniverseConfig selects the instruments to sync. Codes wins over SecurityType.
type UniverseConfig struct {
	Codes        []string `yaml:"codes"`
	SecurityType string   `yaml:"security_type"`
}

// StorageConfig holds output locations.
type StorageConfig struct {
	SnapshotDir string `yaml:"snapshot_dir"`
}
