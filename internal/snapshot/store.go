package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/rickgao/barvault/internal/model"
)

const fileExt = ".parquet"

var (
	// ErrNotFound means no snapshot exists for the code.
	ErrNotFound = errors.New("snapshot not found")

	// ErrCorrupt means a snapshot file exists but cannot be decoded.
	ErrCorrupt = errors.New("snapshot corrupt")
)

// Store reads and writes per-instrument snapshot files under one directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the directory if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Path returns the snapshot file path for code.
func (s *Store) Path(code string) string {
	return filepath.Join(s.dir, code+fileExt)
}

// Read returns the full ordered record sequence for code.
func (s *Store) Read(code string) ([]model.DerivedRecord, error) {
	if err := checkCode(code); err != nil {
		return nil, err
	}

	f, err := os.Open(s.Path(code))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", code, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat snapshot %s: %w", code, err)
	}

	rows, err := parquet.Read[row](f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, code, err)
	}

	records := make([]model.DerivedRecord, len(rows))
	for i, r := range rows {
		records[i] = fromRow(r)
	}
	if err := checkOrdered(records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, code, err)
	}
	return records, nil
}

// Write atomically replaces the snapshot for code with records.
// Records must have strictly increasing dates.
func (s *Store) Write(code string, records []model.DerivedRecord) error {
	if err := checkCode(code); err != nil {
		return err
	}
	if err := checkOrdered(records); err != nil {
		return fmt.Errorf("write snapshot %s: %w", code, err)
	}

	tmp := filepath.Join(s.dir, "."+code+"."+uuid.NewString()+".tmp")
	if err := writeFile(tmp, records); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write snapshot %s: %w", code, err)
	}

	if err := os.Rename(tmp, s.Path(code)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot %s: %w", code, err)
	}

	if err := syncDir(s.dir); err != nil {
		s.logger.Warn("snapshot dir sync failed", "code", code, "error", err)
	}

	s.logger.Debug("snapshot written", "code", code, "rows", len(records))
	return nil
}

func writeFile(path string, records []model.DerivedRecord) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	rows := make([]row, len(records))
	for i, r := range records {
		rows[i] = toRow(r)
	}

	w := parquet.NewGenericWriter[row](f)
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func checkCode(code string) error {
	if code == "" || strings.ContainsAny(code, `/\`) || strings.HasPrefix(code, ".") {
		return fmt.Errorf("invalid instrument code %q", code)
	}
	return nil
}

func checkOrdered(records []model.DerivedRecord) error {
	for i := 1; i < len(records); i++ {
		if records[i].Date <= records[i-1].Date {
			return fmt.Errorf("dates not strictly increasing at row %d (%s after %s)",
				i, records[i].Date, records[i-1].Date)
		}
	}
	return nil
}
