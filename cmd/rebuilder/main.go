package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rickgao/barvault/internal/archive"
	"github.com/rickgao/barvault/internal/config"
	"github.com/rickgao/barvault/internal/database"
	"github.com/rickgao/barvault/internal/merge"
	"github.com/rickgao/barvault/internal/pipeline"
	"github.com/rickgao/barvault/internal/snapshot"
	"github.com/rickgao/barvault/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/syncer.local.yaml", "path to config file")
	codesFlag := flag.String("codes", "", "comma-separated codes to rebuild (default: every archived code)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	logger.Info("starting rebuilder", version.Attrs(), "config", *configPath)

	if err := run(logger, *configPath, splitCodes(*codesFlag)); err != nil {
		logger.Error("rebuilder failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string, codes []string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	reader := archive.NewReader(pool)
	if len(codes) == 0 {
		if codes, err = reader.Codes(ctx); err != nil {
			return fmt.Errorf("list archived codes: %w", err)
		}
	}

	store, err := snapshot.NewStore(cfg.Storage.SnapshotDir, logger)
	if err != nil {
		return err
	}

	// The boundary only affects incremental merges; rebuild ignores it.
	engine := merge.NewEngine(merge.BoundaryStrict, store, logger)

	summary, err := pipeline.Rebuild(ctx, reader, engine, codes, cfg.Sync.Workers, logger)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d snapshots failed to rebuild", summary.Failed, summary.Attempted)
	}
	return nil
}

func splitCodes(s string) []string {
	var codes []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}
