package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/barvault/internal/archive"
	"github.com/rickgao/barvault/internal/config"
	"github.com/rickgao/barvault/internal/database"
	"github.com/rickgao/barvault/internal/merge"
	"github.com/rickgao/barvault/internal/pipeline"
	"github.com/rickgao/barvault/internal/snapshot"
	"github.com/rickgao/barvault/internal/vendor"
	"github.com/rickgao/barvault/internal/version"
	"github.com/rickgao/barvault/internal/watermark"
)

func main() {
	configPath := flag.String("config", "configs/syncer.local.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting syncer", version.Attrs(), "config", *configPath)

	if err := run(logger, *configPath); err != nil {
		logger.Error("syncer failed", "error", err)
		os.Exit(1)
	}

	logger.Info("syncer stopped")
}

// run owns every resource so deferred cleanup runs before main exits.
func run(logger *slog.Logger, configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	boundary, err := merge.ParseBoundary(cfg.Sync.Boundary)
	if err != nil {
		return err
	}

	logger.Info("configuration loaded",
		"vendor_url", cfg.Vendor.BaseURL,
		"snapshot_dir", cfg.Storage.SnapshotDir,
		"start_date", cfg.Sync.StartDate,
		"boundary", boundary,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		pool.Close()
		logger.Info("database connection closed")
	}()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	client := vendor.NewClient(
		cfg.Vendor.BaseURL,
		cfg.Vendor.Username,
		cfg.Vendor.Password,
		vendor.WithLogger(logger),
		vendor.WithTimeout(cfg.Vendor.Timeout),
		vendor.WithRetries(cfg.Vendor.MaxRetries, time.Second),
	)
	if err := client.Login(ctx); err != nil {
		return err
	}
	defer func() {
		// ctx may already be cancelled.
		logoutCtx, logoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer logoutCancel()
		if err := client.Logout(logoutCtx); err != nil {
			logger.Warn("vendor logout failed", "error", err)
		}
	}()

	codes, err := universe(ctx, cfg.Universe, client)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		logger.Warn("empty universe, nothing to do")
		return nil
	}

	store, err := snapshot.NewStore(cfg.Storage.SnapshotDir, logger)
	if err != nil {
		return err
	}

	writer := archive.NewWriter(pool, archivePolicy(boundary), logger)
	tracker := watermark.NewTracker(archive.NewReader(pool), logger)
	engine := merge.NewEngine(boundary, store, logger)

	orch := pipeline.New(pipeline.Config{
		BatchSize:    cfg.Sync.BatchSize,
		StartDate:    cfg.Sync.StartDate,
		Workers:      cfg.Sync.Workers,
		FetchTimeout: cfg.Sync.FetchTimeout,
	}, client, engine, writer, tracker, logger)

	summary, runErr := orch.Run(ctx, codes)

	stats := writer.Stats()
	logger.Info("archive stats",
		"inserts", stats.Inserts,
		"conflicts", stats.Conflicts,
		"skipped", stats.Skipped,
		"replaced", stats.Replaced,
		"errors", stats.Errors,
	)
	if summary != nil && summary.Failed > 0 {
		logger.Warn("some instruments failed", "failed", summary.Failed, "attempted", summary.Attempted)
	}

	if errors.Is(runErr, context.Canceled) {
		logger.Info("run cancelled")
		return nil
	}
	return runErr
}

// universe resolves the instrument list from config or the vendor listing.
func universe(ctx context.Context, cfg config.UniverseConfig, client *vendor.Client) ([]string, error) {
	if len(cfg.Codes) > 0 {
		return cfg.Codes, nil
	}
	return client.ListCodes(ctx, cfg.SecurityType)
}

// archivePolicy maps the merge boundary onto the archive's watermark policy.
func archivePolicy(b merge.Boundary) archive.Policy {
	if b == merge.BoundaryInclusive {
		return archive.ReplaceBoundary
	}
	return archive.SkipSettled
}
