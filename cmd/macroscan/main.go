package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/shareaudit/macroscan/internal/api"
	"github.com/shareaudit/macroscan/internal/config"
	"github.com/shareaudit/macroscan/internal/db"
	"github.com/shareaudit/macroscan/internal/logging"
	"github.com/shareaudit/macroscan/internal/scan"
	"github.com/shareaudit/macroscan/internal/scheduler"
	"github.com/shareaudit/macroscan/internal/vba"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	serve := flag.Bool("serve", false, "run as a daemon with scheduler and HTTP API")
	inputFile := flag.String("input", "", "override share list path")
	outputDir := flag.String("output", "", "override output directory")
	workers := flag.Int("workers", 0, "override worker count")
	flag.Parse()

	// Initial logger until config is loaded.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *inputFile != "" {
		cfg.InputFile = *inputFile
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = filepath.Join(cfg.OutputDir, "macroscan.log")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		slog.Error("create output dir", "path", cfg.OutputDir, "error", err)
		os.Exit(1)
	}
	closeLog := logging.Setup(logging.Config{Level: cfg.LogLevel, FilePath: logFile})
	defer closeLog()

	slog.Info("macroscan starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"input_file", cfg.InputFile,
		"output_dir", cfg.OutputDir,
		"workers", cfg.Workers,
		"domain", cfg.Domain)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	}

	// Mark any audits that were 'running' when last process exited as failed.
	if err := scan.MarkStaleRunsFailed(database); err != nil {
		slog.Warn("mark stale runs", "error", err)
	}

	shares, err := config.LoadShares(cfg.InputFile)
	if err != nil {
		slog.Error("load share list", "error", err)
		os.Exit(1)
	}
	if len(shares) == 0 {
		slog.Error("share list is empty", "path", cfg.InputFile)
		os.Exit(1)
	}

	scanCfg := scan.Config{
		OutputDir:     cfg.OutputDir,
		Workers:       cfg.Workers,
		DaysThreshold: cfg.DaysThreshold,
		Domain:        cfg.Domain,
	}
	decoder := &vba.Extractor{}

	if !*serve {
		runOnce(database, shares, scanCfg, decoder)
		return
	}

	// ── Daemon mode: scheduler + HTTP API ──────────────────────────────────
	mgr := scan.NewManager(database, shares, scanCfg, decoder)

	sched := scheduler.New()
	if cfg.Schedule != "" {
		if err := sched.SetJob(cfg.Schedule, func() {
			slog.Info("scheduled audit triggered")
			if _, err := mgr.Start(context.Background(), "schedule"); err != nil {
				slog.Warn("scheduled audit start", "error", err)
			}
		}); err != nil {
			slog.Warn("invalid cron expression", "expr", cfg.Schedule, "error", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := api.New(cfg.HTTPAddr, database, mgr, sched, version)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("macroscan stopped")
}

// runOnce executes a single audit in the foreground and prints the summary.
func runOnce(database *sql.DB, shares []string, cfg scan.Config, decoder scan.Decoder) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := scan.NewStats()
	auditor := scan.New(database, shares, cfg, decoder)
	runID, err := auditor.Run(ctx, "manual", stats)
	if err != nil {
		slog.Error("audit failed", "id", runID, "error", err)
		os.Exit(1)
	}
	fmt.Println(stats.Summary())
}
