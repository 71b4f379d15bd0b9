package scan

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shareaudit/macroscan/internal/pattern"
)

// Config holds the knobs for one audit run.
type Config struct {
	OutputDir     string
	Workers       int
	DaysThreshold int
	Domain        string
}

// Auditor orchestrates one audit: a bounded pool of share workers, shared
// stats, outcome logs, and the persisted run record.
type Auditor struct {
	db      *sql.DB
	shares  []string
	cfg     Config
	decoder Decoder
}

// New creates an Auditor. decoder may be nil to disable macro scanning.
func New(db *sql.DB, shares []string, cfg Config, decoder Decoder) *Auditor {
	return &Auditor{db: db, shares: shares, cfg: cfg, decoder: decoder}
}

// runAudit is called by Manager after the audit_runs record has already
// been created. startedAt matches the record's started_at so duration is
// accurate.
func (a *Auditor) runAudit(ctx context.Context, runID int64, startedAt time.Time, stats *Stats) error {
	return a.execute(ctx, runID, startedAt, stats)
}

// Run is the standalone entry point: creates an audit_runs row, executes
// the pool, and returns the row ID. Used by the once mode and by tests.
func (a *Auditor) Run(ctx context.Context, triggeredBy string, stats *Stats) (int64, error) {
	startedAt := time.Now()
	runID, err := insertRunRecord(a.db, startedAt, triggeredBy, len(a.shares))
	if err != nil {
		return 0, fmt.Errorf("create run record: %w", err)
	}
	return runID, a.execute(ctx, runID, startedAt, stats)
}

func (a *Auditor) execute(ctx context.Context, runID int64, startedAt time.Time, stats *Stats) error {
	slog.Info("audit started", "id", runID, "shares", len(a.shares), "workers", a.workers())

	if err := os.MkdirAll(a.cfg.OutputDir, 0755); err != nil {
		finaliseRunRecord(a.db, runID, "failed", startedAt, stats, runTally{})
		return fmt.Errorf("create output dir: %w", err)
	}

	success, err := OpenOutcomeLog(filepath.Join(a.cfg.OutputDir, "scan_success_log.csv"))
	if err != nil {
		finaliseRunRecord(a.db, runID, "failed", startedAt, stats, runTally{})
		return err
	}
	failure, err := OpenOutcomeLog(filepath.Join(a.cfg.OutputDir, "scan_failure_log.csv"))
	if err != nil {
		finaliseRunRecord(a.db, runID, "failed", startedAt, stats, runTally{})
		return err
	}

	matcher := pattern.NewMatcher(a.cfg.Domain)
	scanner := NewFileScanner(matcher, a.decoder, stats)
	skip := NewSkipPolicy(a.cfg.OutputDir, a.cfg.DaysThreshold, stats)

	// Counter flusher mirrors live progress into the run record.
	flushStop := make(chan struct{})
	go a.counterFlusher(ctx, runID, stats, flushStop)

	var (
		mu    sync.Mutex
		tally runTally
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())
	for _, share := range a.shares {
		w := NewShareWorker(share, a.cfg.OutputDir, scanner, skip, stats, success, failure)
		g.Go(func() error {
			// A cancelled run stops dispatching; shares never started get
			// no outcome rows.
			if gctx.Err() != nil {
				return nil
			}
			shareStarted := time.Now()
			outcome := w.Run(gctx)
			if err := insertShareResult(a.db, runID, outcome, shareStarted); err != nil {
				slog.Error("persist share result", "share", outcome.Share, "error", err)
			}
			mu.Lock()
			tally.add(outcome.State)
			mu.Unlock()
			// Per-share failures never cancel siblings.
			return nil
		})
	}
	g.Wait()
	close(flushStop)

	status := "completed"
	var runErr error
	if err := ctx.Err(); err != nil {
		status = "cancelled"
		runErr = err
	}
	if err := finaliseRunRecord(a.db, runID, status, startedAt, stats, tally); err != nil {
		slog.Error("finalise run record", "id", runID, "error", err)
	}

	slog.Info("audit finished", "id", runID, "status", status,
		"succeeded", tally.succeeded, "failed", tally.failed, "skipped", tally.skipped)
	slog.Info("\n" + stats.Summary())
	return runErr
}

func (a *Auditor) workers() int {
	if a.cfg.Workers < 1 {
		return 1
	}
	return a.cfg.Workers
}

// counterFlusher writes the live counters to audit_runs every second until
// stop is closed, then performs one final flush.
func (a *Auditor) counterFlusher(ctx context.Context, runID int64, stats *Stats, stop <-chan struct{}) {
	flush := func() {
		_, err := a.db.Exec(`
			UPDATE audit_runs
			SET files_scanned       = ?,
			    files_with_findings = ?,
			    folders_scanned     = ?,
			    skipped_recent      = ?,
			    skipped_permission  = ?,
			    skipped_encrypted   = ?,
			    skipped_corrupted   = ?
			WHERE id = ?`,
			stats.Get(TotalScanned),
			stats.Get(WithFindings),
			stats.Get(FoldersScanned),
			stats.Get(SkippedRecent),
			stats.Get(SkippedPermission),
			stats.Get(SkippedEncrypted),
			stats.Get(SkippedCorrupted),
			runID)
		if err != nil && ctx.Err() == nil {
			slog.Warn("counter flush failed", "error", err)
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			flush()
		case <-stop:
			flush()
			return
		}
	}
}

// runTally counts terminal worker states for the run record.
type runTally struct {
	succeeded, failed, skipped int64
}

func (t *runTally) add(s State) {
	switch s {
	case Succeeded:
		t.succeeded++
	case Failed:
		t.failed++
	case Skipped:
		t.skipped++
	}
}

// ── DB helpers ────────────────────────────────────────────────────────────

func insertRunRecord(db *sql.DB, startedAt time.Time, triggeredBy string, shares int) (int64, error) {
	now := startedAt.Unix()
	res, err := db.Exec(`
		INSERT INTO audit_runs
			(started_at, status, triggered_by, shares_total, created_at)
		VALUES (?, 'running', ?, ?, ?)`,
		now, triggeredBy, shares, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func finaliseRunRecord(db *sql.DB, runID int64, status string, startedAt time.Time, stats *Stats, tally runTally) error {
	finishedAt := time.Now()
	_, err := db.Exec(`
		UPDATE audit_runs
		SET status              = ?,
		    finished_at         = ?,
		    duration_seconds    = ?,
		    shares_succeeded    = ?,
		    shares_failed       = ?,
		    shares_skipped      = ?,
		    files_scanned       = ?,
		    files_with_findings = ?,
		    folders_scanned     = ?,
		    skipped_recent      = ?,
		    skipped_permission  = ?,
		    skipped_encrypted   = ?,
		    skipped_corrupted   = ?
		WHERE id = ?`,
		status, finishedAt.Unix(), int64(finishedAt.Sub(startedAt).Seconds()),
		tally.succeeded, tally.failed, tally.skipped,
		stats.Get(TotalScanned),
		stats.Get(WithFindings),
		stats.Get(FoldersScanned),
		stats.Get(SkippedRecent),
		stats.Get(SkippedPermission),
		stats.Get(SkippedEncrypted),
		stats.Get(SkippedCorrupted),
		runID)
	return err
}

func insertShareResult(db *sql.DB, runID int64, outcome ShareOutcome, startedAt time.Time) error {
	var errText sql.NullString
	if outcome.Err != nil {
		errText = sql.NullString{String: outcome.Err.Error(), Valid: true}
	}
	var artifact sql.NullString
	if outcome.ArtifactPath != "" {
		artifact = sql.NullString{String: outcome.ArtifactPath, Valid: true}
	}
	_, err := db.Exec(`
		INSERT INTO share_results
			(run_id, share_path, status, error, artifact_path, finding_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, outcome.Share, outcome.State.String(), errText, artifact,
		outcome.FindingCount, startedAt.Unix(), time.Now().Unix())
	return err
}
