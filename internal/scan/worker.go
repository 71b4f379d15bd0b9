package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// State is a ShareWorker lifecycle state.
type State int

const (
	NotStarted State = iota
	CheckingExistence
	CheckingSkipPolicy
	Walking
	Finalizing
	Succeeded
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case CheckingExistence:
		return "checking_existence"
	case CheckingSkipPolicy:
		return "checking_skip_policy"
	case Walking:
		return "walking"
	case Finalizing:
		return "finalizing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// progressTraceEvery controls how often a per-directory progress line with
// elapsed time is emitted during the walk.
const progressTraceEvery = 10

// ShareOutcome is what the orchestrator records per share.
type ShareOutcome struct {
	Share        string
	State        State
	ArtifactPath string
	FindingCount int
	Err          error
}

// ShareWorker processes exactly one share: existence check, skip policy,
// sequential tree walk with per-file scanning, and artifact finalization.
// Files within a share are scanned strictly sequentially; concurrency is
// bounded by share count, which keeps peak open files and memory flat
// regardless of pool size.
type ShareWorker struct {
	share   string
	outDir  string
	scanner *FileScanner
	skip    *SkipPolicy
	stats   *Stats
	success *OutcomeLog
	failure *OutcomeLog

	state State
}

// NewShareWorker wires a worker for one share.
func NewShareWorker(share, outDir string, scanner *FileScanner, skip *SkipPolicy, stats *Stats, success, failure *OutcomeLog) *ShareWorker {
	return &ShareWorker{
		share:   share,
		outDir:  outDir,
		scanner: scanner,
		skip:    skip,
		stats:   stats,
		success: success,
		failure: failure,
		state:   NotStarted,
	}
}

// State returns the worker's current lifecycle state.
func (w *ShareWorker) State() State { return w.state }

// Run drives the worker to a terminal state. Errors never propagate beyond
// the returned outcome; sibling shares are unaffected.
func (w *ShareWorker) Run(ctx context.Context) ShareOutcome {
	w.state = CheckingExistence
	if _, err := os.Stat(w.share); err != nil {
		msg := "Share path not found or inaccessible"
		slog.Warn(msg, "share", w.share, "error", err)
		w.logFailure(msg)
		w.stats.Increment(SkippedPermission)
		w.state = Failed
		return ShareOutcome{Share: w.share, State: Failed, Err: fmt.Errorf("%s: %w", msg, err)}
	}

	w.state = CheckingSkipPolicy
	if w.skip.ShouldSkip(w.share) {
		w.state = Skipped
		return ShareOutcome{Share: w.share, State: Skipped}
	}

	started := time.Now()
	slog.Info("started scanning share", "share", w.share)

	stage, err := NewResultStage(w.outDir)
	if err != nil {
		return w.fail(fmt.Errorf("create staging: %w", err))
	}
	defer stage.Discard()

	w.state = Walking
	if err := w.walk(ctx, w.share, stage); err != nil {
		return w.fail(err)
	}

	w.state = Finalizing
	artifact, rows, err := stage.Finalize(ShareIdentifier(w.share), time.Now())
	if err != nil {
		return w.fail(fmt.Errorf("finalize artifact: %w", err))
	}
	if err := w.success.Append(w.share, "Success"); err != nil {
		slog.Warn("append success log", "share", w.share, "error", err)
	}

	slog.Info("completed scan for share", "share", w.share,
		"artifact", artifact, "rows", rows, "duration", time.Since(started).Round(time.Second))
	w.state = Succeeded
	return ShareOutcome{Share: w.share, State: Succeeded, ArtifactPath: artifact, FindingCount: rows}
}

// walk recursively visits every directory under dir, scanning matching
// files. Directory access failures are logged and skipped; they are not
// fatal to the share. Cancellation is checked once per directory.
func (w *ShareWorker) walk(ctx context.Context, dir string, stage *ResultStage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.stats.Increment(FoldersScanned)

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Root failures were caught by the existence check; anything deeper
		// only costs us this subtree.
		if dir == w.share {
			return fmt.Errorf("read share root: %w", err)
		}
		slog.Error("cannot access folder, skipping subtree", "folder", dir, "error", err)
		return nil
	}

	var subdirs []string
	var matches []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() {
			subdirs = append(subdirs, entry.Name())
			continue
		}
		if _, ok := KindForPath(entry.Name()); ok {
			matches = append(matches, entry)
		}
	}

	slog.Debug("scanning folder", "folder", dir, "files", len(entries)-len(subdirs), "subfolders", len(subdirs))

	if folders := w.stats.Get(FoldersScanned); folders%progressTraceEvery == 0 {
		slog.Info("scan progress", "folders", folders, "current", dir, "elapsed", w.stats.Elapsed())
	}

	if len(matches) == 0 {
		slog.Debug("no matching files in folder, moving deeper", "folder", dir)
	}

	for _, entry := range matches {
		full := filepath.Join(dir, entry.Name())
		rows, err := w.scanOne(full, entry)
		if err != nil {
			slog.Error("error processing file", "path", full, "error", err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		if err := stage.Append(rows); err != nil {
			return err
		}
	}

	for _, name := range subdirs {
		if err := w.walk(ctx, filepath.Join(dir, name), stage); err != nil {
			return err
		}
	}
	return nil
}

// scanOne scans a single candidate file and maps its outcome to rows: one
// row per finding, or one row carrying the error text with an empty
// FoundString column.
func (w *ShareWorker) scanOne(path string, entry os.DirEntry) ([]Row, error) {
	info, err := entry.Info()
	if err != nil {
		return nil, err
	}
	lastModified := info.ModTime().Format("2006-01-02 15:04:05")
	kind, _ := KindForPath(path)

	outcome := w.scanner.Scan(path)
	if outcome.Failed {
		return []Row{{
			FilePath:     path,
			Status:       outcome.StatusText(),
			LastModified: lastModified,
			Type:         string(kind),
		}}, nil
	}

	rows := make([]Row, 0, len(outcome.Findings))
	for _, f := range outcome.Findings {
		rows = append(rows, Row{
			FilePath:     path,
			Status:       "Found",
			LastModified: lastModified,
			Type:         fmt.Sprintf("%s (%s)", kind, f.Source),
			FoundString:  f.Text,
		})
	}
	return rows, nil
}

// fail records the failure and transitions to the terminal Failed state.
// The deferred stage.Discard in Run removes the staging file.
func (w *ShareWorker) fail(err error) ShareOutcome {
	slog.Error("error scanning share", "share", w.share, "error", err)
	w.logFailure("Failed: " + err.Error())
	w.state = Failed
	return ShareOutcome{Share: w.share, State: Failed, Err: err}
}

func (w *ShareWorker) logFailure(status string) {
	if err := w.failure.Append(w.share, status); err != nil {
		slog.Warn("append failure log", "share", w.share, "error", err)
	}
}
