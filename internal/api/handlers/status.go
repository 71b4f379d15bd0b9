package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/shareaudit/macroscan/internal/scan"
	"github.com/shareaudit/macroscan/internal/scheduler"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	DB      *sql.DB
	Manager *scan.Manager
	Sched   *scheduler.Scheduler
	Version string
}

type statusResponse struct {
	Version          string            `json:"version"`
	ActiveRun        *activeRunInfo    `json:"active_run"`
	Schedule         scheduleInfo      `json:"schedule"`
	LastCompletedRun *completedRunInfo `json:"last_completed_run"`
}

type activeRunInfo struct {
	ID          int64        `json:"id"`
	StartedAt   time.Time    `json:"started_at"`
	TriggeredBy string       `json:"triggered_by"`
	Counters    countersInfo `json:"counters"`
}

type countersInfo struct {
	FilesScanned      int64 `json:"files_scanned"`
	FilesWithFindings int64 `json:"files_with_findings"`
	FoldersScanned    int64 `json:"folders_scanned"`
	SkippedRecent     int64 `json:"skipped_recent"`
	SkippedPermission int64 `json:"skipped_permission"`
	SkippedEncrypted  int64 `json:"skipped_encrypted"`
	SkippedCorrupted  int64 `json:"skipped_corrupted"`
}

type scheduleInfo struct {
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"next_run_at"`
}

type completedRunInfo struct {
	ID                int64     `json:"id"`
	FinishedAt        time.Time `json:"finished_at"`
	SharesSucceeded   int64     `json:"shares_succeeded"`
	SharesFailed      int64     `json:"shares_failed"`
	SharesSkipped     int64     `json:"shares_skipped"`
	FilesScanned      int64     `json:"files_scanned"`
	FilesWithFindings int64     `json:"files_with_findings"`
}

// ServeHTTP returns the system status as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:          h.Version,
		ActiveRun:        h.activeRun(),
		LastCompletedRun: h.lastCompletedRun(),
	}
	if h.Sched != nil {
		resp.Schedule = scheduleInfo{
			Cron:      h.Sched.CronExpr(),
			NextRunAt: h.Sched.NextRunAt(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StatusHandler) activeRun() *activeRunInfo {
	if h.Manager == nil {
		return nil
	}
	active := h.Manager.Active()
	if active == nil {
		return nil
	}
	return &activeRunInfo{
		ID:          active.ID,
		StartedAt:   active.StartedAt.UTC(),
		TriggeredBy: active.TriggeredBy,
		Counters: countersInfo{
			FilesScanned:      active.Stats.Get(scan.TotalScanned),
			FilesWithFindings: active.Stats.Get(scan.WithFindings),
			FoldersScanned:    active.Stats.Get(scan.FoldersScanned),
			SkippedRecent:     active.Stats.Get(scan.SkippedRecent),
			SkippedPermission: active.Stats.Get(scan.SkippedPermission),
			SkippedEncrypted:  active.Stats.Get(scan.SkippedEncrypted),
			SkippedCorrupted:  active.Stats.Get(scan.SkippedCorrupted),
		},
	}
}

func (h *StatusHandler) lastCompletedRun() *completedRunInfo {
	if h.DB == nil {
		return nil
	}
	row := h.DB.QueryRow(`
		SELECT id, finished_at, shares_succeeded, shares_failed, shares_skipped,
		       files_scanned, files_with_findings
		FROM audit_runs
		WHERE status = 'completed'
		ORDER BY finished_at DESC
		LIMIT 1`)

	var info completedRunInfo
	var finishedAt int64
	err := row.Scan(&info.ID, &finishedAt,
		&info.SharesSucceeded, &info.SharesFailed, &info.SharesSkipped,
		&info.FilesScanned, &info.FilesWithFindings)
	if err != nil {
		if err != sql.ErrNoRows {
			slog.Error("status: query last completed run", "error", err)
		}
		return nil
	}
	info.FinishedAt = time.Unix(finishedAt, 0).UTC()
	return &info
}
