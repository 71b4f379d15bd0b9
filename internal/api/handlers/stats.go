package handlers

import (
	"database/sql"
	"log/slog"
	"net/http"
)

// StatsHandler handles GET /api/stats: lifetime aggregates across all runs.
type StatsHandler struct {
	DB *sql.DB
}

type statsResponse struct {
	Runs              int64 `json:"runs"`
	CompletedRuns     int64 `json:"completed_runs"`
	FilesScanned      int64 `json:"files_scanned"`
	FilesWithFindings int64 `json:"files_with_findings"`
	FoldersScanned    int64 `json:"folders_scanned"`
	SkippedRecent     int64 `json:"skipped_recent"`
	SkippedPermission int64 `json:"skipped_permission"`
	SkippedEncrypted  int64 `json:"skipped_encrypted"`
	SkippedCorrupted  int64 `json:"skipped_corrupted"`
}

// ServeHTTP returns totals summed over audit history.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	err := h.DB.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(files_scanned), 0),
		       COALESCE(SUM(files_with_findings), 0),
		       COALESCE(SUM(folders_scanned), 0),
		       COALESCE(SUM(skipped_recent), 0),
		       COALESCE(SUM(skipped_permission), 0),
		       COALESCE(SUM(skipped_encrypted), 0),
		       COALESCE(SUM(skipped_corrupted), 0)
		FROM audit_runs`).
		Scan(&resp.Runs, &resp.CompletedRuns,
			&resp.FilesScanned, &resp.FilesWithFindings, &resp.FoldersScanned,
			&resp.SkippedRecent, &resp.SkippedPermission,
			&resp.SkippedEncrypted, &resp.SkippedCorrupted)
	if err != nil {
		slog.Error("stats: aggregate query", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "could not aggregate stats")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
