package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shareaudit/macroscan/internal/scan"
)

// RunsHandler handles the /api/runs endpoints.
type RunsHandler struct {
	DB      *sql.DB
	Manager *scan.Manager
}

type runInfo struct {
	ID                int64      `json:"id"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at"`
	DurationSeconds   *int64     `json:"duration_seconds"`
	Status            string     `json:"status"`
	TriggeredBy       string     `json:"triggered_by"`
	SharesTotal       int64      `json:"shares_total"`
	SharesSucceeded   int64      `json:"shares_succeeded"`
	SharesFailed      int64      `json:"shares_failed"`
	SharesSkipped     int64      `json:"shares_skipped"`
	FilesScanned      int64      `json:"files_scanned"`
	FilesWithFindings int64      `json:"files_with_findings"`
	FoldersScanned    int64      `json:"folders_scanned"`
}

type shareResultInfo struct {
	SharePath    string  `json:"share_path"`
	Status       string  `json:"status"`
	Error        *string `json:"error"`
	ArtifactPath *string `json:"artifact_path"`
	FindingCount int64   `json:"finding_count"`
}

// Create starts a new audit. 409 when one is already in progress.
func (h *RunsHandler) Create(w http.ResponseWriter, r *http.Request) {
	active, err := h.Manager.Start(r.Context(), "api")
	if err != nil {
		if errors.Is(err, scan.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "already_running", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "start_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":         active.ID,
		"started_at": active.StartedAt.UTC(),
	})
}

// Cancel stops the running audit. 404 when idle.
func (h *RunsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	active, err := h.Manager.Cancel()
	if err != nil {
		writeError(w, http.StatusNotFound, "no_active_run", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": active.ID, "cancelling": true})
}

const runColumns = `
	id, started_at, finished_at, duration_seconds, status, triggered_by,
	shares_total, shares_succeeded, shares_failed, shares_skipped,
	files_scanned, files_with_findings, folders_scanned`

func scanRunRow(scanner interface{ Scan(...any) error }) (runInfo, error) {
	var info runInfo
	var startedAt int64
	var finishedAt, duration sql.NullInt64
	err := scanner.Scan(&info.ID, &startedAt, &finishedAt, &duration,
		&info.Status, &info.TriggeredBy,
		&info.SharesTotal, &info.SharesSucceeded, &info.SharesFailed, &info.SharesSkipped,
		&info.FilesScanned, &info.FilesWithFindings, &info.FoldersScanned)
	if err != nil {
		return info, err
	}
	info.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		info.FinishedAt = &t
	}
	if duration.Valid {
		info.DurationSeconds = &duration.Int64
	}
	return info, nil
}

// List returns the most recent runs, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := h.DB.Query(`SELECT `+runColumns+` FROM audit_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		slog.Error("runs: list query", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "could not list runs")
		return
	}
	defer rows.Close()

	items := []runInfo{}
	for rows.Next() {
		info, err := scanRunRow(rows)
		if err != nil {
			slog.Error("runs: scan row", "error", err)
			continue
		}
		items = append(items, info)
	}
	writeJSON(w, http.StatusOK, ListResponse[runInfo]{Items: items, Total: len(items)})
}

// Get returns one run by ID.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_id", "run id must be an integer")
		return
	}
	info, err := scanRunRow(h.DB.QueryRow(`SELECT `+runColumns+` FROM audit_runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "no such run")
			return
		}
		slog.Error("runs: get query", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Shares returns per-share outcomes for one run.
func (h *RunsHandler) Shares(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_id", "run id must be an integer")
		return
	}

	rows, err := h.DB.Query(`
		SELECT share_path, status, error, artifact_path, finding_count
		FROM share_results WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		slog.Error("runs: shares query", "error", err)
		writeError(w, http.StatusInternalServerError, "query_failed", "could not load share results")
		return
	}
	defer rows.Close()

	items := []shareResultInfo{}
	for rows.Next() {
		var info shareResultInfo
		var errText, artifact sql.NullString
		if err := rows.Scan(&info.SharePath, &info.Status, &errText, &artifact, &info.FindingCount); err != nil {
			slog.Error("runs: scan share row", "error", err)
			continue
		}
		if errText.Valid {
			info.Error = &errText.String
		}
		if artifact.Valid {
			info.ArtifactPath = &artifact.String
		}
		items = append(items, info)
	}
	writeJSON(w, http.StatusOK, ListResponse[shareResultInfo]{Items: items, Total: len(items)})
}
