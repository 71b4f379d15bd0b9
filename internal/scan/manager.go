package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned when an audit is started while one is in progress.
var ErrAlreadyRunning = errors.New("an audit is already in progress")

// ErrNoActiveRun is returned when cancel is called with no audit running.
var ErrNoActiveRun = errors.New("no audit is currently running")

// ActiveRun holds live information about the running audit.
type ActiveRun struct {
	ID          int64
	StartedAt   time.Time
	TriggeredBy string
	Stats       *Stats
}

// Manager enforces a single-active-audit invariant and exposes start/cancel.
// It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	db     *sql.DB
	shares []string
	cfg    Config
	dec    Decoder

	active   *ActiveRun
	cancelFn context.CancelFunc
}

// NewManager creates a Manager.
func NewManager(db *sql.DB, shares []string, cfg Config, dec Decoder) *Manager {
	return &Manager{db: db, shares: shares, cfg: cfg, dec: dec}
}

// UpdateShares replaces the share list used for future audits. It does NOT
// affect a currently running audit.
func (m *Manager) UpdateShares(shares []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shares = shares
}

// Start launches an asynchronous audit. Returns an ActiveRun snapshot or
// ErrAlreadyRunning if an audit is already in progress.
func (m *Manager) Start(parentCtx context.Context, triggeredBy string) (*ActiveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrAlreadyRunning
	}

	// Create the audit_runs record NOW so the ID is available immediately
	// in the HTTP response, before the goroutine begins executing.
	startedAt := time.Now()
	runID, err := insertRunRecord(m.db, startedAt, triggeredBy, len(m.shares))
	if err != nil {
		return nil, fmt.Errorf("create run record: %w", err)
	}

	stats := NewStats()
	runCtx, cancel := context.WithCancel(parentCtx)

	active := &ActiveRun{
		ID:          runID,
		StartedAt:   startedAt,
		TriggeredBy: triggeredBy,
		Stats:       stats,
	}
	m.active = active
	m.cancelFn = cancel

	auditor := New(m.db, m.shares, m.cfg, m.dec)

	go func() {
		if err := auditor.runAudit(runCtx, runID, startedAt, stats); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("audit run error", "error", err)
		}

		m.mu.Lock()
		m.active = nil
		m.cancelFn = nil
		m.mu.Unlock()
	}()

	return active, nil
}

// Cancel stops the currently running audit. Returns ErrNoActiveRun if idle.
// In-flight share workers observe the cancellation and reach their own
// failure/cleanup path; no new share work is dispatched.
func (m *Manager) Cancel() (*ActiveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoActiveRun
	}

	snap := *m.active
	m.cancelFn()
	return &snap, nil
}

// Active returns a snapshot of the running audit, or nil when idle.
func (m *Manager) Active() *ActiveRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	snap := *m.active
	return &snap
}

// MarkStaleRunsFailed marks any audit_runs rows still in 'running' state as
// 'failed'. Called once at startup in case a previous process crashed
// mid-audit.
func MarkStaleRunsFailed(db *sql.DB) error {
	res, err := db.Exec(`
		UPDATE audit_runs
		SET status = 'failed', finished_at = ?
		WHERE status = 'running'`,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("mark stale runs failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale audit runs as failed", "count", n)
	}
	return nil
}
