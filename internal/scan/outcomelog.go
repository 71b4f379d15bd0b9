package scan

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"
)

// OutcomeLog is a process-wide append-only CSV recording one row per
// completed share attempt. Two instances exist per output directory: the
// success log and the failure log. Appends are serialised by a mutex since
// every worker shares the same log. The file is never truncated, so history
// accumulates across runs.
type OutcomeLog struct {
	mu   sync.Mutex
	path string
}

// OpenOutcomeLog opens (or creates) the log at path, writing the header row
// only when the file does not yet exist.
func OpenOutcomeLog(path string) (*OutcomeLog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
		if err != nil {
			return nil, fmt.Errorf("create outcome log %q: %w", path, err)
		}
		w := csv.NewWriter(f)
		if err := w.Write([]string{"SharePath", "ScanDate", "Status"}); err == nil {
			w.Flush()
			err = w.Error()
		} else {
			w.Flush()
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("write outcome log header %q: %w", path, err)
		}
	}
	return &OutcomeLog{path: path}, nil
}

// Append records one share attempt with the current timestamp.
func (l *OutcomeLog) Append(sharePath, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open outcome log %q: %w", l.path, err)
	}
	w := csv.NewWriter(f)
	err = w.Write([]string{sharePath, time.Now().Format("2006-01-02 15:04:05"), status})
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("append outcome log %q: %w", l.path, err)
	}
	return nil
}

// Path returns the log's file path.
func (l *OutcomeLog) Path() string { return l.path }
