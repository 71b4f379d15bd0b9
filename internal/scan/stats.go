package scan

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Counter identifies one of the fixed process-wide scan counters.
type Counter int

const (
	TotalScanned Counter = iota
	WithFindings
	FoldersScanned
	SkippedRecent
	SkippedPermission
	SkippedEncrypted
	SkippedCorrupted
	numCounters
)

var counterNames = [numCounters]string{
	"Total scanned",
	"With hardcoded paths",
	"Folders processed",
	"Skipped - Recent scan",
	"Skipped - Permission denied",
	"Skipped - Encrypted",
	"Skipped - Corrupted",
}

// Stats holds live counters shared by every share worker in a run.
// All fields are atomic so they can be written from worker goroutines and
// read from the HTTP handler without locks.
type Stats struct {
	start    time.Time
	counters [numCounters]atomic.Int64
}

// NewStats returns a Stats with the start time set to now.
func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

// Increment adds one to the named counter.
func (s *Stats) Increment(c Counter) {
	s.counters[c].Add(1)
}

// Get returns the current value of the named counter.
func (s *Stats) Get(c Counter) int64 {
	return s.counters[c].Load()
}

// Elapsed formats the time since the run started as hh:mm:ss.
func (s *Stats) Elapsed() string {
	d := time.Since(s.start).Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	sec := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

// Summary renders the run-end report.
func (s *Stats) Summary() string {
	var b strings.Builder
	b.WriteString("Scan summary:\n")
	for c := Counter(0); c < numCounters; c++ {
		fmt.Fprintf(&b, "  %-28s %s\n", counterNames[c]+":", humanize.Comma(s.Get(c)))
	}
	fmt.Fprintf(&b, "  %-28s %s\n", "Total runtime:", s.Elapsed())
	return b.String()
}
