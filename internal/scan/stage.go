package scan

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// artifactHeader is the column set of every per-share output table.
var artifactHeader = []string{"FilePath", "Status", "Last Modified", "Type", "FoundString"}

// Row is one persisted output unit: a single finding, or a single file-level
// error with an empty FoundString column.
type Row struct {
	FilePath     string
	Status       string
	LastModified string
	Type         string
	FoundString  string
}

func (r Row) record() []string {
	return []string{r.FilePath, r.Status, r.LastModified, r.Type, r.FoundString}
}

// ResultStage accumulates one share's rows in a staging CSV so a crash
// mid-share loses at most the in-flight batch. Finalize turns the staged
// rows into the permanent, sorted artifact. A ResultStage is owned by a
// single worker and needs no locking.
type ResultStage struct {
	dir       string
	path      string
	f         *os.File
	w         *csv.Writer
	finalized bool
}

// NewResultStage creates the staging file in outDir and writes the header.
func NewResultStage(outDir string) (*ResultStage, error) {
	path := filepath.Join(outDir, "staging-"+uuid.New().String()+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(artifactHeader); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write staging header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("flush staging header: %w", err)
	}
	return &ResultStage{dir: outDir, path: path, f: f, w: w}, nil
}

// Append durably adds rows to the staging file, flushing before returning.
func (s *ResultStage) Append(rows []Row) error {
	for _, r := range rows {
		if err := s.w.Write(r.record()); err != nil {
			return fmt.Errorf("stage row for %s: %w", r.FilePath, err)
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush staging file: %w", err)
	}
	return s.f.Sync()
}

// Finalize reads back the staged rows, sorts ascending by file path, and
// writes the permanent artifact named from the share identifier and the
// scan date. The staging file is removed on success. Returns the artifact
// path and the number of data rows written.
func (s *ResultStage) Finalize(identifier string, now time.Time) (string, int, error) {
	s.w.Flush()
	if err := s.f.Close(); err != nil {
		return "", 0, fmt.Errorf("close staging file: %w", err)
	}

	staged, err := os.Open(s.path)
	if err != nil {
		return "", 0, fmt.Errorf("reopen staging file: %w", err)
	}
	records, err := csv.NewReader(staged).ReadAll()
	staged.Close()
	if err != nil {
		return "", 0, fmt.Errorf("read staged rows: %w", err)
	}
	if len(records) > 0 {
		records = records[1:] // drop header
	}
	sort.Slice(records, func(i, j int) bool { return records[i][0] < records[j][0] })

	name := fmt.Sprintf("%s-MacroScan-%s.csv", identifier, now.Format("20060102"))
	final := filepath.Join(s.dir, name)
	out, err := os.Create(final)
	if err != nil {
		return "", 0, fmt.Errorf("create artifact %s: %w", name, err)
	}
	w := csv.NewWriter(out)
	if err := w.Write(artifactHeader); err == nil {
		err = w.WriteAll(records)
	}
	if err == nil {
		w.Flush()
		err = w.Error()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write artifact %s: %w", name, err)
	}

	if err := os.Remove(s.path); err != nil {
		return "", 0, fmt.Errorf("remove staging file: %w", err)
	}
	s.finalized = true
	return final, len(records), nil
}

// Discard is the deterministic release hook: workers defer it so the
// staging file is removed on every exit path. After a successful Finalize
// it is a no-op; otherwise cleanup is best-effort and errors are swallowed.
func (s *ResultStage) Discard() {
	if s.finalized {
		return
	}
	s.f.Close()
	os.Remove(s.path)
}
