package scan

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	internaldb "github.com/shareaudit/macroscan/internal/db"
	"github.com/shareaudit/macroscan/internal/pattern"
)

// mustOpenDB opens a temp file SQLite database with the full schema applied.
func mustOpenDB(tb testing.TB) *sql.DB {
	tb.Helper()
	dbPath := filepath.Join(tb.TempDir(), "test.db")
	db, err := internaldb.Open(dbPath)
	if err != nil {
		tb.Fatalf("open test DB: %v", err)
	}
	if err := internaldb.RunMigrations(db); err != nil {
		db.Close()
		tb.Fatalf("run migrations: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}

// testMatcher returns a matcher for the production domain.
func testMatcher(tb testing.TB) *pattern.Matcher {
	tb.Helper()
	return pattern.NewMatcher("")
}

// stubDecoder is a canned macro-decoder collaborator.
type stubDecoder struct {
	has   bool
	blobs []string
	err   error
}

func (d *stubDecoder) DetectMacros(string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.has, nil
}

func (d *stubDecoder) ExtractCode(string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.blobs, nil
}

// failingDecoder always errors, exercising the downgrade-to-warning path.
var failingDecoder = &stubDecoder{err: errors.New("container mangled")}

// writeTextFile writes a plain text file and returns its path.
func writeTextFile(tb testing.TB, dir, name, content string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		tb.Fatalf("write %q: %v", path, err)
	}
	return path
}

// mustOutcomeLogs opens a success/failure log pair in dir.
func mustOutcomeLogs(tb testing.TB, dir string) (*OutcomeLog, *OutcomeLog) {
	tb.Helper()
	success, err := OpenOutcomeLog(filepath.Join(dir, "scan_success_log.csv"))
	if err != nil {
		tb.Fatalf("open success log: %v", err)
	}
	failure, err := OpenOutcomeLog(filepath.Join(dir, "scan_failure_log.csv"))
	if err != nil {
		tb.Fatalf("open failure log: %v", err)
	}
	return success, failure
}

// readCSV reads all records (including the header) from path.
func readCSV(tb testing.TB, path string) [][]string {
	tb.Helper()
	f, err := os.Open(path)
	if err != nil {
		tb.Fatalf("open %q: %v", path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		tb.Fatalf("read %q: %v", path, err)
	}
	return records
}

// findArtifact returns the single finalized artifact for identifier in dir,
// failing the test when none or several exist.
func findArtifact(tb testing.TB, dir, identifier string) string {
	tb.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, identifier+"-MacroScan-*.csv"))
	if err != nil {
		tb.Fatal(err)
	}
	if len(matches) != 1 {
		tb.Fatalf("found %d artifacts for %q, want 1: %v", len(matches), identifier, matches)
	}
	return matches[0]
}
