package scan

import (
	"os"
	"path/filepath"
	"testing"
)

const (
	contentPath = `\\fileserver01.aur.national.com.au\shared\finance`
	macroPath   = `\\aur.national.com.au\legacy\reports`
)

// TestScanContentFinding verifies a literal domain-scoped path in the file
// body yields exactly one content-tagged finding, deduplicated across
// repeated occurrences.
func TestScanContentFinding(t *testing.T) {
	dir := t.TempDir()
	path := writeTextFile(t, dir, "report.docm",
		"header "+contentPath+" middle "+contentPath+" footer")

	stats := NewStats()
	s := NewFileScanner(testMatcher(t), nil, stats)

	out := s.Scan(path)
	if out.Failed {
		t.Fatalf("scan failed: %s", out.StatusText())
	}
	if len(out.Findings) != 1 {
		t.Fatalf("got %d findings, want 1: %+v", len(out.Findings), out.Findings)
	}
	f := out.Findings[0]
	if f.Text != contentPath || f.Source != SourceContent {
		t.Errorf("finding = %+v", f)
	}
	if stats.Get(TotalScanned) != 1 || stats.Get(WithFindings) != 1 {
		t.Errorf("counters: scanned=%d with=%d", stats.Get(TotalScanned), stats.Get(WithFindings))
	}
}

// TestScanCleanFile verifies a match-free file produces zero findings and
// increments total-scanned but not with-findings.
func TestScanCleanFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTextFile(t, dir, "clean.xlsm", "nothing interesting here")

	stats := NewStats()
	s := NewFileScanner(testMatcher(t), nil, stats)

	out := s.Scan(path)
	if out.Failed {
		t.Fatalf("scan failed: %s", out.StatusText())
	}
	if len(out.Findings) != 0 {
		t.Errorf("got findings %+v, want none", out.Findings)
	}
	if stats.Get(TotalScanned) != 1 {
		t.Errorf("TotalScanned = %d, want 1", stats.Get(TotalScanned))
	}
	if stats.Get(WithFindings) != 0 {
		t.Errorf("WithFindings = %d, want 0", stats.Get(WithFindings))
	}
}

// TestScanContentAndMacroFindings is the two-source scenario: one literal in
// visible content, a different one inside a macro blob: two findings with
// the right tags.
func TestScanContentAndMacroFindings(t *testing.T) {
	dir := t.TempDir()
	path := writeTextFile(t, dir, "both.docm", "body mentions "+contentPath)

	stats := NewStats()
	dec := &stubDecoder{has: true, blobs: []string{"Sub Load()\n  p = \"" + macroPath + "\"\nEnd Sub"}}
	s := NewFileScanner(testMatcher(t), dec, stats)

	out := s.Scan(path)
	if out.Failed {
		t.Fatalf("scan failed: %s", out.StatusText())
	}
	if len(out.Findings) != 2 {
		t.Fatalf("got %d findings, want 2: %+v", len(out.Findings), out.Findings)
	}
	bySource := map[Source]string{}
	for _, f := range out.Findings {
		bySource[f.Source] = f.Text
	}
	if bySource[SourceContent] != contentPath {
		t.Errorf("content finding = %q, want %q", bySource[SourceContent], contentPath)
	}
	if bySource[SourceMacro] != macroPath {
		t.Errorf("macro finding = %q, want %q", bySource[SourceMacro], macroPath)
	}
}

// TestScanDecoderFailureKeepsContentResult verifies a decoder failure is
// downgraded: the content finding survives and the file still counts as
// scanned.
func TestScanDecoderFailureKeepsContentResult(t *testing.T) {
	dir := t.TempDir()
	path := writeTextFile(t, dir, "broken.pptm", "uses "+contentPath)

	stats := NewStats()
	s := NewFileScanner(testMatcher(t), failingDecoder, stats)

	out := s.Scan(path)
	if out.Failed {
		t.Fatalf("scan failed: %s", out.StatusText())
	}
	if len(out.Findings) != 1 || out.Findings[0].Source != SourceContent {
		t.Errorf("findings = %+v, want single content finding", out.Findings)
	}
	if stats.Get(TotalScanned) != 1 {
		t.Errorf("TotalScanned = %d, want 1", stats.Get(TotalScanned))
	}
}

// TestScanBinaryNonContainer classifies a NUL-ridden non-container file as
// possibly encrypted and bumps the encrypted counter.
func TestScanBinaryNonContainer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weird.xlsm")
	if err := os.WriteFile(path, []byte{0x00, 0x10, 0x00, 0xFF, 0x00, 0x42}, 0644); err != nil {
		t.Fatal(err)
	}

	stats := NewStats()
	s := NewFileScanner(testMatcher(t), nil, stats)

	out := s.Scan(path)
	if !out.Failed || out.ErrKind != ErrDecode {
		t.Fatalf("outcome = %+v, want decode error", out)
	}
	if got := out.StatusText(); got != "ERROR: Possibly Encrypted" {
		t.Errorf("status = %q", got)
	}
	if stats.Get(SkippedEncrypted) != 1 {
		t.Errorf("SkippedEncrypted = %d, want 1", stats.Get(SkippedEncrypted))
	}
	if stats.Get(TotalScanned) != 0 {
		t.Errorf("TotalScanned = %d, want 0 for failed file", stats.Get(TotalScanned))
	}
}

// TestScanMissingFileIsCorrupted maps an unreadable (non-permission) file to
// the corrupted status, preserving the underlying message.
func TestScanMissingFileIsCorrupted(t *testing.T) {
	stats := NewStats()
	s := NewFileScanner(testMatcher(t), nil, stats)

	out := s.Scan(filepath.Join(t.TempDir(), "gone.docm"))
	if !out.Failed || out.ErrKind != ErrCorrupted {
		t.Fatalf("outcome = %+v, want corrupted", out)
	}
	if out.ErrMsg == "" {
		t.Error("expected underlying error message to be preserved")
	}
	if stats.Get(SkippedCorrupted) != 1 {
		t.Errorf("SkippedCorrupted = %d, want 1", stats.Get(SkippedCorrupted))
	}
}

// TestScanPermissionDenied verifies the permission classification.
func TestScanPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	dir := t.TempDir()
	path := writeTextFile(t, dir, "locked.docm", "secret")
	if err := os.Chmod(path, 0000); err != nil {
		t.Fatal(err)
	}

	stats := NewStats()
	s := NewFileScanner(testMatcher(t), nil, stats)

	out := s.Scan(path)
	if !out.Failed || out.ErrKind != ErrPermission {
		t.Fatalf("outcome = %+v, want permission denied", out)
	}
	if stats.Get(SkippedPermission) != 1 {
		t.Errorf("SkippedPermission = %d, want 1", stats.Get(SkippedPermission))
	}
}

// TestKindForPath covers the three document families and the rejection of
// non-macro extensions.
func TestKindForPath(t *testing.T) {
	cases := []struct {
		path string
		kind DocKind
		ok   bool
	}{
		{"a/b/report.docm", WordMacro, true},
		{"template.DOTM", WordMacro, true},
		{"sheet.xlsm", ExcelMacro, true},
		{"addin.xlam", ExcelMacro, true},
		{"deck.pptm", PowerPointMacro, true},
		{"show.ppsm", PowerPointMacro, true},
		{"plain.docx", "", false},
		{"noext", "", false},
	}
	for _, c := range cases {
		kind, ok := KindForPath(c.path)
		if ok != c.ok || kind != c.kind {
			t.Errorf("KindForPath(%q) = (%q, %v), want (%q, %v)", c.path, kind, ok, c.kind, c.ok)
		}
	}
}
