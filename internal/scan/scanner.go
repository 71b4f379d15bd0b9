package scan

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/shareaudit/macroscan/internal/pattern"
)

// Source tags where a finding was extracted from.
type Source string

const (
	SourceContent Source = "Content"
	SourceMacro   Source = "Macro"
)

// Finding is one extracted hardcoded path.
type Finding struct {
	Text   string
	Source Source
}

// ErrKind classifies a terminal per-file failure.
type ErrKind int

const (
	ErrPermission ErrKind = iota
	ErrDecode
	ErrCorrupted
)

// StatusText returns the literal status-column string for the error kind,
// carrying the underlying message for corrupted files.
func (o *Outcome) StatusText() string {
	switch o.ErrKind {
	case ErrPermission:
		return "ERROR: Permission Denied"
	case ErrDecode:
		return "ERROR: Possibly Encrypted"
	default:
		return "ERROR: Corrupted or Invalid - " + o.ErrMsg
	}
}

// Outcome is the result of scanning one file: a (possibly empty) set of
// findings, or exactly one classified error, never both.
type Outcome struct {
	Findings []Finding
	Failed   bool
	ErrKind  ErrKind
	ErrMsg   string
}

// Decoder is the macro-decoder collaborator. A nil Decoder degrades the
// scanner to content-only scanning.
type Decoder interface {
	DetectMacros(path string) (bool, error)
	ExtractCode(path string) ([]string, error)
}

// FileScanner scans a single file for hardcoded paths in both its raw
// content and its embedded macro source. Safe for concurrent use.
type FileScanner struct {
	matcher *pattern.Matcher
	decoder Decoder
	stats   *Stats
}

// NewFileScanner builds a FileScanner. decoder may be nil.
func NewFileScanner(matcher *pattern.Matcher, decoder Decoder, stats *Stats) *FileScanner {
	return &FileScanner{matcher: matcher, decoder: decoder, stats: stats}
}

var (
	zipMagic = []byte("PK\x03\x04")
	cfbMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Scan reads path and returns exactly one terminal outcome. Counter
// increments happen here, once per call: total-scanned on success,
// with-findings iff any finding was extracted, and the matching skip
// counter on failure.
func (s *FileScanner) Scan(path string) Outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			s.stats.Increment(SkippedPermission)
			return Outcome{Failed: true, ErrKind: ErrPermission}
		}
		s.stats.Increment(SkippedCorrupted)
		return Outcome{Failed: true, ErrKind: ErrCorrupted, ErrMsg: err.Error()}
	}

	// Macro-enabled files are ZIP or OLE containers. Anything else with
	// binary content in its head is likely encrypted or mangled; there is
	// no text to search.
	if !isContainer(data) && hasBinaryHead(data) {
		s.stats.Increment(SkippedEncrypted)
		return Outcome{Failed: true, ErrKind: ErrDecode}
	}

	found := map[Finding]struct{}{}

	// Content pass: lossy decode, dropping invalid UTF-8 bytes.
	text := strings.ToValidUTF8(string(data), "")
	for _, hit := range s.matcher.MatchesString(text) {
		found[Finding{Text: hit, Source: SourceContent}] = struct{}{}
	}

	// Excel-family files get their cell values scanned too: sheet XML is
	// deflated inside the archive, so the raw-content pass cannot see it.
	if kind, ok := KindForPath(path); ok && kind == ExcelMacro && isZip(data) {
		s.scanWorkbook(path, found)
	}

	// Macro pass. Decoder failures never abort the content result.
	s.scanMacros(path, found)

	outcome := Outcome{Findings: sortedFindings(found)}
	s.stats.Increment(TotalScanned)
	if len(outcome.Findings) > 0 {
		s.stats.Increment(WithFindings)
	}
	return outcome
}

// scanWorkbook matches every cell value in the workbook, tagging hits as
// content findings. Failures are warnings only.
func (s *FileScanner) scanWorkbook(path string, found map[Finding]struct{}) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		slog.Warn("workbook scan failed", "path", path, "error", err)
		return
	}
	defer wb.Close()

	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.Rows(sheet)
		if err != nil {
			continue
		}
		for rows.Next() {
			cells, err := rows.Columns()
			if err != nil {
				break
			}
			for _, cell := range cells {
				if cell == "" {
					continue
				}
				for _, hit := range s.matcher.MatchesString(cell) {
					found[Finding{Text: hit, Source: SourceContent}] = struct{}{}
				}
			}
		}
		rows.Close()
	}
}

// scanMacros runs the pattern over every decoded macro blob. Any decoder
// failure is downgraded to "no macro findings".
func (s *FileScanner) scanMacros(path string, found map[Finding]struct{}) {
	if s.decoder == nil {
		return
	}
	has, err := s.decoder.DetectMacros(path)
	if err != nil {
		slog.Warn("macro detection failed", "path", path, "error", err)
		return
	}
	if !has {
		return
	}
	blobs, err := s.decoder.ExtractCode(path)
	if err != nil {
		slog.Warn("macro extraction failed", "path", path, "error", err)
		return
	}
	for _, blob := range blobs {
		for _, hit := range s.matcher.MatchesString(blob) {
			found[Finding{Text: hit, Source: SourceMacro}] = struct{}{}
		}
	}
}

func sortedFindings(set map[Finding]struct{}) []Finding {
	if len(set) == 0 {
		return nil
	}
	out := make([]Finding, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Text < out[j].Text
	})
	return out
}

func isZip(data []byte) bool { return bytes.HasPrefix(data, zipMagic) }

func isContainer(data []byte) bool {
	return isZip(data) || bytes.HasPrefix(data, cfbMagic)
}

// hasBinaryHead reports whether the first 8 KB contain a NUL byte, the
// classic text/binary sniff.
func hasBinaryHead(data []byte) bool {
	head := data
	if len(head) > 8*1024 {
		head = head[:8*1024]
	}
	return bytes.IndexByte(head, 0) >= 0
}
