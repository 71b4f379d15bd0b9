package scan

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SkipPolicy decides whether a share was already scanned recently enough
// that re-scanning it would be wasted work. Freshness is judged from the
// modification time of the share's newest artifact in the output directory.
type SkipPolicy struct {
	outDir    string
	threshold int // whole days
	stats     *Stats
	now       func() time.Time
}

// NewSkipPolicy builds a SkipPolicy over outDir with the given freshness
// threshold in days.
func NewSkipPolicy(outDir string, thresholdDays int, stats *Stats) *SkipPolicy {
	return &SkipPolicy{outDir: outDir, threshold: thresholdDays, stats: stats, now: time.Now}
}

// ShareIdentifier derives the identifier used in artifact filenames: the
// last two non-empty path segments joined by "-", or fewer for shallow
// paths. Both slash styles are accepted since share lists are written on
// Windows and consumed anywhere.
func ShareIdentifier(sharePath string) string {
	segments := strings.FieldsFunc(sharePath, func(r rune) bool {
		return r == '\\' || r == '/'
	})
	if len(segments) > 2 {
		segments = segments[len(segments)-2:]
	}
	return strings.Join(segments, "-")
}

// ShouldSkip reports whether sharePath has a matching artifact younger than
// the threshold. When several artifacts match the identifier the newest one
// decides. Skipping increments the skipped-recent counter and traces the
// decision.
func (p *SkipPolicy) ShouldSkip(sharePath string) bool {
	id := ShareIdentifier(sharePath)
	if id == "" {
		return false
	}

	entries, err := os.ReadDir(p.outDir)
	if err != nil {
		return false
	}

	var newest time.Time
	var newestName string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") || !strings.Contains(name, id) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
			newestName = name
		}
	}
	if newestName == "" {
		return false
	}

	ageDays := int(p.now().Sub(newest).Hours() / 24)
	if ageDays < p.threshold {
		slog.Info("skipping share, already scanned within threshold window",
			"share", sharePath, "artifact", filepath.Join(p.outDir, newestName), "age_days", ageDays)
		p.stats.Increment(SkippedRecent)
		return true
	}
	return false
}
