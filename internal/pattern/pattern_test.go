package pattern

import (
	"reflect"
	"strings"
	"testing"
)

// TestMatcherFindsHostScopedPath verifies a UNC path on a host under the
// domain suffix is returned exactly as it appears in the buffer.
func TestMatcherFindsHostScopedPath(t *testing.T) {
	m := NewMatcher("")
	buf := []byte(`Set conn = OpenShare("\\fileserver01.aur.national.com.au\shared\finance")`)

	got := m.Matches(buf)
	want := []string{`\\fileserver01.aur.national.com.au\shared\finance`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Matches = %q, want %q", got, want)
	}
}

// TestMatcherFindsDomainRootPath verifies the narrower pattern catches paths
// rooted at the bare domain.
func TestMatcherFindsDomainRootPath(t *testing.T) {
	m := NewMatcher("")
	buf := []byte(`legacy = "\\aur.national.com.au\legacy\reports"`)

	got := m.Matches(buf)
	want := []string{`\\aur.national.com.au\legacy\reports`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Matches = %q, want %q", got, want)
	}
}

// TestMatcherDeduplicatesPerBuffer repeats the same path three times and
// expects a single result.
func TestMatcherDeduplicatesPerBuffer(t *testing.T) {
	m := NewMatcher("")
	line := `\\host9.aur.national.com.au\data` + "\n"
	got := m.Matches([]byte(strings.Repeat(line, 3)))
	if len(got) != 1 {
		t.Fatalf("got %d matches, want 1: %q", len(got), got)
	}
}

// TestMatcherIgnoresForeignDomains checks that paths on other domains do not
// match even when structurally identical.
func TestMatcherIgnoresForeignDomains(t *testing.T) {
	m := NewMatcher("")
	buf := []byte(`\\srv.example.com\share\docs and \\plainhost\share`)
	if got := m.Matches(buf); got != nil {
		t.Errorf("expected no matches, got %q", got)
	}
}

// TestMatcherResultIsSorted feeds matches out of lexical order and expects
// sorted output.
func TestMatcherResultIsSorted(t *testing.T) {
	m := NewMatcher("")
	buf := []byte(`\\zz.aur.national.com.au\b then \\aa.aur.national.com.au\a`)
	got := m.Matches(buf)
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2: %q", len(got), got)
	}
	if got[0] > got[1] {
		t.Errorf("matches not sorted: %q", got)
	}
}

// TestMatcherCustomDomain verifies the domain suffix is configurable and
// regex metacharacters in it are treated literally.
func TestMatcherCustomDomain(t *testing.T) {
	m := NewMatcher("corp.example.org")
	buf := []byte(`\\nas1.corp.example.org\backups\q3`)
	got := m.Matches(buf)
	if len(got) != 1 || got[0] != `\\nas1.corp.example.org\backups\q3` {
		t.Errorf("Matches = %q", got)
	}
	// The dot must not act as a wildcard.
	if got := m.Matches([]byte(`\\nas1.corpXexampleYorg\backups`)); got != nil {
		t.Errorf("dot matched as wildcard: %q", got)
	}
}
