// Package pattern implements the hardcoded-path search applied to file
// content and extracted macro source.
package pattern

import (
	"regexp"
	"sort"
)

// DefaultDomain is the internal domain suffix audited for hardcoded paths.
const DefaultDomain = "aur.national.com.au"

// Matcher holds the two compiled search patterns: a generic UNC pattern for
// any host under the domain suffix, and a narrower pattern for paths rooted
// at the domain itself (DFS-style \\domain\share references).
// Both are compiled once; a Matcher is safe for concurrent use.
type Matcher struct {
	host *regexp.Regexp
	root *regexp.Regexp
}

// NewMatcher compiles the patterns for the given domain suffix.
// An empty domain falls back to DefaultDomain.
func NewMatcher(domain string) *Matcher {
	if domain == "" {
		domain = DefaultDomain
	}
	quoted := regexp.QuoteMeta(domain)
	return &Matcher{
		host: regexp.MustCompile(`\\\\[a-zA-Z0-9,._-]+\.` + quoted + `\\[a-zA-Z0-9$_\-\\]+`),
		root: regexp.MustCompile(`\\\\` + quoted + `\\[a-zA-Z0-9$_\-\\]+`),
	}
}

// Matches returns every distinct substring of data matching either pattern.
// Each matched string appears once per call regardless of how many times it
// occurs in data. The result is sorted so output is deterministic.
func (m *Matcher) Matches(data []byte) []string {
	seen := map[string]struct{}{}
	for _, re := range [2]*regexp.Regexp{m.host, m.root} {
		for _, hit := range re.FindAll(data, -1) {
			seen[string(hit)] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// MatchesString is Matches over a string buffer.
func (m *Matcher) MatchesString(s string) []string {
	return m.Matches([]byte(s))
}
