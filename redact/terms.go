/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package redact

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// TermScanner reports which terms from a company's deny list occur in a
// transcript. Compliance teams use it to flag calls that mention competitor
// names or forbidden claims. Matching is case-insensitive substring search
// over the whole text.
type TermScanner struct {
	matcher *ahocorasick.Matcher
	terms   []string
}

// NewTermScanner compiles the deny list into a scanner. The term order is
// preserved in Scan results. An empty list yields a scanner that never
// matches.
func NewTermScanner(terms []string) *TermScanner {
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return &TermScanner{
		matcher: ahocorasick.NewStringMatcher(lowered),
		terms:   terms,
	}
}

// Scan returns the deny-list terms present in text, in deny-list order,
// each at most once.
func (s *TermScanner) Scan(text string) []string {
	if len(s.terms) == 0 {
		return nil
	}
	hits := s.matcher.Match([]byte(strings.ToLower(text)))
	if len(hits) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(hits))
	for _, idx := range hits {
		seen[idx] = true
	}
	found := make([]string, 0, len(seen))
	for i, term := range s.terms {
		if seen[i] {
			found = append(found, term)
		}
	}
	return found
}
