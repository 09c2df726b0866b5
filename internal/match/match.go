// Package match maps reported security identifiers onto the operator's
// watch list. Filings often truncate CUSIPs to eight or six characters,
// so matching falls back from exact to prefix lookups.
package match

import (
	"sort"
	"strings"
)

// Matcher matches reported CUSIPs against a fixed watch list.
type Matcher struct {
	watch []string // sorted, upper-case
	exact map[string]string
	pref8 map[string]string
	pref6 map[string]string
}

// NewMatcher builds the lookup tables for cusips. When two watched
// identifiers share a prefix the lexically smallest one owns it.
func NewMatcher(cusips []string) *Matcher {
	m := &Matcher{
		exact: make(map[string]string),
		pref8: make(map[string]string),
		pref6: make(map[string]string),
	}
	seen := make(map[string]bool)
	for _, c := range cusips {
		c = normalize(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		m.watch = append(m.watch, c)
	}
	sort.Strings(m.watch)
	for _, c := range m.watch {
		m.exact[c] = c
		if len(c) >= 8 {
			if _, ok := m.pref8[c[:8]]; !ok {
				m.pref8[c[:8]] = c
			}
		}
		if len(c) >= 6 {
			if _, ok := m.pref6[c[:6]]; !ok {
				m.pref6[c[:6]] = c
			}
		}
	}
	return m
}

// Len returns the number of watched identifiers.
func (m *Matcher) Len() int { return len(m.watch) }

// Watched returns the watch list, sorted.
func (m *Matcher) Watched() []string {
	return append([]string(nil), m.watch...)
}

// Match returns the watched identifier raw refers to: exact match, then
// the 8-character prefix table, then the 6-character one, then literal
// prefix containment in either direction.
func (m *Matcher) Match(raw string) (string, bool) {
	c := normalize(raw)
	if c == "" {
		return "", false
	}
	if w, ok := m.exact[c]; ok {
		return w, true
	}
	if len(c) >= 8 {
		if w, ok := m.pref8[c[:8]]; ok {
			return w, true
		}
	}
	if len(c) >= 6 {
		if w, ok := m.pref6[c[:6]]; ok {
			return w, true
		}
	}
	for _, w := range m.watch {
		if strings.HasPrefix(w, c) || strings.HasPrefix(c, w) {
			return w, true
		}
	}
	return "", false
}

// Matches reports whether raw matches any watched identifier.
func (m *Matcher) Matches(raw string) bool {
	_, ok := m.Match(raw)
	return ok
}

// Contains reports whether text mentions a watched identifier, in full or
// by its 8- or 6-character prefix. It is a cheap pre-filter for large
// multi-document files.
func (m *Matcher) Contains(text string) bool {
	upper := strings.ToUpper(text)
	for _, tbl := range []map[string]string{m.exact, m.pref8, m.pref6} {
		for k := range tbl {
			if strings.Contains(upper, k) {
				return true
			}
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
