package extract

import (
	"regexp"

	"github.com/seenimoa/holdings13f/pkg/models"
)

var (
	documentRe = regexp.MustCompile(`(?is)<DOCUMENT>(.*?)</DOCUMENT>`)
	textRe     = regexp.MustCompile(`(?is)<TEXT>(.*?)(?:</TEXT>|$)`)
)

// SubmissionStrategy reads full-submission text files, which bundle the
// cover page and one or more information tables as <DOCUMENT> sections.
// Older filings split domestic and foreign holdings across sections, so
// every section mentioning a watched identifier is parsed with Inner and
// only watched rows are kept.
type SubmissionStrategy struct {
	Filter IdentifierFilter
	Inner  Chain // defaults to DefaultChain
}

// NewSubmissionStrategy creates a submission strategy over filter.
func NewSubmissionStrategy(filter IdentifierFilter) SubmissionStrategy {
	return SubmissionStrategy{Filter: filter, Inner: DefaultChain()}
}

// Name implements Strategy.
func (SubmissionStrategy) Name() string { return "submission" }

// Extract implements Strategy. A file without <DOCUMENT> markers is
// parsed as a whole.
func (s SubmissionStrategy) Extract(doc []byte) ([]models.HoldingRow, error) {
	inner := s.Inner
	if len(inner) == 0 {
		inner = DefaultChain()
	}
	text := decodeText(doc)
	sections := documentRe.FindAllStringSubmatch(text, -1)
	if len(sections) == 0 {
		rows, err := inner.Extract([]byte(text))
		return s.keep(rows), err
	}

	var out []models.HoldingRow
	for _, section := range sections {
		body := section[1]
		if s.Filter != nil && !s.Filter.Contains(body) {
			continue
		}
		payload := body
		if m := textRe.FindStringSubmatch(body); m != nil {
			payload = m[1]
		}
		rows, _ := inner.Extract([]byte(payload))
		out = append(out, s.keep(rows)...)
	}
	return out, nil
}

func (s SubmissionStrategy) keep(rows []models.HoldingRow) []models.HoldingRow {
	if s.Filter == nil {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if s.Filter.Matches(r.CUSIP) {
			out = append(out, r)
		}
	}
	return out
}
