// Package extract turns raw 13F documents into information-table rows.
//
// Filings span two decades of formats: well-formed XML information
// tables, SGML and HTML renditions with the same field names, plain text
// tables, and full-submission files that bundle several documents. Each
// format is handled by a Strategy; a Chain tries them in order.
package extract

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/seenimoa/holdings13f/pkg/models"
)

// Strategy extracts holding rows from one document. An empty result with
// a nil error means the strategy found nothing it recognized.
type Strategy interface {
	Name() string
	Extract(doc []byte) ([]models.HoldingRow, error)
}

// IdentifierFilter narrows extraction to watched securities.
type IdentifierFilter interface {
	// Contains reports whether text mentions any watched identifier.
	Contains(text string) bool
	// Matches reports whether a reported identifier is watched.
	Matches(cusip string) bool
}

// Chain tries strategies in order and returns the first non-empty result.
type Chain []Strategy

// DefaultChain is the chain used for individual filing documents.
func DefaultChain() Chain {
	return Chain{XMLStrategy{}, TagPatternStrategy{}}
}

// Name implements Strategy.
func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, s := range c {
		names = append(names, s.Name())
	}
	return strings.Join(names, ">")
}

// Extract implements Strategy.
func (c Chain) Extract(doc []byte) ([]models.HoldingRow, error) {
	rows, _, err := c.Run(doc)
	return rows, err
}

// Run is Extract that also reports which strategy produced the rows.
// Strategy errors fall through to the next strategy; they are returned
// joined only when no strategy produced anything.
func (c Chain) Run(doc []byte) (rows []models.HoldingRow, used string, err error) {
	return c.RunFiltered(doc, nil)
}

// RunFiltered is Run that keeps trying strategies until one yields a row
// whose identifier filter matches. When none does, the first non-empty
// result is returned so callers can still report what was parsed. A nil
// filter accepts any row.
func (c Chain) RunFiltered(doc []byte, filter IdentifierFilter) (rows []models.HoldingRow, used string, err error) {
	var errs []error
	var fallback []models.HoldingRow
	var fallbackName string
	for _, s := range c {
		got, err := s.Extract(doc)
		if err != nil {
			errs = append(errs, err)
		}
		if len(got) == 0 {
			continue
		}
		if filter == nil || anyWatched(got, filter) {
			return got, s.Name(), nil
		}
		if fallback == nil {
			fallback, fallbackName = got, s.Name()
		}
	}
	if fallback != nil {
		return fallback, fallbackName, nil
	}
	return nil, "", errors.Join(errs...)
}

func anyWatched(rows []models.HoldingRow, filter IdentifierFilter) bool {
	for _, r := range rows {
		if filter.Matches(r.CUSIP) {
			return true
		}
	}
	return false
}

// decodeText reads doc as UTF-8, falling back to Latin-1 when it is not
// valid UTF-8.
func decodeText(doc []byte) string {
	if utf8.Valid(doc) {
		return string(doc)
	}
	if b, err := charmap.ISO8859_1.NewDecoder().Bytes(doc); err == nil {
		return string(b)
	}
	return strings.ToValidUTF8(string(doc), "\uFFFD")
}

// parseAmount reads a reported number, tolerating thousands separators,
// currency signs and decimals. Unreadable input counts as zero.
func parseAmount(s string) int64 {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// newRow validates a row; rows without an identifier are dropped.
func newRow(r models.HoldingRow) (models.HoldingRow, bool) {
	row, err := models.NewHoldingRow(r)
	if err != nil {
		return models.HoldingRow{}, false
	}
	return row, true
}
