// Package index discovers 13F submissions by walking the quarterly EDGAR
// full-index listings (master.idx) for a set of filer CIKs.
package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/internal/fetch"
	"github.com/seenimoa/holdings13f/internal/sec"
	"github.com/seenimoa/holdings13f/pkg/models"
)

// Getter is the subset of fetch.Client the scanner needs.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Quarter is one calendar quarter.
type Quarter struct {
	Year int
	Q    int // 1..4
}

func (q Quarter) String() string { return fmt.Sprintf("Q%d-%d", q.Q, q.Year) }

// QuarterOf returns the quarter containing t.
func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}

// Next returns the following quarter.
func (q Quarter) Next() Quarter {
	if q.Q == 4 {
		return Quarter{Year: q.Year + 1, Q: 1}
	}
	return Quarter{Year: q.Year, Q: q.Q + 1}
}

func (q Quarter) after(o Quarter) bool {
	return q.Year > o.Year || (q.Year == o.Year && q.Q > o.Q)
}

// QuarterRange lists every quarter from the one containing from through
// the one containing to, inclusive.
func QuarterRange(from, to time.Time) []Quarter {
	start, end := QuarterOf(from), QuarterOf(to)
	var out []Quarter
	for q := start; !q.after(end); q = q.Next() {
		out = append(out, q)
	}
	return out
}

// Query selects the filings to discover.
type Query struct {
	// Targets maps a 10-digit CIK to the manager group it belongs to.
	Targets map[string]string
	Forms   []string
	Since   time.Time // filing-date lower bound, inclusive
}

// Scanner walks master.idx files.
type Scanner struct {
	client    Getter
	endpoints sec.Endpoints
	log       *zap.Logger
	now       func() time.Time
}

// NewScanner creates a scanner that reads index files through client.
func NewScanner(client Getter, endpoints sec.Endpoints, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{
		client:    client,
		endpoints: endpoints,
		log:       log,
		now:       time.Now,
	}
}

// WithClock replaces the clock that decides the last quarter scanned.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Scan fetches every quarterly index from q.Since through the current
// quarter and returns the matching filings, de-duplicated by
// (CIK, accession) and ordered by filing date then accession.
//
// A missing or unreadable quarter is logged and skipped. Only context
// cancellation aborts the scan.
func (s *Scanner) Scan(ctx context.Context, q Query) ([]models.FilingReference, error) {
	forms := make(map[string]bool, len(q.Forms))
	for _, f := range q.Forms {
		forms[strings.TrimSpace(f)] = true
	}

	quarters := QuarterRange(q.Since, s.now())
	s.log.Info("scanning full index",
		zap.Int("quarters", len(quarters)),
		zap.Int("ciks", len(q.Targets)),
		zap.Time("since", q.Since),
	)

	var all []models.FilingReference
	for i, qt := range quarters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		url := s.endpoints.MasterIndex(qt.Year, qt.Q)
		data, err := s.client.Get(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if fetch.IsNotFound(err) {
				s.log.Debug("index not found, skipping", zap.Stringer("quarter", qt))
			} else {
				s.log.Warn("index fetch failed, skipping", zap.Stringer("quarter", qt), zap.Error(err))
			}
			continue
		}

		text := Decode(data)
		if !Plausible(text) {
			s.log.Warn("index has no delimiters, skipping", zap.Stringer("quarter", qt), zap.Int("bytes", len(data)))
			continue
		}
		refs, header := Filter(text, q.Targets, forms, q.Since)
		if !header {
			s.log.Warn("no header line in index", zap.Stringer("quarter", qt))
		}
		s.log.Debug("index scanned",
			zap.Stringer("quarter", qt),
			zap.Int("n", i+1),
			zap.Int("matches", len(refs)),
		)
		all = append(all, refs...)
	}

	out := Dedupe(all)
	s.log.Info("index scan complete", zap.Int("filings", len(out)))
	return out, nil
}

// Filter parses one index document and keeps the rows whose form is in
// forms, whose padded CIK is a key of targets and whose filing date is on
// or after since.
func Filter(text string, targets map[string]string, forms map[string]bool, since time.Time) ([]models.FilingReference, bool) {
	rows, header := ParseMaster(text)
	var out []models.FilingReference
	for _, r := range rows {
		if !forms[r.Form] {
			continue
		}
		cik, ok := NormalizeCIK(r.CIK)
		if !ok {
			continue
		}
		group, ok := targets[cik]
		if !ok {
			continue
		}
		filed := sec.ParseDate(r.FilingDate)
		if filed.IsZero() || filed.Before(since) {
			continue
		}
		cikInt := CIKFromPath(r.Filename)
		if cikInt == "" {
			cikInt = sec.TrimCIK(cik)
		}
		out = append(out, models.FilingReference{
			Group:      group,
			CIK:        cik,
			CIKInt:     cikInt,
			Form:       r.Form,
			FilingDate: filed,
			Accession:  AccessionFromPath(r.Filename),
			IndexPath:  r.Filename,
		})
	}
	return out, header
}

// Dedupe keeps the last-seen reference per (CIK, accession) and sorts the
// result by filing date, then accession.
func Dedupe(refs []models.FilingReference) []models.FilingReference {
	byKey := make(map[string]models.FilingReference, len(refs))
	for _, r := range refs {
		byKey[r.Key()] = r
	}
	out := make([]models.FilingReference, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FilingDate.Equal(out[j].FilingDate) {
			return out[i].FilingDate.Before(out[j].FilingDate)
		}
		if out[i].Accession != out[j].Accession {
			return out[i].Accession < out[j].Accession
		}
		return out[i].CIK < out[j].CIK
	})
	return out
}
