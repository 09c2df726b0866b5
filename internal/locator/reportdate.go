package locator

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/pkg/models"
)

var (
	reportCalendarRe  = regexp.MustCompile(`(?i)<reportCalendarOrQuarter>\s*(\d{4}-\d{2}-\d{2}|\d{2}-\d{2}-\d{4})\s*</reportCalendarOrQuarter>`)
	conformedPeriodRe = regexp.MustCompile(`(?i)CONFORMED\s+PERIOD\s+OF\s+REPORT:\s*(\d{8})`)
)

// ReportDate resolves the quarter-end a filing reports on. The primary
// document (when known), primary_doc.xml and 0.xml are read in turn for a
// reportCalendarOrQuarter element or a CONFORMED PERIOD OF REPORT header.
// When none of them yields a date the period is inferred from the filing
// date; extracted is false in that case.
func (l *Locator) ReportDate(ctx context.Context, ref models.FilingReference) (date time.Time, extracted bool) {
	dir := l.Dir(ref)
	names := []string{"primary_doc.xml", "0.xml"}
	if ref.PrimaryDoc != "" {
		names = append([]string{ref.PrimaryDoc}, names...)
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if ctx.Err() != nil {
			break
		}
		data, err := l.client.Get(ctx, dir+name)
		if err != nil {
			continue
		}
		if d := ParseReportDate(data); !d.IsZero() {
			return d, true
		}
	}
	guess := GuessReportDate(ref.FilingDate)
	l.log.Debug("report date guessed from filing date",
		zap.String("accession", ref.Accession),
		zap.Time("report_date", guess),
	)
	return guess, false
}

// ParseReportDate finds the report period in a cover document.
func ParseReportDate(doc []byte) time.Time {
	if m := reportCalendarRe.FindSubmatch(doc); m != nil {
		// XML cover pages use MM-DD-YYYY; some older ones ISO dates.
		for _, layout := range []string{"2006-01-02", "01-02-2006"} {
			if t, err := time.Parse(layout, string(m[1])); err == nil {
				return t
			}
		}
	}
	if m := conformedPeriodRe.FindSubmatch(doc); m != nil {
		if t, err := time.Parse("20060102", string(m[1])); err == nil {
			return t
		}
	}
	return time.Time{}
}

// GuessReportDate infers the quarter-end a 13F covers from its filing
// date. Reports are due 45 days after quarter end, so anything filed up
// to the middle of the third month after a quarter end is taken to
// cover that quarter.
func GuessReportDate(filed time.Time) time.Time {
	if filed.IsZero() {
		return time.Time{}
	}
	y, m, d := filed.Date()
	date := func(year int, month time.Month, day int) time.Time {
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}
	switch {
	case m <= time.February || (m == time.March && d <= 15):
		return date(y-1, time.December, 31)
	case m <= time.May || (m == time.June && d <= 15):
		return date(y, time.March, 31)
	case m <= time.August || (m == time.September && d <= 15):
		return date(y, time.June, 30)
	default:
		return date(y, time.September, 30)
	}
}
