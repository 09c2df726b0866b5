// Package reconcile turns matched holding records into one position per
// manager group, security and report period.
//
// Records are first de-duplicated so that an amendment supersedes the
// original filing of the same filer and period. The surviving rows of
// each filer are then summed, and when several filers of one group report
// the same security the dominant filer's totals are taken: a parent
// entity's report commonly already includes its subsidiaries.
package reconcile

import (
	"sort"
	"time"

	"github.com/seenimoa/holdings13f/pkg/models"
)

type dedupeKey struct {
	cik    string
	period string
	ticker string
}

// moreRecent reports whether a outranks b: amendment first, then later
// filing date, then larger accession.
func moreRecent(a, b models.FilingReference) bool {
	if a.IsAmendment() != b.IsAmendment() {
		return a.IsAmendment()
	}
	if !a.FilingDate.Equal(b.FilingDate) {
		return a.FilingDate.After(b.FilingDate)
	}
	return a.Accession > b.Accession
}

// Dedupe keeps, for each (filer, report period, ticker), the rows of the
// most recent accession. Rows within one accession are never collapsed;
// repeated identifiers are sub-fund lines and are summed later. Output is
// ordered by ticker, report date, filing date and accession.
func Dedupe(records []models.HoldingRecord) []models.HoldingRecord {
	groups := make(map[dedupeKey]map[string][]models.HoldingRecord)
	var keys []dedupeKey
	for _, r := range records {
		k := dedupeKey{r.Filing.CIK, models.DateString(r.Filing.ReportDate), r.Ticker}
		accs, ok := groups[k]
		if !ok {
			accs = make(map[string][]models.HoldingRecord)
			groups[k] = accs
			keys = append(keys, k)
		}
		accs[r.Filing.Accession] = append(accs[r.Filing.Accession], r)
	}

	var out []models.HoldingRecord
	for _, k := range keys {
		out = append(out, pick(groups[k])...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		if !a.Filing.ReportDate.Equal(b.Filing.ReportDate) {
			return a.Filing.ReportDate.Before(b.Filing.ReportDate)
		}
		if !a.Filing.FilingDate.Equal(b.Filing.FilingDate) {
			return a.Filing.FilingDate.Before(b.Filing.FilingDate)
		}
		return a.Filing.Accession < b.Filing.Accession
	})
	return out
}

func pick(accs map[string][]models.HoldingRecord) []models.HoldingRecord {
	names := make([]string, 0, len(accs))
	for acc := range accs {
		names = append(names, acc)
	}
	sort.Strings(names)
	if len(names) == 1 {
		return accs[names[0]]
	}

	best := names[0]
	for _, acc := range names[1:] {
		if moreRecent(accs[acc][0].Filing, accs[best][0].Filing) {
			best = acc
		}
	}
	if len(accs[best]) > 0 {
		return accs[best]
	}
	most := names[0]
	for _, acc := range names[1:] {
		if len(accs[acc]) > len(accs[most]) {
			most = acc
		}
	}
	return accs[most]
}

type positionKey struct {
	ticker string
	period string
}

type filerTotals struct {
	cik         string
	shares      int64
	value       int64
	filingDate  time.Time
	accession   string
	outstanding *int64
	mappedCUSIP string
}

func (f *filerTotals) add(r models.HoldingRecord) {
	f.shares += r.Amount
	f.value += r.Value
	if f.accession == "" || later(r.Filing.FilingDate, r.Filing.Accession, f.filingDate, f.accession) {
		f.filingDate = r.Filing.FilingDate
		f.accession = r.Filing.Accession
	}
	if f.outstanding == nil && r.SharesOutstanding != nil {
		v := *r.SharesOutstanding
		f.outstanding = &v
	}
	if f.mappedCUSIP == "" {
		f.mappedCUSIP = r.MappedCUSIP
	}
}

func later(d time.Time, acc string, than time.Time, thanAcc string) bool {
	if !d.Equal(than) {
		return d.After(than)
	}
	return acc > thanAcc
}

// Consolidate builds the position table of one manager group from its
// de-duplicated records.
//
// A single filer's totals are used as-is. With several filers the one
// holding the most shares (first in CIK order on ties) supplies the
// shares and value; every contributor is still listed, and the latest
// filing and first known share count are taken across all of them.
// Output is ordered by ticker, then report date.
func Consolidate(group string, records []models.HoldingRecord) []models.ConsolidatedPosition {
	byKey := make(map[positionKey]map[string]*filerTotals)
	reportDates := make(map[positionKey]time.Time)
	for _, r := range records {
		k := positionKey{r.Ticker, models.DateString(r.Filing.ReportDate)}
		filers, ok := byKey[k]
		if !ok {
			filers = make(map[string]*filerTotals)
			byKey[k] = filers
			reportDates[k] = r.Filing.ReportDate
		}
		ft, ok := filers[r.Filing.CIK]
		if !ok {
			ft = &filerTotals{cik: r.Filing.CIK}
			filers[r.Filing.CIK] = ft
		}
		ft.add(r)
	}

	out := make([]models.ConsolidatedPosition, 0, len(byKey))
	for k, filers := range byKey {
		ordered := make([]*filerTotals, 0, len(filers))
		for _, ft := range filers {
			ordered = append(ordered, ft)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].cik < ordered[j].cik })

		p := models.ConsolidatedPosition{
			Group:      group,
			Ticker:     k.ticker,
			ReportDate: reportDates[k],
			Method:     models.SingleFiler,
		}
		dominant := ordered[0]
		if len(ordered) > 1 {
			p.Method = models.DominantFiler
			for _, ft := range ordered[1:] {
				if ft.shares > dominant.shares {
					dominant = ft
				}
			}
			p.DominantCIK = dominant.cik
		}
		p.SharesHeld = dominant.shares
		p.Value = dominant.value

		for _, ft := range ordered {
			p.FilerCIKs = append(p.FilerCIKs, ft.cik)
			if p.LatestAccession == "" || later(ft.filingDate, ft.accession, p.LatestFilingDate, p.LatestAccession) {
				p.LatestFilingDate = ft.filingDate
				p.LatestAccession = ft.accession
			}
			if p.SharesOutstanding == nil && ft.outstanding != nil {
				p.SharesOutstanding = ft.outstanding
			}
			if p.MappedCUSIP == "" {
				p.MappedCUSIP = ft.mappedCUSIP
			}
		}
		out = append(out, p)
	}
	SortPositions(out)
	return out
}

// SortPositions orders positions by ticker, then report date, then group.
func SortPositions(ps []models.ConsolidatedPosition) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Ticker != ps[j].Ticker {
			return ps[i].Ticker < ps[j].Ticker
		}
		if !ps[i].ReportDate.Equal(ps[j].ReportDate) {
			return ps[i].ReportDate.Before(ps[j].ReportDate)
		}
		return ps[i].Group < ps[j].Group
	})
}

// Aggregate merges the position tables of several manager groups into one
// row per ticker and report date, summing shares and value and counting
// the contributing groups. Groups are visited in name order, which fixes
// the share count and mapped identifier chosen when they disagree.
func Aggregate(panels map[string][]models.ConsolidatedPosition) []models.AggregateOwnership {
	groups := make([]string, 0, len(panels))
	for g := range panels {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	byKey := make(map[positionKey]*models.AggregateOwnership)
	var keys []positionKey
	for _, g := range groups {
		for _, p := range panels[g] {
			k := positionKey{p.Ticker, models.DateString(p.ReportDate)}
			a, ok := byKey[k]
			if !ok {
				a = &models.AggregateOwnership{
					Ticker:      p.Ticker,
					MappedCUSIP: p.MappedCUSIP,
					ReportDate:  p.ReportDate,
				}
				byKey[k] = a
				keys = append(keys, k)
			}
			a.SharesHeldTotal += p.SharesHeld
			a.ValueTotal += p.Value
			if a.SharesOutstanding == nil && p.SharesOutstanding != nil {
				v := *p.SharesOutstanding
				a.SharesOutstanding = &v
			}
			if a.MappedCUSIP == "" {
				a.MappedCUSIP = p.MappedCUSIP
			}
			if !contains(a.Managers, g) {
				a.Managers = append(a.Managers, g)
			}
			a.NumManagers = len(a.Managers)
		}
	}

	out := make([]models.AggregateOwnership, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byKey[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].ReportDate.Before(out[j].ReportDate)
	})
	return out
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
