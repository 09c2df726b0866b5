package store

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/seenimoa/holdings13f/pkg/models"
)

// Column layouts of the CSV tables.
var (
	RawColumns = []string{
		"group", "ticker", "mapped_cusip", "filer_cik", "form", "filing_date",
		"report_date", "accession", "info_table_url",
		"issuer_name", "class_title", "cusip",
		"value_usd_thousands", "shares_held", "shares_type",
		"put_call", "investment_discretion", "other_manager",
		"voting_sole", "voting_shared", "voting_none",
		"shares_outstanding",
	}

	PanelColumns = []string{
		"group", "ticker", "mapped_cusip", "report_date",
		"shares_held", "value_usd_thousands",
		"num_filer_ciks", "filer_ciks_used", "consolidation_note",
		"latest_filing_date", "latest_accession",
		"shares_outstanding",
	}

	AggregateColumns = []string{
		"group", "ticker", "mapped_cusip", "report_date",
		"shares_held_total", "value_usd_thousands_total",
		"shares_outstanding", "num_managers", "ownership_pct",
	}
)

// ReadmeFile is the column reference written next to the tables.
const ReadmeFile = "13F_OUTPUT_README.txt"

// PanelFile is the per-group consolidated table.
func PanelFile(group string) string { return group + "_13f_holdings_panel.csv" }

// RawFile is the per-group de-duplicated raw table.
func RawFile(group string) string { return group + "_13f_holdings_raw.csv" }

// WriteRaw writes raw holding records.
func WriteRaw(w io.Writer, records []models.HoldingRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RawColumns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{
			r.Filing.Group, r.Ticker, r.MappedCUSIP, r.Filing.CIK, r.Filing.Form,
			models.DateString(r.Filing.FilingDate), models.DateString(r.Filing.ReportDate),
			r.Filing.Accession, r.SourceURL,
			r.IssuerName, r.ClassTitle, r.CUSIP,
			itoa(r.Value), itoa(r.Amount), r.AmountType,
			r.PutCall, r.Discretion, r.OtherManager,
			itoa(r.VotingSole), itoa(r.VotingShared), itoa(r.VotingNone),
			optInt(r.SharesOutstanding),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePanel writes a consolidated position table.
func WritePanel(w io.Writer, ps []models.ConsolidatedPosition) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PanelColumns); err != nil {
		return err
	}
	for _, p := range ps {
		if err := cw.Write([]string{
			p.Group, p.Ticker, p.MappedCUSIP, models.DateString(p.ReportDate),
			itoa(p.SharesHeld), itoa(p.Value),
			strconv.Itoa(len(p.FilerCIKs)), strings.Join(p.FilerCIKs, ";"), p.Note(),
			models.DateString(p.LatestFilingDate), p.LatestAccession,
			optInt(p.SharesOutstanding),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPanel parses a table written by WritePanel. Columns are located by
// header name, so extra or reordered columns are tolerated.
func ReadPanel(r io.Reader) ([]models.ConsolidatedPosition, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read panel header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, c := range PanelColumns {
		if _, ok := col[c]; !ok {
			return nil, eris.Errorf("panel: missing column %q", c)
		}
	}

	var out []models.ConsolidatedPosition
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "panel line %d", line)
		}
		get := func(name string) string { return rec[col[name]] }

		p := models.ConsolidatedPosition{
			Group:            get("group"),
			Ticker:           get("ticker"),
			MappedCUSIP:      get("mapped_cusip"),
			ReportDate:       parseDay(get("report_date")),
			FilerCIKs:        splitList(get("filer_ciks_used")),
			LatestFilingDate: parseDay(get("latest_filing_date")),
			LatestAccession:  get("latest_accession"),
		}
		if p.SharesHeld, err = strconv.ParseInt(get("shares_held"), 10, 64); err != nil {
			return nil, eris.Wrapf(err, "panel line %d: shares_held", line)
		}
		if p.Value, err = strconv.ParseInt(get("value_usd_thousands"), 10, 64); err != nil {
			return nil, eris.Wrapf(err, "panel line %d: value_usd_thousands", line)
		}
		p.Method, p.DominantCIK = parseNote(get("consolidation_note"))
		if s := get("shares_outstanding"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "panel line %d: shares_outstanding", line)
			}
			p.SharesOutstanding = &v
		}
		out = append(out, p)
	}
	return out, nil
}

// WriteAggregate writes the cross-group table. label fills the group
// column, conventionally the initials of the merged groups.
func WriteAggregate(w io.Writer, label string, as []models.AggregateOwnership) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AggregateColumns); err != nil {
		return err
	}
	for _, a := range as {
		pct := ""
		if v, ok := a.OwnershipPct(); ok {
			pct = v.StringFixed(4)
		}
		if err := cw.Write([]string{
			label, a.Ticker, a.MappedCUSIP, models.DateString(a.ReportDate),
			itoa(a.SharesHeldTotal), itoa(a.ValueTotal),
			optInt(a.SharesOutstanding), strconv.Itoa(a.NumManagers), pct,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// AggregateFile is the name of the cross-group table for label.
func AggregateFile(label string) string { return label + "_13f_holdings_panel.csv" }

// AggregateLabel joins the initials of groups, in order.
func AggregateLabel(groups []string) string {
	var b strings.Builder
	for _, g := range groups {
		if g != "" {
			b.WriteString(strings.ToUpper(g[:1]))
		}
	}
	return b.String()
}

// WriteCSV creates path (and its directory) and fills it with write.
func WriteCSV(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "create %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return eris.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

// RemoveStale deletes an output file left over from a run in the other
// mode. A missing file is not an error.
func RemoveStale(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "remove %s", path)
	}
	return nil
}

// WriteReadme writes the column reference next to the tables.
func WriteReadme(dir string) error {
	return os.WriteFile(filepath.Join(dir, ReadmeFile), []byte(readme), 0o644)
}

func parseNote(note string) (models.ConsolidationMethod, string) {
	prefix := string(models.DominantFiler) + "("
	if strings.HasPrefix(note, prefix) && strings.HasSuffix(note, ")") {
		return models.DominantFiler, note[len(prefix) : len(note)-1]
	}
	return models.SingleFiler, ""
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func optInt(v *int64) string {
	if v == nil {
		return ""
	}
	return itoa(*v)
}

const readme = `13F holdings output

Filings are discovered from the quarterly EDGAR full-index (master.idx)
for the configured manager groups, and the information table of each
filing is matched against the ticker/CUSIP list.

RAW (<group>_13f_holdings_raw.csv)
  One row per matched information-table line. Amendments replace the
  original filing of the same filer and report date. Repeated CUSIPs in
  one filing are sub-fund lines and are all kept.

PANEL (<group>_13f_holdings_panel.csv)
  One row per ticker and report date.
  shares_held, value_usd_thousands  totals of the consolidating filer
  num_filer_ciks, filer_ciks_used   every CIK that reported the security
  consolidation_note                SINGLE_FILER, or MAX_FILER(<cik>) when
                                    several CIKs reported and the largest
                                    holder was taken
  latest_filing_date/accession      most recent filing across those CIKs
  shares_outstanding                issuer share count closest to the
                                    report date, checked against split eras

AGGREGATE (<initials>_13f_holdings_panel.csv)
  Panels of all groups summed per ticker and report date.
  num_managers   number of groups contributing
  ownership_pct  shares_held_total / shares_outstanding * 100
`
