package reconcile

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/seenimoa/holdings13f/pkg/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func i64(v int64) *int64 { return &v }

func rec(cik, form, filed, acc, ticker string, shares, value int64) models.HoldingRecord {
	return models.HoldingRecord{
		HoldingRow: models.HoldingRow{CUSIP: "037833100", Amount: shares, Value: value, AmountType: "SH"},
		Filing: models.FilingReference{
			Group:      "BlackRock",
			CIK:        cik,
			Form:       form,
			FilingDate: day(filed),
			Accession:  acc,
			ReportDate: day("2014-06-30"),
		},
		Ticker:      ticker,
		MappedCUSIP: "037833100",
	}
}

func TestDedupePrefersAmendment(t *testing.T) {
	records := []models.HoldingRecord{
		rec("0001364742", models.Form13FHR, "2014-08-14", "0001086364-14-000100", "AAPL", 100, 10),
		rec("0001364742", models.Form13FHR, "2014-08-14", "0001086364-14-000100", "AAPL", 200, 20),
		rec("0001364742", models.Form13FHRAmend, "2014-08-01", "0001086364-14-000050", "AAPL", 500, 50),
	}
	got := Dedupe(records)
	if len(got) != 1 {
		t.Fatalf("Dedupe: got %d rows, want 1", len(got))
	}
	if got[0].Filing.Accession != "0001086364-14-000050" {
		t.Errorf("kept accession %q, want the amendment", got[0].Filing.Accession)
	}
}

func TestDedupeLaterFilingThenAccession(t *testing.T) {
	records := []models.HoldingRecord{
		rec("0001364742", models.Form13FHR, "2014-08-14", "0001086364-14-000100", "AAPL", 100, 10),
		rec("0001364742", models.Form13FHR, "2014-08-20", "0001086364-14-000090", "AAPL", 300, 30),
		rec("0000913414", models.Form13FHR, "2014-08-14", "0000913414-14-000001", "AAPL", 7, 1),
		rec("0000913414", models.Form13FHR, "2014-08-14", "0000913414-14-000002", "AAPL", 8, 1),
	}
	got := Dedupe(records)
	var accs []string
	for _, r := range got {
		accs = append(accs, r.Filing.Accession)
	}
	want := []string{"0000913414-14-000002", "0001086364-14-000090"}
	if diff := cmp.Diff(want, accs); diff != "" {
		t.Errorf("accessions mismatch (-want +got):\n%s", diff)
	}
}

func TestDedupeKeepsSubFundRows(t *testing.T) {
	records := []models.HoldingRecord{
		rec("0001364742", models.Form13FHR, "2014-08-14", "0001086364-14-000100", "AAPL", 100, 10),
		rec("0001364742", models.Form13FHR, "2014-08-14", "0001086364-14-000100", "AAPL", 100, 10),
		rec("0001364742", models.Form13FHR, "2014-08-14", "0001086364-14-000100", "AAPL", 250, 25),
	}
	got := Dedupe(records)
	if len(got) != 3 {
		t.Fatalf("Dedupe: got %d rows, want 3", len(got))
	}
	panel := Consolidate("BlackRock", got)
	if len(panel) != 1 {
		t.Fatalf("Consolidate: got %d positions, want 1", len(panel))
	}
	if panel[0].SharesHeld != 450 || panel[0].Value != 45 {
		t.Errorf("totals: got %d/%d, want 450/45", panel[0].SharesHeld, panel[0].Value)
	}
	if panel[0].Method != models.SingleFiler || panel[0].Note() != "SINGLE_FILER" {
		t.Errorf("method: got %s", panel[0].Note())
	}
}

func TestConsolidateDominantFiler(t *testing.T) {
	a := rec("0001364742", models.Form13FHR, "2014-08-14", "0001086364-14-000100", "AAPL", 900_000, 90_000)
	b := rec("0000913414", models.Form13FHR, "2014-08-15", "0000913414-14-000007", "AAPL", 50_000, 5_000)
	b.SharesOutstanding = i64(5_987_000_000)

	got := Consolidate("BlackRock", []models.HoldingRecord{a, b})
	want := []models.ConsolidatedPosition{{
		Group:             "BlackRock",
		Ticker:            "AAPL",
		MappedCUSIP:       "037833100",
		ReportDate:        day("2014-06-30"),
		SharesHeld:        900_000,
		Value:             90_000,
		Method:            models.DominantFiler,
		DominantCIK:       "0001364742",
		FilerCIKs:         []string{"0000913414", "0001364742"},
		LatestFilingDate:  day("2014-08-15"),
		LatestAccession:   "0000913414-14-000007",
		SharesOutstanding: i64(5_987_000_000),
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Consolidate mismatch (-want +got):\n%s", diff)
	}
	if got[0].Note() != "MAX_FILER(0001364742)" {
		t.Errorf("Note: got %q", got[0].Note())
	}
}

func TestConsolidateTieGoesToFirstCIK(t *testing.T) {
	a := rec("0000000002", models.Form13FHR, "2014-08-14", "a", "AAPL", 10, 1)
	b := rec("0000000001", models.Form13FHR, "2014-08-14", "b", "AAPL", 10, 2)
	got := Consolidate("G", []models.HoldingRecord{a, b})
	if got[0].DominantCIK != "0000000001" || got[0].Value != 2 {
		t.Errorf("dominant: got %s value %d", got[0].DominantCIK, got[0].Value)
	}
}

func TestConsolidateOrdering(t *testing.T) {
	r1 := rec("1", models.Form13FHR, "2014-11-14", "x1", "MSFT", 1, 1)
	r1.Filing.ReportDate = day("2014-09-30")
	r2 := rec("1", models.Form13FHR, "2014-08-14", "x2", "MSFT", 1, 1)
	r3 := rec("1", models.Form13FHR, "2014-08-14", "x2", "AAPL", 1, 1)
	got := Consolidate("G", []models.HoldingRecord{r1, r2, r3})
	var keys []string
	for _, p := range got {
		keys = append(keys, p.Ticker+" "+models.DateString(p.ReportDate))
	}
	want := []string{"AAPL 2014-06-30", "MSFT 2014-06-30", "MSFT 2014-09-30"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate(t *testing.T) {
	q2 := day("2014-06-30")
	panels := map[string][]models.ConsolidatedPosition{
		"Vanguard": {
			{Group: "Vanguard", Ticker: "AAPL", MappedCUSIP: "037833100", ReportDate: q2, SharesHeld: 300, Value: 30, SharesOutstanding: i64(6000)},
		},
		"BlackRock": {
			{Group: "BlackRock", Ticker: "AAPL", MappedCUSIP: "037833100", ReportDate: q2, SharesHeld: 400, Value: 40},
			{Group: "BlackRock", Ticker: "MSFT", MappedCUSIP: "594918104", ReportDate: q2, SharesHeld: 5, Value: 1},
		},
	}
	got := Aggregate(panels)
	want := []models.AggregateOwnership{
		{Ticker: "AAPL", MappedCUSIP: "037833100", ReportDate: q2, SharesHeldTotal: 700, ValueTotal: 70, SharesOutstanding: i64(6000), NumManagers: 2, Managers: []string{"BlackRock", "Vanguard"}},
		{Ticker: "MSFT", MappedCUSIP: "594918104", ReportDate: q2, SharesHeldTotal: 5, ValueTotal: 1, NumManagers: 1, Managers: []string{"BlackRock"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
	}
	pct, ok := got[0].OwnershipPct()
	if !ok || pct.String() != "11.6667" {
		t.Errorf("OwnershipPct: got %s,%v want 11.6667", pct, ok)
	}
}
