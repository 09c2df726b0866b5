package index

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/internal/fetch"
	"github.com/seenimoa/holdings13f/internal/sec"
)

const masterHeader = `Description:           Master Index of EDGAR Dissemination Feed
Last Data Received:    September 30, 2014
Comments:              webmaster@sec.gov
Anonymous FTP:         ftp://ftp.sec.gov/edgar/

CIK|Company Name|Form Type|Date Filed|Filename
--------------------------------------------------------------------------------
`

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestQuarterRange(t *testing.T) {
	got := QuarterRange(day("2013-11-20"), day("2014-08-01"))
	want := []Quarter{{2013, 4}, {2014, 1}, {2014, 2}, {2014, 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("QuarterRange mismatch (-want +got):\n%s", diff)
	}
	if got := QuarterRange(day("2014-05-01"), day("2014-05-02")); len(got) != 1 || got[0] != (Quarter{2014, 2}) {
		t.Errorf("single quarter: got %v", got)
	}
}

func TestAccessionFromPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"edgar/data/1364742/000136474210000123.txt", "0001364742-10-000123"},
		{"edgar/data/1364742/0001364742-10-000123.txt", "0001364742-10-000123"},
		{"edgar/data/1364742/0001364742-10-000123-index.htm", "0001364742-10-000123"},
		{"edgar/data/1364742/short.txt", "short"},
	}
	for _, tt := range tests {
		if got := AccessionFromPath(tt.in); got != tt.want {
			t.Errorf("AccessionFromPath(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCIKFromPath(t *testing.T) {
	if got := CIKFromPath("edgar/data/102909/0000932471-14-004564.txt"); got != "102909" {
		t.Errorf("got %q, want 102909", got)
	}
	if got := CIKFromPath("nothing/here.txt"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestParseMasterHeaderless(t *testing.T) {
	text := "garbage preamble\n102909|VANGUARD GROUP INC|13F-HR|2014-08-13|edgar/data/102909/0000932471-14-004564.txt\n"
	rows, header := ParseMaster(text)
	if !header {
		t.Error("numeric data line should start the data section")
	}
	if len(rows) != 1 || rows[0].CIK != "102909" {
		t.Fatalf("rows: got %+v", rows)
	}
}

func TestFilterDropsNonTargets(t *testing.T) {
	text := masterHeader +
		"102909|VANGUARD GROUP INC|13F-HR|2014-08-13|edgar/data/102909/0000932471-14-004564.txt\n" +
		"102909|VANGUARD GROUP INC|10-K|2014-08-13|edgar/data/102909/0000932471-14-004565.txt\n" +
		"320193|APPLE INC|13F-HR|2014-08-13|edgar/data/320193/0000320193-14-000001.txt\n" +
		"1364742|BlackRock Inc.|13F-HR/A|2014-08-20|edgar/data/1364742/000108636414000123.txt\n" +
		"1364742|BlackRock Inc.|13F-HR|2008-11-14|edgar/data/1364742/0001086364-08-000001.txt\n" +
		"notacik|Broken|13F-HR|2014-08-13|edgar/data/x/y.txt\n"

	targets := map[string]string{"0000102909": "Vanguard", "0001364742": "BlackRock"}
	forms := map[string]bool{"13F-HR": true, "13F-HR/A": true}
	refs, header := Filter(text, targets, forms, day("2009-01-01"))
	if !header {
		t.Error("header not detected")
	}
	if len(refs) != 2 {
		t.Fatalf("got %d refs, want 2: %+v", len(refs), refs)
	}
	for _, r := range refs {
		if !forms[r.Form] {
			t.Errorf("form %q leaked", r.Form)
		}
		if _, ok := targets[r.CIK]; !ok {
			t.Errorf("CIK %q leaked", r.CIK)
		}
		if r.FilingDate.Before(day("2009-01-01")) {
			t.Errorf("filing date %v leaked", r.FilingDate)
		}
	}
	if refs[0].Group != "Vanguard" || refs[0].CIKInt != "102909" || refs[0].Accession != "0000932471-14-004564" {
		t.Errorf("refs[0]: got %+v", refs[0])
	}
	if refs[1].Accession != "0001086364-14-000123" || !refs[1].IsAmendment() {
		t.Errorf("refs[1]: got %+v", refs[1])
	}
}

func TestDecodeLatin1(t *testing.T) {
	// "SOCIÉTÉ" in Latin-1: É is 0xC9, not valid UTF-8 on its own.
	raw := []byte("CIK|Company Name|Form Type|Date Filed|Filename\n1|SOCI\xc9T\xc9|13F-HR|2014-01-02|edgar/data/1/x.txt\n")
	text := Decode(raw)
	if !strings.Contains(text, "SOCIÉTÉ") {
		t.Errorf("latin-1 not decoded: %q", text)
	}
	if got := Decode([]byte("a|b")); got != "a|b" {
		t.Errorf("utf-8 passthrough: got %q", got)
	}
	if Plausible("<html><body>Error</body></html>") {
		t.Error("html should not look like an index")
	}
}

func TestDedupeKeepsLastAndSorts(t *testing.T) {
	text1 := masterHeader + "102909|OLD NAME|13F-HR|2014-08-13|edgar/data/102909/0000932471-14-004564.txt\n"
	text2 := masterHeader +
		"102909|NEW NAME|13F-HR|2014-08-13|edgar/data/102909/0000932471-14-004564.txt\n" +
		"102909|VANGUARD|13F-HR|2014-05-13|edgar/data/102909/0000932471-14-001000.txt\n"
	targets := map[string]string{"0000102909": "Vanguard"}
	forms := map[string]bool{"13F-HR": true}
	a, _ := Filter(text1, targets, forms, day("2009-01-01"))
	b, _ := Filter(text2, targets, forms, day("2009-01-01"))
	a[0].PrimaryDoc = "first"

	out := Dedupe(append(a, b...))
	if len(out) != 2 {
		t.Fatalf("got %d, want 2", len(out))
	}
	if out[0].Accession != "0000932471-14-001000" {
		t.Errorf("order: got %q first", out[0].Accession)
	}
	if out[1].PrimaryDoc != "" {
		t.Error("last-seen entry should win")
	}
}

func TestScanSkipsMissingQuarters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Archives/edgar/full-index/2014/QTR1/master.idx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, masterHeader+"102909|VANGUARD GROUP INC|13F-HR|2014-02-13|edgar/data/102909/0000932471-14-000100.txt\n")
	})
	mux.HandleFunc("/Archives/edgar/full-index/2014/QTR2/master.idx", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	// QTR3 is absent and answers 404.
	mux.HandleFunc("/Archives/edgar/full-index/2014/QTR4/master.idx", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, masterHeader+
			"102909|VANGUARD GROUP INC|13F-HR|2014-11-13|edgar/data/102909/0000932471-14-000400.txt\n"+
			"102909|VANGUARD GROUP INC|13F-HR|2014-02-13|edgar/data/102909/0000932471-14-000100.txt\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := fetch.New("test@example.com", fetch.WithRetryPolicy(fetch.RetryPolicy{MaxAttempts: 1, Initial: time.Millisecond}))
	if err != nil {
		t.Fatalf("fetch.New: %v", err)
	}
	ep := sec.NewEndpoints(srv.URL+"/Archives/", srv.URL, srv.URL, srv.URL)
	s := NewScanner(client, ep, zap.NewNop()).WithClock(func() time.Time { return day("2014-12-01") })

	refs, err := s.Scan(context.Background(), Query{
		Targets: map[string]string{"0000102909": "Vanguard"},
		Forms:   []string{"13F-HR"},
		Since:   day("2014-01-01"),
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got := make([]string, 0, len(refs))
	for _, r := range refs {
		got = append(got, r.Accession)
	}
	want := []string{"0000932471-14-000100", "0000932471-14-000400"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("accessions mismatch (-want +got):\n%s", diff)
	}
	if client.Requests() != 4 {
		t.Errorf("requests: got %d, want 4", client.Requests())
	}
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScanner(nil, sec.NewEndpoints("", "", "", ""), nil)
	if _, err := s.Scan(ctx, Query{Since: day("2014-01-01")}); err == nil {
		t.Fatal("expected context error")
	}
}
