package locator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/internal/fetch"
	"github.com/seenimoa/holdings13f/internal/sec"
	"github.com/seenimoa/holdings13f/pkg/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testRef() models.FilingReference {
	return models.FilingReference{
		Group:      "BlackRock",
		CIK:        "0001364742",
		CIKInt:     "1364742",
		Form:       models.Form13FHR,
		FilingDate: day("2014-08-14"),
		Accession:  "0001086364-14-000123",
	}
}

const dirPath = "/Archives/edgar/data/1364742/000108636414000123/"

func newLocator(t *testing.T, mux *http.ServeMux) (*Locator, *fetch.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(mux)
	client, err := fetch.New("test@example.com", fetch.WithRetryPolicy(fetch.RetryPolicy{MaxAttempts: 1, Initial: time.Millisecond}))
	if err != nil {
		t.Fatalf("fetch.New: %v", err)
	}
	ep := sec.NewEndpoints(srv.URL+"/Archives/", srv.URL, srv.URL, srv.URL)
	return New(client, ep, zap.NewNop()), client, srv.Close
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		primary string
		want    int
		ok      bool
	}{
		{"form13fInfoTable.xml", 60000, "", 100 + 30 + 10 + 12, true},
		{"infotable.xml", 1_000_000, "", 100 + 10 + 40, true},
		{"primary_doc.xml", 3000, "", 10 - 50, true},
		{"cover.xml", 3000, "cover.xml", 10 - 50, true},
		{"holdings.htm", 0, "", 5, true},
		{"image.gif", 10000, "", 0, false},
		{"full.TXT", 5000, "", 1, true},
	}
	for _, tt := range tests {
		got, ok := Score(tt.name, tt.size, tt.primary)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("Score(%q): got %d,%v want %d,%v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCandidatesRanking(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(dirPath+"index.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"directory":{"item":[
			{"name":"primary_doc.xml","size":"4000"},
			{"name":"b_table.xml","size":"10000"},
			{"name":"a_table.xml","size":"10000"},
			{"name":"InfoTable.xml","size":"250000"},
			{"name":"logo.jpg","size":"9000"}
		]}}`)
	})
	loc, _, done := newLocator(t, mux)
	defer done()

	cands, err := loc.Candidates(context.Background(), testRef())
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	var names []string
	for _, c := range cands {
		names = append(names, c.Name)
	}
	want := []string{"InfoTable.xml", "a_table.xml", "b_table.xml", "primary_doc.xml"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
	if cands[0].URL == "" || cands[0].URL[len(cands[0].URL)-len("InfoTable.xml"):] != "InfoTable.xml" {
		t.Errorf("URL: got %q", cands[0].URL)
	}
}

func TestCandidatesCapped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(dirPath+"index.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"directory":{"item":[`)
		for i := 0; i < 40; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"name":"doc%02d.xml","size":"100"}`, i)
		}
		fmt.Fprint(w, `]}}`)
	})
	loc, _, done := newLocator(t, mux)
	defer done()

	cands, err := loc.Candidates(context.Background(), testRef())
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(cands) != MaxCandidates {
		t.Errorf("got %d candidates, want %d", len(cands), MaxCandidates)
	}
}

func TestCandidatesHTMLFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(dirPath+"0001086364-14-000123-index.htm", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><table class="tableFile" summary="Document Format Files">
<tr><th>Seq</th><th>Description</th><th>Document</th><th>Type</th><th>Size</th></tr>
<tr><td>1</td><td></td><td><a href="/Archives/edgar/data/1364742/000108636414000123/primary_doc.xml">primary_doc.xml</a></td><td>13F-HR</td><td>3521</td></tr>
<tr><td>2</td><td>INFORMATION TABLE</td><td><a href="/Archives/edgar/data/1364742/000108636414000123/form13fInfoTable.xml">form13fInfoTable.xml</a></td><td>INFORMATION TABLE</td><td>1,234,567</td></tr>
</table></body></html>`)
	})
	loc, client, done := newLocator(t, mux)
	defer done()

	cands, err := loc.Candidates(context.Background(), testRef())
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(cands) != 2 || cands[0].Name != "form13fInfoTable.xml" || cands[0].Size != 1234567 {
		t.Fatalf("got %+v", cands)
	}

	// The listing is cached per filing.
	before := client.Requests()
	if _, err := loc.Candidates(context.Background(), testRef()); err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if client.Requests() != before {
		t.Errorf("listing fetched again: %d requests, want %d", client.Requests(), before)
	}
}

func TestCandidatesNoListing(t *testing.T) {
	loc, _, done := newLocator(t, http.NewServeMux())
	defer done()
	cands, err := loc.Candidates(context.Background(), testRef())
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("got %d candidates, want 0", len(cands))
	}
}

func TestCandidatesMalformedListing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(dirPath+"index.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not a listing</html>`)
	})
	var htmlHits atomic.Int32
	mux.HandleFunc(dirPath+"0001086364-14-000123-index.htm", func(w http.ResponseWriter, r *http.Request) {
		htmlHits.Add(1)
		http.NotFound(w, r)
	})
	loc, _, done := newLocator(t, mux)
	defer done()

	_, err := loc.Candidates(context.Background(), testRef())
	if err == nil || fetch.IsNotFound(err) {
		t.Fatalf("Candidates: got %v, want decode error", err)
	}
	if htmlHits.Load() != 0 {
		t.Error("HTML listing should only be tried when index.json is missing")
	}
}

func TestFullSubmissionURLs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(dirPath+"index.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"directory":{"item":[
			{"name":"small.txt","size":"500"},
			{"name":"medium.txt","size":"150000"},
			{"name":"0001086364-14-000123.txt","size":"900000"},
			{"name":"large.txt","size":"2000000"}
		]}}`)
	})
	loc, _, done := newLocator(t, mux)
	defer done()

	urls := loc.FullSubmissionURLs(context.Background(), testRef())
	base := loc.Dir(testRef())
	want := []string{
		base[:len(base)-1] + ".txt",
		base + "0001086364-14-000123.txt",
		base + "large.txt",
		base + "medium.txt",
	}
	if diff := cmp.Diff(want, urls); diff != "" {
		t.Errorf("urls mismatch (-want +got):\n%s", diff)
	}
}

func TestReportDate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(dirPath+"primary_doc.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<edgarSubmission><formData><coverPage><reportCalendarOrQuarter>06-30-2014</reportCalendarOrQuarter></coverPage></formData></edgarSubmission>`)
	})
	mux.HandleFunc(dirPath+"0.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ACCESSION NUMBER: 0001086364-14-000123\nCONFORMED PERIOD OF REPORT:\t20140630\n")
	})
	loc, _, done := newLocator(t, mux)
	defer done()

	got, extracted := loc.ReportDate(context.Background(), testRef())
	if !extracted {
		t.Error("expected extracted report date")
	}
	if !got.Equal(day("2014-06-30")) {
		t.Errorf("got %v, want 2014-06-30", got)
	}
}

func TestReportDateGuessed(t *testing.T) {
	loc, _, done := newLocator(t, http.NewServeMux())
	defer done()
	got, extracted := loc.ReportDate(context.Background(), testRef())
	if extracted {
		t.Error("nothing to extract from")
	}
	if !got.Equal(day("2014-06-30")) {
		t.Errorf("got %v, want 2014-06-30", got)
	}
}

func TestParseReportDate(t *testing.T) {
	if got := ParseReportDate([]byte("<REPORTCALENDARORQUARTER> 2012-12-31 </REPORTCALENDARORQUARTER>")); !got.Equal(day("2012-12-31")) {
		t.Errorf("element: got %v", got)
	}
	if got := ParseReportDate([]byte("nothing here")); !got.IsZero() {
		t.Errorf("got %v, want zero", got)
	}
}

func TestGuessReportDate(t *testing.T) {
	tests := []struct{ filed, want string }{
		{"2014-02-14", "2013-12-31"},
		{"2014-03-15", "2013-12-31"},
		{"2014-03-16", "2014-03-31"},
		{"2014-05-15", "2014-03-31"},
		{"2014-06-15", "2014-03-31"},
		{"2014-08-14", "2014-06-30"},
		{"2014-09-16", "2014-09-30"},
		{"2014-11-14", "2014-09-30"},
		{"2014-12-30", "2014-09-30"},
	}
	for _, tt := range tests {
		if got := GuessReportDate(day(tt.filed)); !got.Equal(day(tt.want)) {
			t.Errorf("GuessReportDate(%s): got %s, want %s", tt.filed, got.Format("2006-01-02"), tt.want)
		}
	}
	if !GuessReportDate(time.Time{}).IsZero() {
		t.Error("zero filing date should give zero report date")
	}
}
