// Package sec holds the SEC EDGAR endpoint layout and the JSON and feed
// shapes the pipeline reads from it.
//
// No API key is required, but every request must carry a User-Agent with
// a contact address per SEC fair-access policy.
// Docs: https://www.sec.gov/edgar/sec-api-documentation
package sec

import (
	"fmt"
	"net/url"
	"strings"
)

// Default EDGAR roots.
const (
	DefaultArchivesURL = "https://www.sec.gov/Archives/"
	DefaultDataURL     = "https://data.sec.gov/"
	DefaultFilesURL    = "https://www.sec.gov/files/"
	DefaultBrowseURL   = "https://www.sec.gov/cgi-bin/browse-edgar"
)

// Endpoints builds archive and API URLs from configurable roots, so tests
// can point the whole pipeline at an httptest server.
type Endpoints struct {
	Archives string
	Data     string
	Files    string
	Browse   string
}

// NewEndpoints normalizes the roots. Empty values fall back to the public
// EDGAR hosts.
func NewEndpoints(archives, data, files, browse string) Endpoints {
	return Endpoints{
		Archives: withSlash(orDefault(archives, DefaultArchivesURL)),
		Data:     withSlash(orDefault(data, DefaultDataURL)),
		Files:    withSlash(orDefault(files, DefaultFilesURL)),
		Browse:   strings.TrimRight(orDefault(browse, DefaultBrowseURL), "/"),
	}
}

// MasterIndex is the quarterly full-index listing.
func (e Endpoints) MasterIndex(year, quarter int) string {
	return fmt.Sprintf("%sedgar/full-index/%d/QTR%d/master.idx", e.Archives, year, quarter)
}

// FilingDir is the document directory of one submission, with a trailing slash.
func (e Endpoints) FilingDir(cikInt, accessionNoDash string) string {
	return fmt.Sprintf("%sedgar/data/%s/%s/", e.Archives, cikInt, accessionNoDash)
}

// FilingIndexJSON is the JSON directory listing of one submission.
func (e Endpoints) FilingIndexJSON(cikInt, accessionNoDash string) string {
	return e.FilingDir(cikInt, accessionNoDash) + "index.json"
}

// FilingIndexHTML is the human-readable filing index page.
func (e Endpoints) FilingIndexHTML(cikInt, accession, accessionNoDash string) string {
	return e.FilingDir(cikInt, accessionNoDash) + accession + "-index.htm"
}

// CompanyFacts is the XBRL company-facts document of an issuer.
func (e Endpoints) CompanyFacts(cik string) string {
	return fmt.Sprintf("%sapi/xbrl/companyfacts/CIK%s.json", e.Data, PadCIK(cik))
}

// CompanyTickers is the global ticker→CIK directory.
func (e Endpoints) CompanyTickers() string {
	return e.Files + "company_tickers.json"
}

// CompanyFeed is the Atom feed of a filer's submissions of the given form.
func (e Endpoints) CompanyFeed(cik, form string) string {
	q := url.Values{}
	q.Set("action", "getcompany")
	q.Set("CIK", PadCIK(cik))
	q.Set("type", form)
	q.Set("dateb", "")
	q.Set("owner", "include")
	q.Set("count", "40")
	q.Set("output", "atom")
	return e.Browse + "?" + q.Encode()
}

// PadCIK pads a CIK number to 10 digits with leading zeros.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	for len(cik) < 10 {
		cik = "0" + cik
	}
	return cik
}

// TrimCIK strips leading zeros, leaving "0" for an all-zero CIK.
func TrimCIK(cik string) string {
	t := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if t == "" {
		return "0"
	}
	return t
}

// IsNumeric reports whether s is a non-empty run of ASCII digits.
func IsNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
