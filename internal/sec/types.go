package sec

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --- Filing directory listing (index.json) ---

// DirectoryListing is the index.json document of a filing directory.
type DirectoryListing struct {
	Directory struct {
		Name string          `json:"name"`
		Item []DirectoryItem `json:"item"`
	} `json:"directory"`
}

// DirectoryItem is one file in a filing directory.
type DirectoryItem struct {
	Name         string    `json:"name"`
	Type         string    `json:"type,omitempty"`
	Size         FlexInt64 `json:"size"`
	LastModified string    `json:"last-modified,omitempty"`
}

// FlexInt64 accepts a JSON number, a numeric string or an empty string.
// EDGAR renders sizes as strings and leaves them blank for folders.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Sizes are advisory only; anything unparsable counts as zero.
		*f = 0
		return nil
	}
	*f = FlexInt64(n)
	return nil
}

// --- CIK / Ticker Mapping ---

// TickerEntry is a row from the company_tickers.json directory.
// The file is a map: {"0": {cik_str, ticker, title}, ...}
type TickerEntry struct {
	CIK    json.Number `json:"cik_str"`
	Ticker string      `json:"ticker"`
	Title  string      `json:"title"`
}

// CompanyTickers is the decoded company_tickers.json document.
type CompanyTickers map[string]TickerEntry

// ParseCompanyTickers decodes company_tickers.json.
func ParseCompanyTickers(data []byte) (CompanyTickers, error) {
	var out CompanyTickers
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CIKByTicker returns ticker (upper-cased) → 10-digit CIK.
func (c CompanyTickers) CIKByTicker() map[string]string {
	m := make(map[string]string, len(c))
	for _, e := range c {
		t := strings.ToUpper(strings.TrimSpace(e.Ticker))
		if t == "" || e.CIK.String() == "" {
			continue
		}
		m[t] = PadCIK(e.CIK.String())
	}
	return m
}

// Entries returns the rows ordered by their numeric map key, which is the
// order EDGAR publishes them in.
func (c CompanyTickers) Entries() []TickerEntry {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	out := make([]TickerEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, c[k])
	}
	return out
}

// --- Helper for date parsing ---

// ParseDate parses the date layouts EDGAR uses across its endpoints.
// It returns the zero time when nothing matches.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		"2006-01-02",
		"20060102",
		"2006-01-02T15:04:05.000Z",
		"01-02-2006",
		"01/02/2006",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
