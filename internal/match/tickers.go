package match

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoTickers is returned when the ticker map is missing or empty.
var ErrNoTickers = errors.New("ticker map has no usable rows")

// TickerMap is the operator-supplied ticker → CUSIP list.
type TickerMap struct {
	byTicker map[string]string
	byCUSIP  map[string][]string
}

// NewTickerMap builds a map from ticker → CUSIP pairs.
func NewTickerMap(pairs map[string]string) *TickerMap {
	tm := &TickerMap{
		byTicker: make(map[string]string, len(pairs)),
		byCUSIP:  make(map[string][]string),
	}
	for t, c := range pairs {
		t, c = normalize(t), normalize(c)
		if t == "" || c == "" {
			continue
		}
		tm.byTicker[t] = c
		tm.byCUSIP[c] = append(tm.byCUSIP[c], t)
	}
	for c := range tm.byCUSIP {
		sort.Strings(tm.byCUSIP[c])
	}
	return tm
}

// LoadTickerMap reads a CSV with (case-insensitive) "ticker" and "cusip"
// columns. A UTF-8 byte-order mark is tolerated. A file without those
// columns is an error; a file with no usable rows yields ErrNoTickers.
func LoadTickerMap(path string) (*TickerMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open ticker map %s", path)
	}
	defer f.Close()
	tm, err := ReadTickerMap(f)
	if err != nil {
		return nil, eris.Wrapf(err, "read ticker map %s", path)
	}
	return tm, nil
}

// ReadTickerMap is LoadTickerMap over a reader.
func ReadTickerMap(r io.Reader) (*TickerMap, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoTickers
	}
	if err != nil {
		return nil, err
	}
	tcol, ccol := -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch h {
		case "ticker":
			tcol = i
		case "cusip":
			ccol = i
		}
	}
	if tcol < 0 || ccol < 0 {
		return nil, eris.New("ticker map needs columns: ticker, cusip")
	}

	pairs := make(map[string]string)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if tcol >= len(rec) || ccol >= len(rec) {
			continue
		}
		t, c := normalize(rec[tcol]), strings.TrimSpace(rec[ccol])
		if t != "" && c != "" {
			pairs[t] = c
		}
	}
	if len(pairs) == 0 {
		return nil, ErrNoTickers
	}
	return NewTickerMap(pairs), nil
}

// Len returns the number of tickers.
func (tm *TickerMap) Len() int { return len(tm.byTicker) }

// CUSIP returns the CUSIP of ticker.
func (tm *TickerMap) CUSIP(ticker string) string { return tm.byTicker[normalize(ticker)] }

// TickersFor returns the tickers mapped to cusip, sorted.
func (tm *TickerMap) TickersFor(cusip string) []string { return tm.byCUSIP[normalize(cusip)] }

// CUSIPs returns the distinct CUSIPs, sorted.
func (tm *TickerMap) CUSIPs() []string {
	out := make([]string, 0, len(tm.byCUSIP))
	for c := range tm.byCUSIP {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Tickers returns all tickers, sorted.
func (tm *TickerMap) Tickers() []string {
	out := make([]string, 0, len(tm.byTicker))
	for t := range tm.byTicker {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
