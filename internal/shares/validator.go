package shares

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxLoggedCorrections caps how many corrections and rejections are
// written to the log per run.
const maxLoggedCorrections = 10

// Era is a period between two stock splits with the range a disclosed
// share count is expected to fall in. Factor is the split ratio used to
// repair values reported on the other side of the split; zero means no
// repair is attempted.
type Era struct {
	From   time.Time
	To     time.Time // inclusive
	Min    int64
	Max    int64
	Factor int64
}

func (e Era) contains(d time.Time) bool {
	return !d.Before(e.From) && !d.After(e.To)
}

func (e Era) inRange(v int64) bool { return v >= e.Min && v <= e.Max }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DefaultEras returns the expected share-count ranges for issuers with
// known split history. Ranges are wide enough to absorb buyback drift.
func DefaultEras() map[string][]Era {
	return map[string][]Era{
		"AAPL": {
			{From: date(2009, 1, 1), To: date(2014, 6, 8), Min: 800_000_000, Max: 960_000_000, Factor: 7},
			{From: date(2014, 6, 9), To: date(2020, 8, 30), Min: 4_000_000_000, Max: 6_700_000_000, Factor: 4},
			{From: date(2020, 8, 31), To: date(2030, 1, 1), Min: 14_000_000_000, Max: 18_000_000_000},
		},
		"AMZN": {
			{From: date(2009, 1, 1), To: date(2022, 6, 5), Min: 420_000_000, Max: 530_000_000, Factor: 20},
			{From: date(2022, 6, 6), To: date(2030, 1, 1), Min: 9_000_000_000, Max: 11_000_000_000},
		},
		"MSFT": {
			{From: date(2009, 1, 1), To: date(2030, 1, 1), Min: 7_000_000_000, Max: 9_000_000_000},
		},
	}
}

// Correction records one repaired or rejected share count.
type Correction struct {
	Ticker   string
	Date     time.Time
	Raw      int64
	Fixed    int64
	Factor   int64
	Rejected bool
}

// Validator checks share counts against per-ticker split eras. It is safe
// for concurrent use.
type Validator struct {
	eras map[string][]Era
	log  *zap.Logger

	mu          sync.Mutex
	corrections []Correction
}

// NewValidator creates a validator over eras, keyed by upper-case ticker.
func NewValidator(eras map[string][]Era, log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	norm := make(map[string][]Era, len(eras))
	for t, e := range eras {
		norm[strings.ToUpper(t)] = e
	}
	return &Validator{eras: norm, log: log}
}

// Validate returns the usable share count for raw at report date d.
//
// A value in its era's range is accepted. Out of range, it is divided or
// multiplied by the era's factor and accepted if that lands in range.
// Anything else is rejected. Tickers without eras, and dates outside
// every era, pass through unchanged.
func (v *Validator) Validate(ticker string, d time.Time, raw int64) (int64, bool) {
	eras, ok := v.eras[strings.ToUpper(ticker)]
	if !ok {
		return raw, true
	}
	d = date(d.Year(), d.Month(), d.Day())
	for _, e := range eras {
		if !e.contains(d) {
			continue
		}
		if e.inRange(raw) {
			return raw, true
		}
		if e.Factor > 0 {
			if raw > e.Max {
				if fixed := raw / e.Factor; e.inRange(fixed) {
					v.record(Correction{Ticker: ticker, Date: d, Raw: raw, Fixed: fixed, Factor: e.Factor})
					return fixed, true
				}
			}
			if raw < e.Min {
				if fixed := raw * e.Factor; e.inRange(fixed) {
					v.record(Correction{Ticker: ticker, Date: d, Raw: raw, Fixed: fixed, Factor: e.Factor})
					return fixed, true
				}
			}
		}
		v.record(Correction{Ticker: ticker, Date: d, Raw: raw, Rejected: true})
		return 0, false
	}
	return raw, true
}

// Corrections returns the corrections logged so far.
func (v *Validator) Corrections() []Correction {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Correction(nil), v.corrections...)
}

func (v *Validator) record(c Correction) {
	v.mu.Lock()
	if len(v.corrections) >= maxLoggedCorrections {
		v.mu.Unlock()
		return
	}
	v.corrections = append(v.corrections, c)
	v.mu.Unlock()
	if c.Rejected {
		v.log.Info("share count rejected",
			zap.String("ticker", c.Ticker),
			zap.String("date", c.Date.Format("2006-01-02")),
			zap.Int64("raw", c.Raw),
		)
		return
	}
	v.log.Info("share count corrected",
		zap.String("ticker", c.Ticker),
		zap.String("date", c.Date.Format("2006-01-02")),
		zap.Int64("raw", c.Raw),
		zap.Int64("fixed", c.Fixed),
		zap.Int64("factor", c.Factor),
	)
}
