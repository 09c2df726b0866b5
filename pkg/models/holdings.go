// Package models defines the record types shared by the 13F pipeline:
// filing references, extracted holding rows, share-count observations and
// the consolidated tables handed to reporting.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Form types tracked by the scanner.
const (
	Form13FHR      = "13F-HR"
	Form13FHRAmend = "13F-HR/A"
)

// Amount types reported in shrsOrPrnAmt.
const (
	AmountShares    = "SH"
	AmountPrincipal = "PRN"
)

// Consolidation methods.
type ConsolidationMethod string

const (
	SingleFiler   ConsolidationMethod = "SINGLE_FILER"
	DominantFiler ConsolidationMethod = "MAX_FILER"
)

// ErrEmptyCUSIP is returned by NewHoldingRow when the identifier is blank.
var ErrEmptyCUSIP = errors.New("holding row has no security identifier")

// FilingReference identifies one 13F submission discovered in an index.
type FilingReference struct {
	Group      string    `json:"group"`
	CIK        string    `json:"cik"`     // 10-digit zero padded
	CIKInt     string    `json:"cik_int"` // no leading zeros
	Form       string    `json:"form"`
	FilingDate time.Time `json:"filing_date"`
	Accession  string    `json:"accession"` // dashed
	ReportDate time.Time `json:"report_date,omitempty"`
	PrimaryDoc string    `json:"primary_doc,omitempty"`
	IndexPath  string    `json:"index_path,omitempty"`
}

// Key is the identity of a filing reference.
func (f FilingReference) Key() string { return f.CIK + "|" + f.Accession }

// IsAmendment reports whether the filing is a 13F-HR/A.
func (f FilingReference) IsAmendment() bool {
	return strings.EqualFold(f.Form, Form13FHRAmend)
}

// AccessionNoDash returns the accession without dashes, as used in archive paths.
func (f FilingReference) AccessionNoDash() string {
	return strings.ReplaceAll(f.Accession, "-", "")
}

// HoldingRow is one entry of an information table.
type HoldingRow struct {
	IssuerName   string `json:"issuer_name"`
	ClassTitle   string `json:"class_title"`
	CUSIP        string `json:"cusip"`
	Value        int64  `json:"value_usd_thousands"`
	Amount       int64  `json:"shares_held"`
	AmountType   string `json:"shares_type"` // SH or PRN
	PutCall      string `json:"put_call,omitempty"`
	Discretion   string `json:"investment_discretion,omitempty"`
	OtherManager string `json:"other_manager,omitempty"`
	VotingSole   int64  `json:"voting_sole"`
	VotingShared int64  `json:"voting_shared"`
	VotingNone   int64  `json:"voting_none"`
}

// NewHoldingRow normalizes the identifier and amount type of r and rejects
// rows without an identifier.
func NewHoldingRow(r HoldingRow) (HoldingRow, error) {
	r.CUSIP = strings.ToUpper(strings.TrimSpace(r.CUSIP))
	if r.CUSIP == "" {
		return HoldingRow{}, ErrEmptyCUSIP
	}
	r.IssuerName = strings.TrimSpace(r.IssuerName)
	r.ClassTitle = strings.TrimSpace(r.ClassTitle)
	r.AmountType = strings.ToUpper(strings.TrimSpace(r.AmountType))
	if r.AmountType == "" {
		r.AmountType = AmountShares
	}
	r.PutCall = strings.ToUpper(strings.TrimSpace(r.PutCall))
	r.Discretion = strings.ToUpper(strings.TrimSpace(r.Discretion))
	r.OtherManager = strings.TrimSpace(r.OtherManager)
	return r, nil
}

// HoldingRecord is a matched holding row tied to its filing, the raw
// record the reconciler works on.
type HoldingRecord struct {
	HoldingRow
	Filing            FilingReference `json:"filing"`
	Ticker            string          `json:"ticker"`
	MappedCUSIP       string          `json:"mapped_cusip"`
	SourceURL         string          `json:"info_table_url"`
	SharesOutstanding *int64          `json:"shares_outstanding,omitempty"`
}

// ShareCountObservation is one disclosed shares-outstanding value.
type ShareCountObservation struct {
	IssuerCIK string    `json:"issuer_cik"`
	PeriodEnd time.Time `json:"period_end"`
	Value     int64     `json:"value"`
	Filed     time.Time `json:"filed"`
}

// ConsolidatedPosition is the single reported position of a manager group
// for one security and report period.
type ConsolidatedPosition struct {
	Group             string              `json:"group"`
	Ticker            string              `json:"ticker"`
	MappedCUSIP       string              `json:"mapped_cusip"`
	ReportDate        time.Time           `json:"report_date"`
	SharesHeld        int64               `json:"shares_held"`
	Value             int64               `json:"value_usd_thousands"`
	Method            ConsolidationMethod `json:"consolidation_method"`
	DominantCIK       string              `json:"dominant_cik,omitempty"`
	FilerCIKs         []string            `json:"filer_ciks_used"`
	LatestFilingDate  time.Time           `json:"latest_filing_date"`
	LatestAccession   string              `json:"latest_accession"`
	SharesOutstanding *int64              `json:"shares_outstanding,omitempty"`
}

// Note renders the consolidation method the way the panel CSV reports it.
func (p ConsolidatedPosition) Note() string {
	if p.Method == DominantFiler {
		return fmt.Sprintf("%s(%s)", DominantFiler, p.DominantCIK)
	}
	return string(SingleFiler)
}

// AggregateOwnership merges positions of several manager groups.
type AggregateOwnership struct {
	Ticker            string    `json:"ticker"`
	MappedCUSIP       string    `json:"mapped_cusip"`
	ReportDate        time.Time `json:"report_date"`
	SharesHeldTotal   int64     `json:"shares_held_total"`
	ValueTotal        int64     `json:"value_usd_thousands_total"`
	SharesOutstanding *int64    `json:"shares_outstanding,omitempty"`
	NumManagers       int       `json:"num_managers"`
	Managers          []string  `json:"managers"`
}

// OwnershipPct returns held/outstanding as a percentage rounded to four
// places. ok is false when no share count is known.
func (a AggregateOwnership) OwnershipPct() (pct decimal.Decimal, ok bool) {
	if a.SharesOutstanding == nil || *a.SharesOutstanding <= 0 {
		return decimal.Zero, false
	}
	held := decimal.NewFromInt(a.SharesHeldTotal)
	so := decimal.NewFromInt(*a.SharesOutstanding)
	return held.Div(so).Mul(decimal.NewFromInt(100)).Round(4), true
}

// DateString formats t as YYYY-MM-DD, or "" for the zero time.
func DateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
