// Package shares resolves issuer shares-outstanding counts from XBRL
// company facts and checks them against known split eras.
package shares

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/internal/infra"
	"github.com/seenimoa/holdings13f/internal/sec"
	"github.com/seenimoa/holdings13f/pkg/models"
)

// Window is how far an observation's period end may lie from the report
// date and still be used.
const Window = 180 * 24 * time.Hour

// factPaths are the company-facts series consulted for shares
// outstanding. Issuers tag the figure differently, so all are merged.
var factPaths = []string{
	`$.facts.dei.EntityCommonStockSharesOutstanding.units.shares`,
	`$.facts["us-gaap"].EntityCommonStockSharesOutstanding.units.shares`,
	`$.facts["us-gaap"].CommonStockSharesOutstanding.units.shares`,
}

// Getter is the subset of fetch.Client the resolver needs.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Resolver looks up the shares outstanding of an issuer by ticker. The
// ticker directory and each issuer's series are fetched once per
// resolver and kept for its lifetime.
type Resolver struct {
	client    Getter
	endpoints sec.Endpoints
	log       *zap.Logger
	validator *Validator

	directory *infra.Cache // "directory" → sec.CompanyTickers, "issuers" → map[ticker]paddedCIK
	series    *infra.Cache // paddedCIK → []models.ShareCountObservation
}

// NewResolver creates a resolver. A nil validator uses DefaultEras.
func NewResolver(client Getter, endpoints sec.Endpoints, validator *Validator, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	if validator == nil {
		validator = NewValidator(DefaultEras(), log)
	}
	return &Resolver{
		client:    client,
		endpoints: endpoints,
		log:       log,
		validator: validator,
		directory: infra.NewCache(0),
		series:    infra.NewCache(0),
	}
}

// Validator returns the resolver's validator.
func (r *Resolver) Validator() *Validator { return r.validator }

// CachedSeries reports how many issuers have a share-count series cached,
// including issuers whose fetch failed and were cached as empty.
func (r *Resolver) CachedSeries() int { return r.series.Len() }

// Directory returns the EDGAR company directory, loading it on first
// use. A load failure is returned and not cached.
func (r *Resolver) Directory(ctx context.Context) (sec.CompanyTickers, error) {
	v, err := r.directory.GetOrLoad("directory", func() (any, error) {
		data, err := r.client.Get(ctx, r.endpoints.CompanyTickers())
		if err != nil {
			return nil, err
		}
		tickers, err := sec.ParseCompanyTickers(data)
		if err != nil {
			return nil, eris.Wrap(err, "decode company tickers")
		}
		return tickers, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(sec.CompanyTickers), nil
}

// Issuers returns the ticker → issuer CIK map built from the directory.
func (r *Resolver) Issuers(ctx context.Context) (map[string]string, error) {
	v, err := r.directory.GetOrLoad("issuers", func() (any, error) {
		dir, err := r.Directory(ctx)
		if err != nil {
			return nil, err
		}
		return dir.CIKByTicker(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

// Series returns the share-count series of the issuer, fetching it on
// first use. A failed fetch is logged and cached as an empty series.
func (r *Resolver) Series(ctx context.Context, cik string) []models.ShareCountObservation {
	cik = sec.PadCIK(cik)
	v, _ := r.series.GetOrLoad(cik, func() (any, error) {
		data, err := r.client.Get(ctx, r.endpoints.CompanyFacts(cik))
		if err != nil {
			r.log.Warn("company facts unavailable", zap.String("cik", cik), zap.Error(err))
			return []models.ShareCountObservation{}, nil
		}
		var facts any
		if err := json.Unmarshal(data, &facts); err != nil {
			r.log.Warn("company facts not JSON", zap.String("cik", cik), zap.Error(err))
			return []models.ShareCountObservation{}, nil
		}
		return BuildSeries(cik, facts), nil
	})
	return v.([]models.ShareCountObservation)
}

// Resolve returns the validated shares outstanding of ticker closest to
// the report date, or nil when the ticker is unknown or no observation
// within Window validates.
func (r *Resolver) Resolve(ctx context.Context, ticker string, reportDate time.Time) *int64 {
	issuers, err := r.Issuers(ctx)
	if err != nil {
		r.log.Warn("ticker directory unavailable", zap.Error(err))
		return nil
	}
	cik, ok := issuers[strings.ToUpper(strings.TrimSpace(ticker))]
	if !ok {
		return nil
	}
	return r.Pick(r.Series(ctx, cik), ticker, reportDate)
}

// Pick walks the observations within Window of reportDate, closest first
// (earlier period on ties), and returns the first that validates.
func (r *Resolver) Pick(series []models.ShareCountObservation, ticker string, reportDate time.Time) *int64 {
	type candidate struct {
		dist time.Duration
		obs  models.ShareCountObservation
	}
	var cands []candidate
	for _, o := range series {
		d := o.PeriodEnd.Sub(reportDate)
		if d < 0 {
			d = -d
		}
		if d <= Window {
			cands = append(cands, candidate{dist: d, obs: o})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].obs.PeriodEnd.Before(cands[j].obs.PeriodEnd)
	})
	for _, c := range cands {
		if v, ok := r.validator.Validate(ticker, reportDate, c.obs.Value); ok {
			return &v
		}
	}
	return nil
}

// BuildSeries collects the shares-outstanding observations of a decoded
// company-facts document. Non-positive values are dropped; for each
// period end the earliest-filed value wins, since later filings restate
// history on a post-split basis. The result is sorted by period end.
func BuildSeries(cik string, facts any) []models.ShareCountObservation {
	byEnd := make(map[time.Time]models.ShareCountObservation)
	filedRaw := make(map[time.Time]string)

	for _, path := range factPaths {
		v, err := jsonpath.Get(path, facts)
		if err != nil {
			continue // field not reported by this issuer
		}
		items, ok := v.([]any)
		if !ok {
			continue
		}
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			end := sec.ParseDate(str(m["end"]))
			val, ok := number(m["val"])
			if end.IsZero() || !ok || val <= 0 {
				continue
			}
			filed := str(m["filed"])
			if prev, seen := filedRaw[end]; seen && filed >= prev {
				continue
			}
			filedRaw[end] = filed
			byEnd[end] = models.ShareCountObservation{
				IssuerCIK: cik,
				PeriodEnd: end,
				Value:     val,
				Filed:     sec.ParseDate(filed),
			}
		}
	}

	out := make([]models.ShareCountObservation, 0, len(byEnd))
	for _, o := range byEnd {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodEnd.Before(out[j].PeriodEnd) })
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func number(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}
