package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/internal/extract"
	"github.com/seenimoa/holdings13f/internal/fetch"
	"github.com/seenimoa/holdings13f/internal/reconcile"
	"github.com/seenimoa/holdings13f/internal/shares"
	"github.com/seenimoa/holdings13f/pkg/models"
)

// minSubmissionBytes is the size below which a fetched full-submission
// file is taken to be an error page.
const minSubmissionBytes = 500

// Result is the output of one run.
type Result struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Groups      []string // configured order
	GroupCIKs   map[string][]string
	Filings     int // discovered
	Processed   int // at or after the minimum report date
	Raw         map[string][]models.HoldingRecord
	Panels      map[string][]models.ConsolidatedPosition
	Aggregate   []models.AggregateOwnership
	Corrections []shares.Correction
}

// Records returns the number of de-duplicated raw records across groups.
func (r *Result) Records() int {
	n := 0
	for _, recs := range r.Raw {
		n += len(recs)
	}
	return n
}

// Run discovers, extracts and reconciles. Failures of single filings or
// documents are logged and skipped; the run aborts only when the company
// directory cannot be read or ctx is cancelled.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:     s.runID,
		StartedAt: s.now(),
		Raw:       make(map[string][]models.HoldingRecord),
		Panels:    make(map[string][]models.ConsolidatedPosition),
	}
	for _, g := range s.cfg.Groups {
		res.Groups = append(res.Groups, g.Name)
	}

	// Share counts need the directory; without it every record would
	// silently lack one.
	if _, err := s.resolver.Issuers(ctx); err != nil {
		return nil, err
	}

	disc, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	res.GroupCIKs = disc.GroupCIKs
	res.Filings = len(disc.Filings)
	byGroup := disc.ByGroup()

	for _, group := range res.Groups {
		filings := byGroup[group]
		s.log.Info("processing group",
			zap.String("group", group),
			zap.Int("filings", len(filings)),
			zap.Int("ciks", len(disc.GroupCIKs[group])),
		)

		var raw []models.HoldingRecord
		for i, ref := range filings {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			recs, processed, err := s.ProcessFiling(ctx, ref)
			if err != nil {
				return nil, err
			}
			if processed {
				res.Processed++
			}
			if len(recs) > 0 {
				s.log.Debug("filing matched",
					zap.Int("n", i+1),
					zap.String("accession", ref.Accession),
					zap.Int("records", len(recs)),
				)
			}
			raw = append(raw, recs...)
		}

		deduped := reconcile.Dedupe(raw)
		res.Raw[group] = deduped
		res.Panels[group] = reconcile.Consolidate(group, deduped)
		s.log.Info("group done",
			zap.String("group", group),
			zap.Int("raw", len(raw)),
			zap.Int("deduped", len(deduped)),
			zap.Int("positions", len(res.Panels[group])),
		)
	}

	res.Aggregate = reconcile.Aggregate(res.Panels)
	res.Corrections = s.resolver.Validator().Corrections()
	res.FinishedAt = s.now()
	s.log.Info("run complete",
		zap.Int("filings", res.Filings),
		zap.Int("processed", res.Processed),
		zap.Int("records", res.Records()),
		zap.Int("requests", s.Requests()),
		zap.Int("issuers_cached", s.resolver.CachedSeries()),
	)
	return res, nil
}

// ProcessFiling extracts the watched holdings of one filing. processed is
// false when the filing reports on a period before the minimum report
// date. Only context cancellation is returned as an error.
func (s *Session) ProcessFiling(ctx context.Context, ref models.FilingReference) (recs []models.HoldingRecord, processed bool, err error) {
	log := s.log.With(zap.String("cik", ref.CIK), zap.String("accession", ref.Accession))

	rd, extracted := s.locator.ReportDate(ctx, ref)
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	ref.ReportDate = rd
	if rd.Before(s.minReportDate()) {
		return nil, false, nil
	}
	log.Debug("filing",
		zap.String("form", ref.Form),
		zap.String("filed", models.DateString(ref.FilingDate)),
		zap.String("report", models.DateString(rd)),
		zap.Bool("report_date_extracted", extracted),
	)

	cands, err := s.locator.Candidates(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, true, ctx.Err()
		}
		log.Warn("filing listing failed", zap.Error(err))
		return nil, true, nil
	}
	if len(cands) == 0 {
		log.Info("no information table candidates", zap.String("dir", s.locator.Dir(ref)))
		return nil, true, nil
	}

	parsed := 0
	for _, c := range cands {
		body, err := s.client.Get(ctx, c.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, true, ctx.Err()
			}
			switch {
			case fetch.IsNotFound(err):
			case fetch.IsFatal(err):
				log.Warn("candidate fetch failed", zap.String("url", c.URL), zap.Error(err))
			default:
				log.Debug("candidate fetch failed", zap.String("url", c.URL), zap.Error(err))
			}
			continue
		}
		rows, used, _ := s.chain.RunFiltered(body, s.matcher)
		parsed += len(rows)
		if recs := s.records(ctx, ref, c.URL, rows); len(recs) > 0 {
			log.Debug("matched", zap.String("url", c.URL), zap.String("strategy", used), zap.Int("records", len(recs)))
			return recs, true, nil
		}
	}

	// Older filings bundle domestic and foreign tables in one submission
	// file; the ranked candidates often only reach the foreign one.
	sub := extract.NewSubmissionStrategy(s.matcher)
	for _, u := range s.locator.FullSubmissionURLs(ctx, ref) {
		body, err := s.client.Get(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, true, ctx.Err()
			}
			if fetch.IsFatal(err) {
				log.Warn("submission fetch failed", zap.String("url", u), zap.Error(err))
			}
			continue
		}
		if len(body) < minSubmissionBytes {
			continue
		}
		rows, err := sub.Extract(body)
		if err != nil {
			log.Debug("submission extract failed", zap.String("url", u), zap.Error(err))
		}
		if recs := s.records(ctx, ref, u, rows); len(recs) > 0 {
			log.Info("matched via full submission", zap.String("url", u), zap.Int("records", len(recs)))
			return recs, true, nil
		}
	}

	if parsed > 0 {
		log.Info("holdings parsed but none watched", zap.Int("rows", parsed))
	} else {
		log.Info("no holdings parsed", zap.Int("candidates", len(cands)))
	}
	return nil, true, nil
}

// records keeps the watched rows and fans each out to every ticker
// mapped to its identifier, attaching the issuer share count.
func (s *Session) records(ctx context.Context, ref models.FilingReference, url string, rows []models.HoldingRow) []models.HoldingRecord {
	var out []models.HoldingRecord
	for _, row := range rows {
		mapped, ok := s.matcher.Match(row.CUSIP)
		if !ok {
			continue
		}
		for _, ticker := range s.tickers.TickersFor(mapped) {
			out = append(out, models.HoldingRecord{
				HoldingRow:        row,
				Filing:            ref,
				Ticker:            ticker,
				MappedCUSIP:       s.tickers.CUSIP(ticker),
				SourceURL:         url,
				SharesOutstanding: s.resolver.Resolve(ctx, ticker, ref.ReportDate),
			})
		}
	}
	return out
}
