// Package pipeline runs one end-to-end pull: discover filings for the
// configured manager groups, extract and match their holdings, attach
// share counts, and reconcile everything into per-group panels.
package pipeline

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/internal/config"
	"github.com/seenimoa/holdings13f/internal/extract"
	"github.com/seenimoa/holdings13f/internal/fetch"
	"github.com/seenimoa/holdings13f/internal/index"
	"github.com/seenimoa/holdings13f/internal/infra"
	"github.com/seenimoa/holdings13f/internal/locator"
	"github.com/seenimoa/holdings13f/internal/match"
	"github.com/seenimoa/holdings13f/internal/sec"
	"github.com/seenimoa/holdings13f/internal/shares"
)

// Session holds everything one run needs. Caches live on its components
// and are discarded with it.
type Session struct {
	cfg       *config.Config
	runID     string
	client    *fetch.Client
	endpoints sec.Endpoints
	scanner   *index.Scanner
	locator   *locator.Locator
	resolver  *shares.Resolver
	tickers   *match.TickerMap
	matcher   *match.Matcher
	chain     extract.Chain
	log       *zap.Logger
	now       func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithClient replaces the fetch client built from the config.
func WithClient(c *fetch.Client) Option {
	return func(s *Session) { s.client = c }
}

// WithClock replaces the clock used for the scan horizon and run stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession wires a session from cfg and the operator's ticker map.
func NewSession(cfg *config.Config, tickers *match.TickerMap, log *zap.Logger, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tickers == nil || tickers.Len() == 0 {
		return nil, match.ErrNoTickers
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Session{
		cfg:     cfg,
		runID:   uuid.NewString(),
		tickers: tickers,
		matcher: match.NewMatcher(tickers.CUSIPs()),
		chain:   extract.DefaultChain(),
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("run", s.runID))

	if s.client == nil {
		c, err := fetch.New(cfg.SEC.UserAgent,
			fetch.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.SEC.TimeoutSec) * time.Second}),
			fetch.WithPacer(infra.NewPacer(cfg.Sleep())),
			fetch.WithRetryPolicy(fetch.RetryPolicy{
				MaxAttempts: cfg.SEC.Retry.MaxAttempts,
				Initial:     time.Duration(cfg.SEC.Retry.InitialMilli) * time.Millisecond,
				Cap:         time.Duration(cfg.SEC.Retry.CapSec) * time.Second,
			}),
			fetch.WithLogger(s.log),
		)
		if err != nil {
			return nil, err
		}
		s.client = c
	}

	s.endpoints = sec.NewEndpoints(cfg.SEC.ArchivesURL, cfg.SEC.DataURL, cfg.SEC.FilesURL, cfg.SEC.BrowseURL)
	s.scanner = index.NewScanner(s.client, s.endpoints, s.log).WithClock(func() time.Time { return s.now() })
	s.locator = locator.New(s.client, s.endpoints, s.log)
	s.resolver = shares.NewResolver(s.client, s.endpoints, shares.NewValidator(shares.DefaultEras(), s.log), s.log)
	s.log.Debug("watch list",
		zap.Int("tickers", s.tickers.Len()),
		zap.Int("cusips", s.matcher.Len()),
		zap.Strings("watched", s.matcher.Watched()),
	)
	return s, nil
}

// Tickers returns the operator's tickers, sorted.
func (s *Session) Tickers() []string { return s.tickers.Tickers() }

// WatchList returns the CUSIPs holdings are matched against, sorted.
func (s *Session) WatchList() []string { return s.matcher.Watched() }

// RunID identifies this session's run.
func (s *Session) RunID() string { return s.runID }

// Requests returns the number of HTTP requests sent so far.
func (s *Session) Requests() int { return s.client.Requests() }

// Resolver exposes the share-count resolver.
func (s *Session) Resolver() *shares.Resolver { return s.resolver }

func (s *Session) minReportDate() time.Time {
	t, _ := s.cfg.MinReportDate() // checked by Validate
	return t
}

func (s *Session) startFilingDate() time.Time {
	t, _ := s.cfg.StartFilingDate()
	return t
}
