package pipeline

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/internal/config"
	"github.com/seenimoa/holdings13f/internal/index"
	"github.com/seenimoa/holdings13f/internal/sec"
	"github.com/seenimoa/holdings13f/pkg/models"
)

// verifyForm is the form a discovered CIK must have filed to be kept.
const verifyForm = models.Form13FHR

// Discovery is the outcome of CIK resolution and the index scan.
type Discovery struct {
	GroupCIKs map[string][]string // group → sorted padded CIKs
	Filings   []models.FilingReference
}

// ByGroup splits the filings by manager group, preserving order.
func (d *Discovery) ByGroup() map[string][]models.FilingReference {
	out := make(map[string][]models.FilingReference)
	for _, f := range d.Filings {
		out[f.Group] = append(out[f.Group], f)
	}
	return out
}

// Discover resolves each group's CIKs and scans the full index for their
// 13F filings.
func (s *Session) Discover(ctx context.Context) (*Discovery, error) {
	groupCIKs, err := s.GroupCIKs(ctx)
	if err != nil {
		return nil, err
	}

	targets := make(map[string]string)
	for _, g := range s.cfg.Groups {
		for _, cik := range groupCIKs[g.Name] {
			if owner, ok := targets[cik]; ok {
				s.log.Warn("CIK claimed by two groups, keeping the first",
					zap.String("cik", cik), zap.String("kept", owner), zap.String("dropped", g.Name))
				continue
			}
			targets[cik] = g.Name
		}
	}

	refs, err := s.scanner.Scan(ctx, index.Query{
		Targets: targets,
		Forms:   s.cfg.Scan.Forms,
		Since:   s.startFilingDate(),
	})
	if err != nil {
		return nil, err
	}
	return &Discovery{GroupCIKs: groupCIKs, Filings: refs}, nil
}

// GroupCIKs returns the padded CIKs of every configured group: the seeds,
// plus verified name matches from the company directory when automatic
// expansion is enabled.
func (s *Session) GroupCIKs(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(s.cfg.Groups))
	if !s.cfg.AutoCIK.Enabled {
		for _, g := range s.cfg.Groups {
			out[g.Name] = seedSet(g).sorted()
			s.log.Info("seed CIKs", zap.String("group", g.Name), zap.Int("ciks", len(out[g.Name])))
		}
		return out, nil
	}

	dir, err := s.resolver.Directory(ctx)
	if err != nil {
		return nil, err
	}
	entries := dir.Entries()
	for _, g := range s.cfg.Groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		verified := seedSet(g)
		cands := Candidates(entries, g.Keywords, s.cfg.AutoCIK.Max)
		s.log.Info("checking CIK candidates", zap.String("group", g.Name), zap.Int("candidates", len(cands)))
		for _, c := range cands {
			cik := sec.PadCIK(c.CIK.String())
			if verified[cik] {
				continue
			}
			if s.files13F(ctx, cik) {
				verified[cik] = true
			}
		}
		out[g.Name] = verified.sorted()
		s.log.Info("using CIKs", zap.String("group", g.Name), zap.Int("ciks", len(out[g.Name])))
	}
	return out, nil
}

// Candidates returns the directory entries whose title contains any of
// keywords, most keyword hits first, then shortest title, capped at max.
func Candidates(entries []sec.TickerEntry, keywords []string, max int) []sec.TickerEntry {
	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	hits := func(title string) int {
		title = strings.ToLower(title)
		n := 0
		for _, k := range kws {
			if strings.Contains(title, k) {
				n++
			}
		}
		return n
	}

	var out []sec.TickerEntry
	for _, e := range entries {
		if strings.TrimSpace(e.CIK.String()) != "" && hits(e.Title) > 0 {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		hi, hj := hits(out[i].Title), hits(out[j].Title)
		if hi != hj {
			return hi > hj
		}
		return len(out[i].Title) < len(out[j].Title)
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// files13F reports whether the company feed of cik lists a 13F-HR filed
// on or after the scan start. Any failure counts as no.
func (s *Session) files13F(ctx context.Context, cik string) bool {
	data, err := s.client.Get(ctx, s.endpoints.CompanyFeed(cik, verifyForm))
	if err != nil {
		s.log.Debug("company feed unavailable", zap.String("cik", cik), zap.Error(err))
		return false
	}
	feed, err := sec.ParseCompanyFeed(data)
	if err != nil {
		s.log.Debug("company feed unreadable", zap.String("cik", cik), zap.Error(err))
		return false
	}
	return feed.FilesSince(verifyForm, s.startFilingDate())
}

type cikSet map[string]bool

func seedSet(g config.GroupConfig) cikSet {
	set := make(cikSet, len(g.SeedCIKs))
	for _, c := range g.SeedCIKs {
		if c = strings.TrimSpace(c); c != "" {
			set[sec.PadCIK(c)] = true
		}
	}
	return set
}

func (c cikSet) sorted() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
