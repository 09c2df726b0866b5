// Package locator finds the documents of a filing that are likely to
// carry the information table, plus the full-submission text files and
// the report period of the filing.
package locator

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/seenimoa/holdings13f/internal/fetch"
	"github.com/seenimoa/holdings13f/internal/infra"
	"github.com/seenimoa/holdings13f/internal/sec"
	"github.com/seenimoa/holdings13f/pkg/models"
)

// MaxCandidates caps the ranked candidate list.
const MaxCandidates = 25

// minSubmissionSize is the size above which a listed .txt file is worth
// trying as a full submission.
const minSubmissionSize = 100_000

// Getter is the subset of fetch.Client the locator needs.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
	GetJSON(ctx context.Context, url string, dest any) error
}

// Candidate is a scored document of a filing directory.
type Candidate struct {
	Name  string
	URL   string
	Size  int64
	Score int
}

// Locator ranks filing documents.
type Locator struct {
	client    Getter
	endpoints sec.Endpoints
	log       *zap.Logger
	listings  *infra.Cache // filing dir URL → []sec.DirectoryItem
}

// New creates a locator.
func New(client Getter, endpoints sec.Endpoints, log *zap.Logger) *Locator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{
		client:    client,
		endpoints: endpoints,
		log:       log,
		listings:  infra.NewCache(0),
	}
}

// Dir returns the filing directory URL of ref.
func (l *Locator) Dir(ref models.FilingReference) string {
	return l.endpoints.FilingDir(ref.CIKInt, ref.AccessionNoDash())
}

// Candidates lists the filing directory and returns its documents ranked
// by Score, best first, at most MaxCandidates. A filing without a listing
// yields an empty slice and no error.
func (l *Locator) Candidates(ctx context.Context, ref models.FilingReference) ([]Candidate, error) {
	items, err := l.listing(ctx, ref)
	if err != nil {
		return nil, err
	}
	dir := l.Dir(ref)
	var out []Candidate
	for _, it := range items {
		score, ok := Score(it.Name, int64(it.Size), ref.PrimaryDoc)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Name:  it.Name,
			URL:   dir + it.Name,
			Size:  int64(it.Size),
			Score: score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > MaxCandidates {
		out = out[:MaxCandidates]
	}
	return out, nil
}

// Score rates a file name as an information-table candidate. ok is false
// for extensions that never carry one.
func Score(name string, size int64, primaryDoc string) (score int, ok bool) {
	ln := strings.ToLower(name)
	isXML := strings.HasSuffix(ln, ".xml")
	isHTML := strings.HasSuffix(ln, ".htm") || strings.HasSuffix(ln, ".html")
	if !isXML && !isHTML && !strings.HasSuffix(ln, ".txt") {
		return 0, false
	}
	if strings.Contains(ln, "infotable") || strings.Contains(ln, "informationtable") {
		score += 100
	}
	if strings.Contains(ln, "13f") && !strings.Contains(ln, "primary") {
		score += 30
	}
	if isXML {
		score += 10
	}
	if isHTML {
		score += 5
	}
	if size > 0 {
		bonus := size / 5000
		if bonus > 40 {
			bonus = 40
		}
		score += int(bonus)
	}
	if strings.Contains(ln, "primary") || (primaryDoc != "" && name == primaryDoc) {
		score -= 50
	}
	return score, true
}

// FullSubmissionURLs returns, in the order to try them: the
// parent-level submission file ({dir}.txt), the accession-named file
// inside the directory, and any listed .txt file over 100 KB, largest
// first. Duplicates are dropped.
func (l *Locator) FullSubmissionURLs(ctx context.Context, ref models.FilingReference) []string {
	dir := l.Dir(ref)
	urls := []string{
		strings.TrimSuffix(dir, "/") + ".txt",
		dir + ref.Accession + ".txt",
	}
	items, err := l.listing(ctx, ref)
	if err != nil {
		l.log.Debug("no listing for full submission lookup", zap.String("accession", ref.Accession), zap.Error(err))
	}
	big := make([]sec.DirectoryItem, 0, len(items))
	for _, it := range items {
		if strings.HasSuffix(strings.ToLower(it.Name), ".txt") && it.Size > minSubmissionSize {
			big = append(big, it)
		}
	}
	sort.SliceStable(big, func(i, j int) bool { return big[i].Size > big[j].Size })
	for _, it := range big {
		urls = append(urls, dir+it.Name)
	}

	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// listing returns the directory items of a filing, reading index.json
// first and the HTML filing index when that is missing. Results,
// including empty ones, are cached per directory.
func (l *Locator) listing(ctx context.Context, ref models.FilingReference) ([]sec.DirectoryItem, error) {
	dir := l.Dir(ref)
	v, err := l.listings.GetOrLoad(dir, func() (any, error) {
		items, err := l.jsonListing(ctx, ref)
		if err == nil {
			return items, nil
		}
		if !fetch.IsNotFound(err) {
			return nil, err
		}
		items, err = l.htmlListing(ctx, ref)
		if err != nil {
			if fetch.IsNotFound(err) {
				l.log.Debug("filing has no listing", zap.String("dir", dir))
				return []sec.DirectoryItem(nil), nil
			}
			return nil, err
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]sec.DirectoryItem), nil
}

func (l *Locator) jsonListing(ctx context.Context, ref models.FilingReference) ([]sec.DirectoryItem, error) {
	var listing sec.DirectoryListing
	if err := l.client.GetJSON(ctx, l.endpoints.FilingIndexJSON(ref.CIKInt, ref.AccessionNoDash()), &listing); err != nil {
		return nil, err
	}
	return listing.Directory.Item, nil
}
