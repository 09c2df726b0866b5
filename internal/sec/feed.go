package sec

import (
	"bytes"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
)

// CompanyFeed is the subset of the browse-edgar Atom feed used to confirm
// that a CIK actually files a given form.
type CompanyFeed struct {
	Title   string
	Filings []FeedFiling
}

// FeedFiling is one feed entry.
type FeedFiling struct {
	Form  string
	Title string
	Link  string
	Date  time.Time // zero when the entry carries no date
}

// ParseCompanyFeed parses a browse-edgar Atom (or RSS) document.
func ParseCompanyFeed(data []byte) (*CompanyFeed, error) {
	fp := gofeed.NewParser()
	feed, err := fp.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "parse company feed")
	}
	out := &CompanyFeed{Title: strings.TrimSpace(feed.Title)}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		form := ""
		if len(item.Categories) > 0 {
			form = strings.TrimSpace(item.Categories[0])
		}
		if form == "" {
			// Entry titles read "13F-HR  - Quarterly report filed by ..."
			title := strings.TrimSpace(item.Title)
			if i := strings.Index(title, " "); i > 0 {
				form = title[:i]
			}
		}
		var date time.Time
		switch {
		case item.UpdatedParsed != nil:
			date = *item.UpdatedParsed
		case item.PublishedParsed != nil:
			date = *item.PublishedParsed
		}
		out.Filings = append(out.Filings, FeedFiling{
			Form:  strings.ToUpper(form),
			Title: strings.TrimSpace(item.Title),
			Link:  item.Link,
			Date:  date,
		})
	}
	return out, nil
}

// Files reports whether the feed lists at least one filing whose form
// starts with prefix (case-insensitive).
func (f *CompanyFeed) Files(prefix string) bool {
	return f.FilesSince(prefix, time.Time{})
}

// FilesSince is Files restricted to entries dated on or after since.
// Undated entries always count.
func (f *CompanyFeed) FilesSince(prefix string, since time.Time) bool {
	if f == nil {
		return false
	}
	prefix = strings.ToUpper(prefix)
	for _, fl := range f.Filings {
		if !strings.HasPrefix(fl.Form, prefix) {
			continue
		}
		if fl.Date.IsZero() || since.IsZero() || !fl.Date.Before(since) {
			return true
		}
	}
	return false
}
