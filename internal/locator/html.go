package locator

import (
	"bytes"
	"context"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/seenimoa/holdings13f/internal/sec"
	"github.com/seenimoa/holdings13f/pkg/models"
)

func (l *Locator) htmlListing(ctx context.Context, ref models.FilingReference) ([]sec.DirectoryItem, error) {
	url := l.endpoints.FilingIndexHTML(ref.CIKInt, ref.Accession, ref.AccessionNoDash())
	data, err := l.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	items, err := ParseIndexHTML(data)
	if err != nil {
		return nil, eris.Wrapf(err, "parse filing index %s", url)
	}
	return items, nil
}

// ParseIndexHTML reads the document table of an EDGAR "-index.htm"
// page. Each row holds Seq, Description, Document, Type and Size cells;
// the document name is taken from the link target so that viewer
// prefixes such as "/ix?doc=" do not leak into it.
func ParseIndexHTML(data []byte) ([]sec.DirectoryItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var items []sec.DirectoryItem
	seen := make(map[string]bool)
	doc.Find("table.tableFile tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		link := cells.Eq(2).Find("a").First()
		name := strings.TrimSpace(link.Text())
		if href, ok := link.Attr("href"); ok {
			if i := strings.Index(href, "doc="); i >= 0 {
				href = href[i+len("doc="):]
			}
			if base := path.Base(href); base != "." && base != "/" {
				name = base
			}
		}
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		var size int64
		if cells.Length() >= 5 {
			digits := strings.Map(func(r rune) rune {
				if r >= '0' && r <= '9' {
					return r
				}
				return -1
			}, cells.Eq(4).Text())
			size, _ = strconv.ParseInt(digits, 10, 64)
		}
		items = append(items, sec.DirectoryItem{Name: name, Size: sec.FlexInt64(size)})
	})
	return items, nil
}
