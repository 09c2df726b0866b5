package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/holdings13f/pkg/models"
)

// TagPatternStrategy reads documents that are not well-formed XML. It
// first looks for <infoTable> blocks carrying the usual field tags (SGML
// renditions); failing that, it scans for table lines of the form
// "CUSIP value shares SH|PRN". HTML documents are flattened to text
// first so that table cells land on one line.
type TagPatternStrategy struct{}

// Name implements Strategy.
func (TagPatternStrategy) Name() string { return "tags" }

var (
	entryRe     = regexp.MustCompile(`(?is)<(?:\w+:)?infoTable(?:\s[^>]*)?>(.*?)</(?:\w+:)?infoTable>`)
	cusipTagRe  = tagRe("cusip", `([A-Za-z0-9]{8,9})`)
	valueTagRe  = tagRe("value", `(\d[\d,]*)`)
	sharesTagRe = tagRe("sshPrnamt", `(\d[\d,]*)`)
	typeTagRe   = tagRe("sshPrnamtType", `(SH|PRN)`)
	nameTagRe   = tagRe("nameOfIssuer", `([^<]+?)`)
	titleTagRe  = tagRe("titleOfClass", `([^<]+?)`)
	putCallRe   = tagRe("putCall", `([^<]*?)`)
	discTagRe   = tagRe("investmentDiscretion", `([^<]*?)`)
	otherMgrRe  = tagRe("otherManager", `([^<]*?)`)
	soleTagRe   = tagRe("Sole", `(\d[\d,]*)`)
	sharedTagRe = tagRe("Shared", `(\d[\d,]*)`)
	noneTagRe   = tagRe("None", `(\d[\d,]*)`)

	// Domestic CUSIPs lead with a digit (037833100), foreign CINs with a
	// letter (G1151C101); truncated 8-character forms also occur.
	lineRe = regexp.MustCompile(`(?im)(?:^|[\s|,;>])([A-Z0-9][A-Z0-9]{5}\d{2,3})[\s|,;]+(\d[\d,]*)[\s|,;]+(\d[\d,]*)[\s|,;]+(SH|PRN)`)

	htmlRe = regexp.MustCompile(`(?i)<(html|table|body)[\s>]`)
)

// tagRe matches <name>content</name>, with or without a namespace prefix
// on either tag.
func tagRe(name, content string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)<(?:\w+:)?` + name + `>\s*` + content + `\s*</(?:\w+:)?` + name + `>`)
}

// Extract implements Strategy.
func (TagPatternStrategy) Extract(doc []byte) ([]models.HoldingRow, error) {
	text := decodeText(doc)
	if entries := entryRe.FindAllStringSubmatch(text, -1); len(entries) > 0 {
		return entryRows(entries), nil
	}
	if rows := lineRows(text); len(rows) > 0 {
		return rows, nil
	}
	if htmlRe.MatchString(text) {
		flat, err := htmlText(text)
		if err != nil {
			return nil, err
		}
		return lineRows(flat), nil
	}
	return nil, nil
}

func entryRows(entries [][]string) []models.HoldingRow {
	var out []models.HoldingRow
	for _, e := range entries {
		body := e[1]
		cusip := first(cusipTagRe, body)
		if cusip == "" {
			continue
		}
		r := models.HoldingRow{
			IssuerName:   first(nameTagRe, body),
			ClassTitle:   first(titleTagRe, body),
			CUSIP:        cusip,
			Value:        parseAmount(first(valueTagRe, body)),
			Amount:       parseAmount(first(sharesTagRe, body)),
			AmountType:   first(typeTagRe, body),
			PutCall:      first(putCallRe, body),
			Discretion:   first(discTagRe, body),
			OtherManager: first(otherMgrRe, body),
			VotingSole:   parseAmount(first(soleTagRe, body)),
			VotingShared: parseAmount(first(sharedTagRe, body)),
			VotingNone:   parseAmount(first(noneTagRe, body)),
		}
		if row, ok := newRow(r); ok {
			out = append(out, row)
		}
	}
	return out
}

func lineRows(text string) []models.HoldingRow {
	var out []models.HoldingRow
	for _, m := range lineRe.FindAllStringSubmatch(text, -1) {
		r := models.HoldingRow{
			CUSIP:      m[1],
			Value:      parseAmount(m[2]),
			Amount:     parseAmount(m[3]),
			AmountType: m[4],
		}
		if row, ok := newRow(r); ok {
			out = append(out, row)
		}
	}
	return out
}

// htmlText renders each table row as one "cell | cell | ..." line and
// appends the remaining text of the page, which keeps <pre> tables intact.
func htmlText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("td, th").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(td.Text()), " "))
		})
		b.WriteString(strings.Join(cells, " | "))
		b.WriteByte('\n')
	})
	doc.Find("table").Remove()
	b.WriteString(doc.Text())
	return b.String(), nil
}

func first(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
