package extract

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"

	"github.com/seenimoa/holdings13f/pkg/models"
)

// XMLStrategy reads well-formed information tables. Element names are
// matched on their local part, case-insensitively, so both namespaced
// (ns1:infoTable) and bare documents work.
type XMLStrategy struct{}

// Name implements Strategy.
func (XMLStrategy) Name() string { return "xml" }

// Extract implements Strategy. A document that does not parse is retried
// wrapped in a synthetic root element, since older tables are sometimes
// fragments.
func (XMLStrategy) Extract(doc []byte) ([]models.HoldingRow, error) {
	raw := trimXML(doc)
	if len(raw) == 0 {
		return nil, nil
	}
	rows, err := decodeInfoTables(raw)
	if err == nil {
		return rows, nil
	}
	wrapped, werr := decodeInfoTables(wrapRoot(raw))
	if werr != nil {
		return nil, eris.Wrap(err, "xml: parse information table")
	}
	return wrapped, nil
}

var bom = []byte("\xef\xbb\xbf")

func trimXML(doc []byte) []byte {
	doc = bytes.TrimLeft(doc, " \t\r\n")
	doc = bytes.TrimPrefix(doc, bom)
	return bytes.TrimLeft(doc, " \t\r\n")
}

// wrapRoot encloses raw in <root>, keeping any XML declaration in front.
func wrapRoot(raw []byte) []byte {
	var decl []byte
	if bytes.HasPrefix(raw, []byte("<?xml")) {
		if i := bytes.Index(raw, []byte("?>")); i >= 0 {
			decl, raw = raw[:i+2], raw[i+2:]
		}
	}
	out := make([]byte, 0, len(decl)+len(raw)+13)
	out = append(out, decl...)
	out = append(out, "<root>"...)
	out = append(out, raw...)
	out = append(out, "</root>"...)
	return out
}

// xmlNode is a generic element tree.
type xmlNode struct {
	XMLName  xml.Name
	Text     string    `xml:",chardata"`
	Children []xmlNode `xml:",any"`
}

func (n *xmlNode) child(name string) *xmlNode {
	for i := range n.Children {
		if strings.EqualFold(n.Children[i].XMLName.Local, name) {
			return &n.Children[i]
		}
	}
	return nil
}

func (n *xmlNode) text(name string) string {
	if c := n.child(name); c != nil {
		return strings.TrimSpace(c.Text)
	}
	return ""
}

func decodeInfoTables(data []byte) ([]models.HoldingRow, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	var rows []models.HoldingRow
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || !strings.EqualFold(se.Name.Local, "infoTable") {
			continue
		}
		var n xmlNode
		if err := d.DecodeElement(&n, &se); err != nil {
			return nil, err
		}
		if row, ok := n.holdingRow(); ok {
			rows = append(rows, row)
		}
	}
}

func (n *xmlNode) holdingRow() (models.HoldingRow, bool) {
	r := models.HoldingRow{
		IssuerName:   n.text("nameOfIssuer"),
		ClassTitle:   n.text("titleOfClass"),
		CUSIP:        n.text("cusip"),
		Value:        parseAmount(n.text("value")),
		PutCall:      n.text("putCall"),
		Discretion:   n.text("investmentDiscretion"),
		OtherManager: n.text("otherManager"),
	}
	if amt := n.child("shrsOrPrnAmt"); amt != nil {
		r.Amount = parseAmount(amt.text("sshPrnamt"))
		r.AmountType = amt.text("sshPrnamtType")
	}
	if va := n.child("votingAuthority"); va != nil {
		r.VotingSole = parseAmount(va.text("Sole"))
		r.VotingShared = parseAmount(va.text("Shared"))
		r.VotingNone = parseAmount(va.text("None"))
	}
	return newRow(r)
}
