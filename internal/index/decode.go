package index

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// sniffWindow is how much of an index document is inspected when
// choosing an encoding.
const sniffWindow = 5000

// Decode turns a master.idx payload into text. Valid UTF-8 is returned
// as is. Otherwise the UTF-8 (with replacement) and Latin-1 readings are
// compared by the number of '|' delimiters in the first few KB and the
// denser one wins; on a tie Latin-1 is used since it maps every byte.
func Decode(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	asUTF8 := strings.ToValidUTF8(string(data), "\uFFFD")
	latin, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return asUTF8
	}
	if pipeCount(string(latin)) >= pipeCount(asUTF8) {
		return string(latin)
	}
	return asUTF8
}

// Plausible reports whether text looks like a pipe-delimited listing
// rather than, say, an HTML error page.
func Plausible(text string) bool {
	return pipeCount(text) > 0
}

func pipeCount(s string) int {
	n, i := 0, 0
	for _, r := range s {
		if i >= sniffWindow {
			break
		}
		if r == '|' {
			n++
		}
		i++
	}
	return n
}
