package index

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Row is one data line of a master.idx listing:
// CIK|Company Name|Form Type|Date Filed|Filename
type Row struct {
	CIK        string // as listed, not padded
	Company    string
	Form       string
	FilingDate string
	Filename   string
}

// ParseMaster returns the data rows of a master.idx document. The
// preamble is skipped up to the header line (one containing '|' and
// "CIK" or "Form Type"); if no header is seen, the first line with at
// least four delimiters and a numeric first field starts the data.
// Separator lines of dashes are ignored throughout.
func ParseMaster(text string) (rows []Row, headerFound bool) {
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		if !headerFound {
			if strings.Contains(s, "|") && (strings.Contains(s, "CIK") || strings.Contains(s, "Form Type")) {
				headerFound = true
				continue
			}
			if strings.HasPrefix(s, "-") {
				continue
			}
			if strings.Count(s, "|") >= 4 && isDigits(strings.TrimSpace(strings.SplitN(s, "|", 2)[0])) {
				headerFound = true
			} else {
				continue
			}
		}
		if strings.HasPrefix(s, "-") {
			continue
		}
		parts := strings.Split(s, "|")
		if len(parts) < 5 {
			continue
		}
		rows = append(rows, Row{
			CIK:        strings.TrimSpace(parts[0]),
			Company:    strings.TrimSpace(parts[1]),
			Form:       strings.TrimSpace(parts[2]),
			FilingDate: strings.TrimSpace(parts[3]),
			Filename:   strings.TrimSpace(parts[4]),
		})
	}
	return rows, headerFound
}

var (
	dashedAccession = regexp.MustCompile(`^\d{10}-\d{2}-\d{6}`)
	nonDigit        = regexp.MustCompile(`\D`)
)

// AccessionFromPath derives the dashed accession number from an index
// filename such as edgar/data/1364742/0001364742-10-000123.txt or the
// undashed edgar/data/1364742/000136474210000123.txt.
func AccessionFromPath(filename string) string {
	base := path.Base(strings.TrimSpace(filename))
	stem := base
	if i := strings.Index(base, "."); i >= 0 {
		stem = base[:i]
	}
	if m := dashedAccession.FindString(stem); m != "" {
		return m
	}
	digits := nonDigit.ReplaceAllString(stem, "")
	if len(digits) >= 18 {
		return digits[:10] + "-" + digits[10:12] + "-" + digits[12:18]
	}
	return stem
}

// CIKFromPath returns the integer CIK segment following "data/" in an
// archive path, or "" when the path has none.
func CIKFromPath(filename string) string {
	parts := strings.Split(filename, "/")
	for i, p := range parts {
		if p == "data" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// NormalizeCIK pads a numeric CIK to 10 digits. ok is false for
// anything that is not a number.
func NormalizeCIK(raw string) (string, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return "", false
	}
	s := strconv.FormatUint(n, 10)
	for len(s) < 10 {
		s = "0" + s
	}
	return s, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
