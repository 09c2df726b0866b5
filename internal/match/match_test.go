package match

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMatchPrefixTables(t *testing.T) {
	m := NewMatcher([]string{"037833100", "594918104", " 023135106 "})

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"037833100", "037833100", true},
		{"03783310", "037833100", true}, // 8-char
		{"037833", "037833100", true},   // 6-char
		{"037833999", "037833100", true},
		{"0378", "037833100", true}, // containment
		{"023135106", "023135106", true},
		{"g1151c101", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := m.Match(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Match(%q): got %q,%v want %q,%v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
	if m.Len() != 3 {
		t.Errorf("Len: got %d, want 3", m.Len())
	}
	if diff := cmp.Diff([]string{"023135106", "037833100", "594918104"}, m.Watched()); diff != "" {
		t.Errorf("Watched mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchSharedPrefixDeterministic(t *testing.T) {
	m := NewMatcher([]string{"037833200", "037833100"})
	for i := 0; i < 10; i++ {
		if got, _ := m.Match("037833"); got != "037833100" {
			t.Fatalf("got %q, want smallest owner 037833100", got)
		}
	}
}

func TestContains(t *testing.T) {
	m := NewMatcher([]string{"037833100"})
	if !m.Contains("... apple inc com 03783310 ...") {
		t.Error("8-char prefix should be found")
	}
	if !m.Contains("037833 1000 2000 SH") {
		t.Error("6-char prefix should be found")
	}
	if m.Contains("594918104 MICROSOFT") {
		t.Error("unexpected match")
	}
	if !m.Matches("03783310") || m.Matches("594918104") {
		t.Error("Matches disagrees with Match")
	}
}

func TestReadTickerMap(t *testing.T) {
	csvData := "\ufeffTicker,CUSIP,Name\naapl, 037833100 ,Apple\nMSFT,594918104,Microsoft\nGOOGL,38259P508,Alphabet A\nGOOG,38259P508,Alphabet C\n,123,blank\n"
	tm, err := ReadTickerMap(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ReadTickerMap: %v", err)
	}
	if tm.Len() != 4 {
		t.Errorf("Len: got %d, want 4", tm.Len())
	}
	if got := tm.CUSIP("AAPL"); got != "037833100" {
		t.Errorf("CUSIP(AAPL): got %q", got)
	}
	if diff := cmp.Diff([]string{"GOOG", "GOOGL"}, tm.TickersFor("38259p508")); diff != "" {
		t.Errorf("TickersFor mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"037833100", "38259P508", "594918104"}, tm.CUSIPs()); diff != "" {
		t.Errorf("CUSIPs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"AAPL", "GOOG", "GOOGL", "MSFT"}, tm.Tickers()); diff != "" {
		t.Errorf("Tickers mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTickerMapErrors(t *testing.T) {
	if _, err := ReadTickerMap(strings.NewReader("symbol,id\nAAPL,1\n")); err == nil {
		t.Error("expected error for missing columns")
	}
	if _, err := ReadTickerMap(strings.NewReader("")); !errors.Is(err, ErrNoTickers) {
		t.Errorf("empty file: got %v, want ErrNoTickers", err)
	}
	if _, err := ReadTickerMap(strings.NewReader("ticker,cusip\n,\n")); !errors.Is(err, ErrNoTickers) {
		t.Errorf("no rows: got %v, want ErrNoTickers", err)
	}
}

func TestLoadTickerMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticker_cusip.csv")
	if err := os.WriteFile(path, []byte("ticker,cusip\nAMZN,023135106\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tm, err := LoadTickerMap(path)
	if err != nil {
		t.Fatalf("LoadTickerMap: %v", err)
	}
	if tm.CUSIP("amzn") != "023135106" {
		t.Errorf("got %q", tm.CUSIP("amzn"))
	}
	if _, err := LoadTickerMap(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
