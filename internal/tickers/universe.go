// Package tickers holds the reference set of listed IDX symbols used to
// validate tickers proposed by the generation backend.
package tickers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ternarybob/arbor"
)

// Entry is one symbol with its company name.
type Entry struct {
	Symbol  string `json:"symbol"`
	Company string `json:"company"`
}

// fallbackEntries is used when the reference file cannot be loaded.
var fallbackEntries = []Entry{
	{"BBCA", "Bank Central Asia Tbk."},
	{"BBRI", "Bank Rakyat Indonesia Tbk."},
	{"BMRI", "Bank Mandiri Tbk."},
	{"TLKM", "Telkom Indonesia Tbk."},
	{"UNVR", "Unilever Indonesia Tbk."},
	{"ASII", "Astra International Tbk."},
	{"HMSP", "H.M. Sampoerna Tbk."},
	{"ICBP", "Indofood CBP Sukses Makmur Tbk."},
	{"INDF", "Indofood Sukses Makmur Tbk."},
	{"BBNI", "Bank Negara Indonesia Tbk."},
}

// Universe is an ordered, read-only symbol → company mapping. It is safe for
// concurrent use once constructed.
type Universe struct {
	entries  []Entry
	index    map[string]int
	degraded bool
}

// New builds a Universe from entries in the given order. Later duplicates
// overwrite the company name but keep the first position.
func New(entries []Entry) *Universe {
	u := &Universe{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		if i, ok := u.index[e.Symbol]; ok {
			u.entries[i].Company = e.Company
			continue
		}
		u.index[e.Symbol] = len(u.entries)
		u.entries = append(u.entries, e)
	}
	return u
}

// Fallback returns the built-in set of common IDX tickers.
func Fallback() *Universe {
	u := New(fallbackEntries)
	u.degraded = true
	return u
}

// Load reads a JSON object of symbol → company name from path. Any failure
// yields the fallback set and a warning; Load never fails.
func Load(path string, logger arbor.ILogger) *Universe {
	u, err := LoadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("Error loading ticker-company mapping")
		fb := Fallback()
		logger.Warn().Int("count", fb.Len()).Msg("Using fallback list of common IDX tickers")
		return fb
	}
	logger.Info().Int("count", u.Len()).Str("path", path).Msg("Loaded ticker-company mappings")
	return u
}

// LoadFile reads the mapping file at path, preserving entry order.
func LoadFile(path string) (*Universe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tickers: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a JSON object of symbol → company name from r. Entry order
// of the document is kept, which a plain map decode would lose.
func Decode(r io.Reader) (*Universe, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("tickers: decode: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("tickers: decode: expected a JSON object")
	}

	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("tickers: decode: %w", err)
		}
		symbol, _ := tok.(string)

		var company string
		if err := dec.Decode(&company); err != nil {
			return nil, fmt.Errorf("tickers: decode %q: %w", symbol, err)
		}
		entries = append(entries, Entry{Symbol: symbol, Company: company})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("tickers: decode: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("tickers: decode: mapping is empty")
	}
	return New(entries), nil
}

// IsValid reports whether symbol is a listed ticker.
func (u *Universe) IsValid(symbol string) bool {
	_, ok := u.index[symbol]
	return ok
}

// CompanyName returns the company listed under symbol.
func (u *Universe) CompanyName(symbol string) (string, bool) {
	i, ok := u.index[symbol]
	if !ok {
		return "", false
	}
	return u.entries[i].Company, true
}

// Sample returns up to n entries in file order.
func (u *Universe) Sample(n int) []Entry {
	if n > len(u.entries) || n < 0 {
		n = len(u.entries)
	}
	out := make([]Entry, n)
	copy(out, u.entries[:n])
	return out
}

// Entries returns all entries in file order.
func (u *Universe) Entries() []Entry {
	return u.Sample(-1)
}

// Len returns the number of symbols.
func (u *Universe) Len() int {
	return len(u.entries)
}

// Degraded reports whether the universe is the built-in fallback.
func (u *Universe) Degraded() bool {
	return u.degraded
}
