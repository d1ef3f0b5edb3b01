package mapcmd

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Symbol is one entry read back from a gbtk symbol file.
type Symbol struct {
	Bank int
	Addr int
	Name string
}

// Entry is one row of a bank's listing: either a placed section or an
// EMPTY gap, as written by pkg/link/emit.WriteMapFile.
type Entry struct {
	AddrStart, AddrEnd int
	Name               string
	Size               int
	Empty              bool
}

// Bank is one section-type/bank pair's listing plus its total free bytes.
type Bank struct {
	SectionType string
	Bank        int
	Entries     []Entry
	TotalEmpty  int
}

// ReadOnlyMapModel is the post-link data gbtk map browses: no stepping, no
// breakpoints, just the symbol table and the bank listings already written
// to disk by the linker. It plays the role the teacher's interactive
// debugger's backend plays for live CPU state, adapted to a read-only ROM
// layout instead.
type ReadOnlyMapModel struct {
	Symbols []Symbol
	Banks   []Bank
}

var symLineRe = regexp.MustCompile(`^([0-9a-fA-F]{2}):([0-9a-fA-F]{4})\s+(\S+)$`)

// LoadSymbolFile parses a gbtk symbol file (spec.md §6's "BB:AAAA name").
func LoadSymbolFile(path string) ([]Symbol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Symbol
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, ";") || line == "" {
			continue
		}
		m := symLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		bank, _ := strconv.ParseInt(m[1], 16, 32)
		addr, _ := strconv.ParseInt(m[2], 16, 32)
		out = append(out, Symbol{Bank: int(bank), Addr: int(addr), Name: m[3]})
	}
	return out, sc.Err()
}

var (
	bankHeaderRe = regexp.MustCompile(`^=== (\S+) bank (\d+) ===$`)
	entryLineRe  = regexp.MustCompile(`^\s*\$([0-9A-Fa-f]{4})-\$([0-9A-Fa-f]{4})\s+(.+?)\s+\((\d+) bytes\)$`)
	totalEmptyRe = regexp.MustCompile(`^\s*TOTAL EMPTY: (\d+) bytes$`)
)

// LoadMapFile parses a gbtk map file's per-bank listings (the
// "=== Summary ===" header is presentation only and is skipped).
func LoadMapFile(path string) ([]Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var banks []Bank
	var cur *Bank
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if m := bankHeaderRe.FindStringSubmatch(line); m != nil {
			if cur != nil {
				banks = append(banks, *cur)
			}
			bank, _ := strconv.Atoi(m[2])
			cur = &Bank{SectionType: m[1], Bank: bank}
			continue
		}
		if cur == nil {
			continue
		}
		if m := totalEmptyRe.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[1])
			cur.TotalEmpty = n
			continue
		}
		if m := entryLineRe.FindStringSubmatch(line); m != nil {
			start, _ := strconv.ParseInt(m[1], 16, 32)
			end, _ := strconv.ParseInt(m[2], 16, 32)
			size, _ := strconv.Atoi(m[4])
			cur.Entries = append(cur.Entries, Entry{
				AddrStart: int(start), AddrEnd: int(end), Name: m[3], Size: size, Empty: m[3] == "EMPTY",
			})
		}
	}
	if cur != nil {
		banks = append(banks, *cur)
	}
	return banks, sc.Err()
}

// LoadModel builds a ReadOnlyMapModel from a symbol file and a map file;
// either path may be empty to skip that half of the model.
func LoadModel(symPath, mapPath string) (*ReadOnlyMapModel, error) {
	m := &ReadOnlyMapModel{}
	var err error
	if symPath != "" {
		if m.Symbols, err = LoadSymbolFile(symPath); err != nil {
			return nil, fmt.Errorf("reading %s: %w", symPath, err)
		}
	}
	if mapPath != "" {
		if m.Banks, err = LoadMapFile(mapPath); err != nil {
			return nil, fmt.Errorf("reading %s: %w", mapPath, err)
		}
	}
	return m, nil
}

// FindSymbols returns every symbol whose name contains substr, sorted by
// address, for the search box's live filter.
func (m *ReadOnlyMapModel) FindSymbols(substr string) []Symbol {
	substr = strings.ToLower(substr)
	var out []Symbol
	for _, s := range m.Symbols {
		if substr == "" || strings.Contains(strings.ToLower(s.Name), substr) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}
