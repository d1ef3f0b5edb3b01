package emit

import (
	"fmt"
	"io"
	"sort"
	"unicode"

	"github.com/brackenfield/gbtk/pkg/link"
)

// WriteSymbolFile writes res's resolved symbols in the `BB:AAAA name`
// syntax spec.md §6 documents, one line per symbol legal in that syntax
// (names beginning with a letter or underscore), sorted by
// (address, local-before-global, name) — the name tiebreaker stands in for
// "parent-before-own-children": this symbol table doesn't track dotted
// local-label nesting, so siblings at the same address sort by name
// instead.
func WriteSymbolFile(w io.Writer, res *link.Result, tool string) error {
	if _, err := fmt.Fprintf(w, "; File generated by %s\n", tool); err != nil {
		return err
	}

	syms := make([]link.ResolvedSymbol, 0, len(res.Symbols))
	for _, s := range res.Symbols {
		if isLegalSymName(s.Name) {
			syms = append(syms, s)
		}
	}

	sort.SliceStable(syms, func(i, j int) bool {
		a, b := syms[i], syms[j]
		if a.Addr != b.Addr {
			return a.Addr < b.Addr
		}
		if a.Exported != b.Exported {
			return !a.Exported // local (unexported) sorts before global
		}
		return a.Name < b.Name
	})

	for _, s := range syms {
		line := fmt.Sprintf("%02x:%04x %s\n", uint8(s.Bank), uint16(s.Addr), escapeSymName(s.Name))
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

func isLegalSymName(name string) bool {
	if name == "" {
		return false
	}
	r := []rune(name)[0]
	return r == '_' || unicode.IsLetter(r)
}

// escapeSymName UTF-8-decodes name and re-encodes any non-ASCII rune as
// \uXXXX (or \UXXXXXXXX past the BMP); an invalid byte sequence decodes to
// U+FFFD, per Go's range-over-string behavior, and is escaped the same way.
func escapeSymName(name string) string {
	out := make([]byte, 0, len(name))
	for _, r := range name {
		if r < 0x80 {
			out = append(out, byte(r))
			continue
		}
		if r <= 0xFFFF {
			out = append(out, []byte(fmt.Sprintf(`\u%04X`, r))...)
		} else {
			out = append(out, []byte(fmt.Sprintf(`\U%08X`, r))...)
		}
	}
	return string(out)
}
