package emit

import (
	"fmt"
	"io"
	"sort"

	"github.com/brackenfield/gbtk/pkg/link"
	"github.com/brackenfield/gbtk/pkg/link/region"
	"github.com/brackenfield/gbtk/pkg/obj"
)

// WriteMapFile writes a summary table of used/free bytes per section type,
// followed by a per-bank listing of placed sections with explicit EMPTY
// gap annotations and a per-bank TOTAL EMPTY footer (spec.md §4.8).
func WriteMapFile(w io.Writer, res *link.Result, regions region.Table) error {
	if err := writeSummary(w, res, regions); err != nil {
		return err
	}
	return writeBankListings(w, res, regions)
}

func writeSummary(w io.Writer, res *link.Result, regions region.Table) error {
	if _, err := fmt.Fprintln(w, "=== Summary ==="); err != nil {
		return err
	}

	used := make(map[obj.SectionType]int64)
	for _, s := range res.Sections {
		used[s.Type] += int64(s.Size)
	}

	for _, typ := range obj.EmitOrder {
		win := regions[typ]
		banks := int64(win.BankLast - win.BankFirst + 1)
		if win.Unbounded() {
			banks = countBanksUsed(res.Sections, typ)
		}
		capacity := int64(win.Size()) * banks
		u := used[typ]
		if _, err := fmt.Fprintf(w, "%-6s %8d used, %8d free, %8d total\n", typ, u, capacity-u, capacity); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func countBanksUsed(sections []link.PlacedSection, typ obj.SectionType) int64 {
	seen := make(map[int32]bool)
	for _, s := range sections {
		if s.Type == typ {
			seen[s.Bank] = true
		}
	}
	if len(seen) == 0 {
		return 1
	}
	return int64(len(seen))
}

type bankKey struct {
	typ  obj.SectionType
	bank int32
}

func writeBankListings(w io.Writer, res *link.Result, regions region.Table) error {
	byBank := make(map[bankKey][]link.PlacedSection)
	for _, s := range res.Sections {
		k := bankKey{s.Type, s.Bank}
		byBank[k] = append(byBank[k], s)
	}

	var keys []bankKey
	for k := range byBank {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, oj := typeOrder(keys[i].typ), typeOrder(keys[j].typ)
		if oi != oj {
			return oi < oj
		}
		return keys[i].bank < keys[j].bank
	})

	for _, k := range keys {
		secs := byBank[k]
		sort.Slice(secs, func(i, j int) bool { return secs[i].Org < secs[j].Org })

		if _, err := fmt.Fprintf(w, "=== %s bank %d ===\n", k.typ, k.bank); err != nil {
			return err
		}

		win := regions[k.typ]
		cursor := win.AddrStart
		var emptyTotal int64

		for _, s := range secs {
			if s.Org > cursor {
				gap := int64(s.Org - cursor)
				emptyTotal += gap
				fmt.Fprintf(w, "  $%04X-$%04X  EMPTY (%d bytes)\n", cursor, s.Org-1, gap)
			}
			end := s.Org + int32(s.Size) - 1
			if s.Size == 0 {
				end = s.Org
			}
			fmt.Fprintf(w, "  $%04X-$%04X  %s (%d bytes)\n", s.Org, end, s.Name, s.Size)
			cursor = s.Org + int32(s.Size)
		}
		if cursor <= win.AddrEnd {
			gap := int64(win.AddrEnd-cursor) + 1
			emptyTotal += gap
			fmt.Fprintf(w, "  $%04X-$%04X  EMPTY (%d bytes)\n", cursor, win.AddrEnd, gap)
		}

		if _, err := fmt.Fprintf(w, "  TOTAL EMPTY: %d bytes\n\n", emptyTotal); err != nil {
			return err
		}
	}
	return nil
}

func typeOrder(t obj.SectionType) int {
	for i, et := range obj.EmitOrder {
		if et == t {
			return i
		}
	}
	return len(obj.EmitOrder)
}
