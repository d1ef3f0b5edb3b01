package link

import (
	"fmt"
	"sort"

	"github.com/brackenfield/gbtk/pkg/link/region"
	"github.com/brackenfield/gbtk/pkg/obj"
)

// interval is a half-open free byte range [start, end).
type interval struct{ start, end int32 }

// bankSpace is the free-list of one bank of one section type.
type bankSpace struct {
	free []interval
}

// placer carries the free-space bookkeeping across the five placement
// phases of spec.md §4.7.
type placer struct {
	regions region.Table
	banks   map[obj.SectionType]map[int32]*bankSpace
}

func newPlacer(regions region.Table) *placer {
	return &placer{
		regions: regions,
		banks:   make(map[obj.SectionType]map[int32]*bankSpace),
	}
}

func (p *placer) bankSpace(typ obj.SectionType, bank int32) *bankSpace {
	byBank, ok := p.banks[typ]
	if !ok {
		byBank = make(map[int32]*bankSpace)
		p.banks[typ] = byBank
	}
	bs, ok := byBank[bank]
	if !ok {
		w := p.regions[typ]
		bs = &bankSpace{free: []interval{{w.AddrStart, w.AddrEnd + 1}}}
		byBank[bank] = bs
	}
	return bs
}

// alignUp rounds addr up to the next address congruent to ofs modulo
// 2^log2.
func alignUp(addr int32, log2 uint8, ofs uint32) int32 {
	stride := int32(1) << log2
	rem := (addr - int32(ofs)) % stride
	if rem == 0 {
		return addr
	}
	if rem < 0 {
		rem += stride
	}
	return addr + (stride - rem)
}

// carveAt removes exactly [start,start+size) from bs's free list, failing
// if that range isn't entirely free.
func (bs *bankSpace) carveAt(start, size int32) bool {
	end := start + size
	for i, iv := range bs.free {
		if iv.start <= start && end <= iv.end {
			var replacement []interval
			if iv.start < start {
				replacement = append(replacement, interval{iv.start, start})
			}
			if end < iv.end {
				replacement = append(replacement, interval{end, iv.end})
			}
			bs.free = append(bs.free[:i], append(replacement, bs.free[i+1:]...)...)
			return true
		}
	}
	return false
}

// firstFit scans bs's free list in ascending order for the first interval
// that fits size once aligned, returning the aligned start address.
func (bs *bankSpace) firstFit(size int32, log2 uint8, ofs uint32) (int32, bool) {
	sorted := append([]interval(nil), bs.free...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })
	for _, iv := range sorted {
		start := alignUp(iv.start, log2, ofs)
		if start+size <= iv.end {
			return start, true
		}
	}
	return 0, false
}

// place runs the five-phase algorithm over groups, mutating each group's
// placedOrg/placedBank in place.
func (p *placer) place(groups []*group) error {
	var fixedBoth, bankFixedOrgFloat, bankFloatOrgFixed, fullyFloating []*group
	for _, g := range groups {
		switch {
		case g.org != obj.FloatingOrg && g.bank != obj.FloatingBank:
			fixedBoth = append(fixedBoth, g)
		case g.bank != obj.FloatingBank:
			bankFixedOrgFloat = append(bankFixedOrgFloat, g)
		case g.org != obj.FloatingOrg:
			bankFloatOrgFixed = append(bankFloatOrgFixed, g)
		default:
			fullyFloating = append(fullyFloating, g)
		}
	}

	byName := func(gs []*group) { sort.Slice(gs, func(i, j int) bool { return gs[i].name < gs[j].name }) }
	byName(fixedBoth)
	byName(bankFixedOrgFloat)
	byName(bankFloatOrgFixed)
	sort.Slice(fullyFloating, func(i, j int) bool {
		if fullyFloating[i].size != fullyFloating[j].size {
			return fullyFloating[i].size > fullyFloating[j].size
		}
		return fullyFloating[i].name < fullyFloating[j].name
	})

	for _, g := range fixedBoth {
		if err := p.validateWindow(g, g.bank); err != nil {
			return err
		}
		bs := p.bankSpace(g.typ, g.bank)
		start := alignUp(g.org, g.alignLog2, g.alignOfs)
		if start != g.org {
			return fmt.Errorf("section %q at $%04X bank %d violates its own ALIGN constraint", g.name, g.org, g.bank)
		}
		if !bs.carveAt(g.org, int32(g.size)) {
			return fmt.Errorf("section %q: $%04X..$%04X in bank %d overlaps another section", g.name, g.org, g.org+int32(g.size), g.bank)
		}
		g.placedOrg, g.placedBank = g.org, g.bank
	}

	for _, g := range bankFixedOrgFloat {
		if err := p.validateBank(g, g.bank); err != nil {
			return err
		}
		bs := p.bankSpace(g.typ, g.bank)
		start, ok := bs.firstFit(int32(g.size), g.alignLog2, g.alignOfs)
		if !ok {
			return fmt.Errorf("section %q: no room for %d bytes in bank %d", g.name, g.size, g.bank)
		}
		bs.carveAt(start, int32(g.size))
		g.placedOrg, g.placedBank = start, g.bank
	}

	for _, g := range bankFloatOrgFixed {
		placed := false
		for _, bank := range p.banksToTry(g.typ) {
			if err := p.validateWindow(g, bank); err != nil {
				continue
			}
			bs := p.bankSpace(g.typ, bank)
			start := alignUp(g.org, g.alignLog2, g.alignOfs)
			if start != g.org {
				continue
			}
			if bs.carveAt(g.org, int32(g.size)) {
				g.placedOrg, g.placedBank = g.org, bank
				placed = true
				break
			}
		}
		if !placed {
			return fmt.Errorf("section %q: no bank has $%04X..$%04X free", g.name, g.org, g.org+int32(g.size))
		}
	}

	for _, g := range fullyFloating {
		placed := false
		for _, bank := range p.banksToTry(g.typ) {
			bs := p.bankSpace(g.typ, bank)
			start, ok := bs.firstFit(int32(g.size), g.alignLog2, g.alignOfs)
			if !ok {
				continue
			}
			bs.carveAt(start, int32(g.size))
			g.placedOrg, g.placedBank = start, bank
			placed = true
			break
		}
		if !placed {
			return fmt.Errorf("section %q: %d bytes do not fit in any bank of type %s", g.name, g.size, g.typ)
		}
	}

	return nil
}

func (p *placer) validateWindow(g *group, bank int32) error {
	if err := p.validateBank(g, bank); err != nil {
		return err
	}
	w := p.regions[g.typ]
	if g.org < w.AddrStart || g.org+int32(g.size) > w.AddrEnd+1 {
		return fmt.Errorf("section %q: $%04X..$%04X falls outside %s's window $%04X..$%04X", g.name, g.org, g.org+int32(g.size), g.typ, w.AddrStart, w.AddrEnd)
	}
	return nil
}

func (p *placer) validateBank(g *group, bank int32) error {
	w := p.regions[g.typ]
	if bank < w.BankFirst {
		return fmt.Errorf("section %q: bank %d is below %s's first bank %d", g.name, bank, g.typ, w.BankFirst)
	}
	if !w.Unbounded() && bank > w.BankLast {
		return fmt.Errorf("section %q: bank %d exceeds %s's last bank %d", g.name, bank, g.typ, w.BankLast)
	}
	return nil
}

// banksToTry lists every bank number worth attempting for typ, in ascending
// order: for a bounded type, its whole fixed range; for an unbounded type
// (ROMX, SRAM), every bank touched so far plus exactly one new one (spec.md
// §4.7 step 6's "create new banks on demand"), so placement always has
// somewhere left to try without pre-allocating an unbounded bank count.
func (p *placer) banksToTry(typ obj.SectionType) []int32 {
	w := p.regions[typ]
	if !w.Unbounded() {
		var banks []int32
		for b := w.BankFirst; b <= w.BankLast; b++ {
			banks = append(banks, b)
		}
		return banks
	}

	seen := make(map[int32]bool)
	var banks []int32
	for b := range p.banks[typ] {
		seen[b] = true
		banks = append(banks, b)
	}
	sort.Slice(banks, func(i, j int) bool { return banks[i] < banks[j] })

	next := w.BankFirst
	if len(banks) > 0 && banks[len(banks)-1]+1 > next {
		next = banks[len(banks)-1] + 1
	}
	if !seen[next] {
		banks = append(banks, next)
	}
	return banks
}
