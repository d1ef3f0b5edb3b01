package link

import (
	"fmt"
	"sort"

	"github.com/brackenfield/gbtk/pkg/obj"
)

// piece is one object module's contribution to a merged section group.
type piece struct {
	moduleIdx  int
	sectionIdx int
	base       uint32 // this piece's offset within the group's final Data
	group      *group
}

// group is every same-named section across every linked module, merged
// into the single address range the linker ultimately places (spec.md
// §4.7 step 1: "separate UNION pieces and FRAGMENT pieces into their
// merged sections").
type group struct {
	name      string
	typ       obj.SectionType
	mod       obj.Modifier
	org, bank int32
	alignLog2 uint8
	alignOfs  uint32
	pieces    []*piece
	size      uint32
	data      []byte // only meaningful when typ.IsROM()

	placedOrg  int32
	placedBank int32
}

// mergeSections groups every section of every module by name, concatenating
// FRAGMENT pieces in link order and overlaying UNION pieces, and records
// each piece's placement within the resulting group's Data.
func mergeSections(modules []*obj.Module) ([]*group, map[string]*piece, error) {
	var order []string
	byName := make(map[string]*group)
	pieces := make(map[string]*piece) // keyed by "moduleIdx:sectionIdx"

	for mi, mod := range modules {
		for si := range mod.Sections {
			sec := &mod.Sections[si]
			g, ok := byName[sec.Name]
			if !ok {
				g = &group{
					name: sec.Name, typ: sec.Type, mod: sec.Modifier,
					org: sec.Org, bank: sec.Bank,
					alignLog2: sec.AlignLog2, alignOfs: sec.AlignOfs,
					size: sec.Size,
				}
				if sec.Type.IsROM() {
					g.data = append([]byte(nil), sec.Data...)
				}
				p := &piece{moduleIdx: mi, sectionIdx: si, base: 0, group: g}
				g.pieces = append(g.pieces, p)
				pieces[pieceKey(mi, si)] = p
				byName[sec.Name] = g
				order = append(order, sec.Name)
				continue
			}

			if g.typ != sec.Type {
				return nil, nil, fmt.Errorf("section %q declared with type %s and %s in different modules", sec.Name, g.typ, sec.Type)
			}
			if err := reconcileConstraint(&g.org, sec.Org, obj.FloatingOrg, sec.Name, "org"); err != nil {
				return nil, nil, err
			}
			if err := reconcileConstraint(&g.bank, sec.Bank, obj.FloatingBank, sec.Name, "bank"); err != nil {
				return nil, nil, err
			}
			if sec.AlignLog2 > g.alignLog2 {
				g.alignLog2, g.alignOfs = sec.AlignLog2, sec.AlignOfs
			}

			switch {
			case g.mod == obj.Union || sec.Modifier == obj.Union:
				g.mod = obj.Union
				p := &piece{moduleIdx: mi, sectionIdx: si, base: 0, group: g}
				g.pieces = append(g.pieces, p)
				pieces[pieceKey(mi, si)] = p
				if sec.Size > g.size {
					g.size = sec.Size
				}
				if sec.Type.IsROM() && len(sec.Data) > len(g.data) {
					padded := append([]byte(nil), sec.Data...)
					g.data = padded
				}

			case g.mod == obj.Fragment || sec.Modifier == obj.Fragment:
				g.mod = obj.Fragment
				base := g.size
				p := &piece{moduleIdx: mi, sectionIdx: si, base: base, group: g}
				g.pieces = append(g.pieces, p)
				pieces[pieceKey(mi, si)] = p
				if sec.Type.IsROM() {
					g.data = append(g.data, sec.Data...)
				}
				g.size += sec.Size

			default:
				return nil, nil, fmt.Errorf("section %q declared more than once across linked modules without FRAGMENT/UNION", sec.Name)
			}
		}
	}

	groups := make([]*group, 0, len(order))
	for _, name := range order {
		groups = append(groups, byName[name])
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].name < groups[j].name })
	return groups, pieces, nil
}

func pieceKey(moduleIdx, sectionIdx int) string {
	return fmt.Sprintf("%d:%d", moduleIdx, sectionIdx)
}

func reconcileConstraint(cur *int32, incoming, floating int32, name, what string) error {
	if incoming == floating {
		return nil
	}
	if *cur == floating {
		*cur = incoming
		return nil
	}
	if *cur != incoming {
		return fmt.Errorf("section %q has conflicting fixed %s across modules: %d and %d", name, what, *cur, incoming)
	}
	return nil
}
