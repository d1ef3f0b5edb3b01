// Package link implements C7 (the linker placement engine) and the patch/
// assertion resolution pass that follows it: merging same-named sections
// across object modules, assigning every section a concrete (bank, org),
// and writing resolved relocations into section data (spec.md §4.7).
package link

import (
	"encoding/binary"
	"fmt"

	"github.com/brackenfield/gbtk/pkg/asm/expr"
	"github.com/brackenfield/gbtk/pkg/diag"
	"github.com/brackenfield/gbtk/pkg/link/region"
	"github.com/brackenfield/gbtk/pkg/obj"
)

// PlacedSection is one merged section group's final position and bytes,
// ready for C8 to lay out into a ROM image.
type PlacedSection struct {
	Name string
	Type obj.SectionType
	Org  int32
	Bank int32
	Size uint32
	Data []byte // only set for ROM types
}

// ResolvedSymbol is one symbol's final address after linking, for the
// symbol-file and map-file writers.
type ResolvedSymbol struct {
	Name     string
	Addr     int32
	Bank     int32
	Exported bool
	Section  string
	File     string
	Line     uint32
}

// Result is everything C8 needs to emit a ROM image, a symbol file, and a
// map file.
type Result struct {
	Sections []PlacedSection
	Symbols  []ResolvedSymbol
}

// Linker merges, places, and resolves a set of object modules.
type Linker struct {
	modules []*obj.Module
	regions region.Table
	bag     *diag.Bag
}

// New constructs a Linker. bag receives every semantic diagnostic
// (unresolved symbol, range overflow, failed assertion) produced while
// resolving patches; a nil bag discards them.
func New(modules []*obj.Module, regions region.Table, bag *diag.Bag) *Linker {
	if bag == nil {
		bag = diag.NewBag(nil, nil)
	}
	return &Linker{modules: modules, regions: regions, bag: bag}
}

// Link runs the full pipeline: merge same-named sections, place every
// group, resolve every patch and assertion, and collect the result. A
// non-nil error means linking could not proceed at all (a structural
// conflict in section declarations, or placement failure); ordinary
// semantic problems discovered while resolving patches are reported to the
// Bag instead and do not abort the link (spec.md §7's "semantic errors are
// reported in place and the offending byte is emitted as zero").
func (l *Linker) Link() (*Result, error) {
	groups, pieces, err := mergeSections(l.modules)
	if err != nil {
		return nil, fmt.Errorf("merging sections: %w", err)
	}

	p := newPlacer(l.regions)
	if err := p.place(groups); err != nil {
		return nil, fmt.Errorf("placing sections: %w", err)
	}

	exports, err := buildExports(l.modules)
	if err != nil {
		return nil, fmt.Errorf("resolving exports: %w", err)
	}

	r := newResolver(l.modules, exports, pieces, groups)
	l.resolvePatches(r)
	l.resolveAssertions(r)

	return &Result{
		Sections: collectSections(groups),
		Symbols:  l.collectSymbols(r),
	}, nil
}

func (l *Linker) resolvePatches(r *resolver) {
	for mi, mod := range l.modules {
		for si := range mod.Sections {
			sec := &mod.Sections[si]
			pc, ok := r.piece(mi, si)
			if !ok {
				continue
			}
			for _, patch := range sec.Patches {
				l.resolveOnePatch(r, mi, pc, patch)
			}
		}
	}
}

func (l *Linker) resolveOnePatch(r *resolver, moduleIdx int, pc *piece, patch obj.Patch) {
	loc := l.location(moduleIdx, patch.FileIndex, patch.Line)
	ctx := evalCtx{moduleIdx: moduleIdx, self: pc.group}

	v, err := r.evalRPN(ctx, patch.RPN)
	if err != nil {
		l.bag.Errorf(loc, "unresolved patch: %v", err)
		l.writePatchBytes(pc, patch, 0)
		return
	}

	g := pc.group
	offset := pc.base + patch.Offset

	switch patch.Type {
	case obj.PatchByte:
		if err := expr.CheckNBit(v, 8); err != nil {
			l.bag.Errorf(loc, "%v", err)
			v = 0
		}
	case obj.PatchWord:
		if err := expr.CheckNBit(v, 16); err != nil {
			l.bag.Errorf(loc, "%v", err)
			v = 0
		}
	case obj.PatchLong:
		// No narrower range than the RPN engine's own int32 domain.
	case obj.PatchJR:
		patchAddr := g.placedOrg + int32(offset)
		disp, err := expr.CheckPCRelative(v, patchAddr-1)
		if err != nil {
			l.bag.Errorf(loc, "%v", err)
			disp = 0
		}
		v = int32(disp)
	}

	l.writePatchBytes(pc, patch, v)
}

func (l *Linker) writePatchBytes(pc *piece, patch obj.Patch, v int32) {
	g := pc.group
	if !g.typ.IsROM() {
		return
	}
	offset := int(pc.base) + int(patch.Offset)
	width := patch.Type.Width()
	if offset+width > len(g.data) {
		return
	}
	switch patch.Type {
	case obj.PatchByte, obj.PatchJR:
		g.data[offset] = byte(v)
	case obj.PatchWord:
		binary.LittleEndian.PutUint16(g.data[offset:], uint16(v))
	case obj.PatchLong:
		binary.LittleEndian.PutUint32(g.data[offset:], uint32(v))
	}
}

func (l *Linker) resolveAssertions(r *resolver) {
	for mi, mod := range l.modules {
		for _, a := range mod.Assertions {
			loc := l.location(mi, a.FileIndex, a.Line)

			var self *group
			if pc, ok := r.piece(mi, int(a.PCSectionID)); ok {
				self = pc.group
			}
			ctx := evalCtx{moduleIdx: mi, self: self}

			v, err := r.evalRPN(ctx, a.RPN)
			if err != nil {
				l.bag.Errorf(loc, "assertion could not be resolved: %v", err)
				continue
			}
			if v != 0 {
				continue
			}
			l.reportAssertion(loc, a)
		}
	}
}

func (l *Linker) reportAssertion(loc diag.Location, a obj.Assertion) {
	msg := a.Message
	if msg == "" {
		msg = "assertion failed"
	}
	switch a.Severity {
	case obj.AssertWarn:
		l.bag.Warnf(loc, diag.CategoryAssert, "%s", msg)
	case obj.AssertError:
		l.bag.Errorf(loc, "%s", msg)
	case obj.AssertFatal:
		l.bag.Fatalf(loc, "%s", msg)
	}
}

func (l *Linker) location(moduleIdx int, fileIndex, line uint32) diag.Location {
	mod := l.modules[moduleIdx]
	name := "<unknown>"
	if int(fileIndex) < len(mod.FileNames) {
		name = mod.FileNames[fileIndex]
	}
	return diag.Location{Frames: []diag.FrameLocation{{Name: name, Line: int(line)}}}
}

func (l *Linker) collectSymbols(r *resolver) []ResolvedSymbol {
	var out []ResolvedSymbol
	for mi, mod := range l.modules {
		for si, sym := range mod.Symbols {
			if sym.Type == obj.SymImport {
				continue
			}
			addr, bank, err := r.symbolValue(mi, uint32(si))
			if err != nil {
				continue
			}
			section := ""
			if sym.SectionID >= 0 {
				if pc, ok := r.piece(mi, int(sym.SectionID)); ok {
					section = pc.group.name
				}
			}
			file := "<unknown>"
			if int(sym.FileIndex) < len(mod.FileNames) {
				file = mod.FileNames[sym.FileIndex]
			}
			out = append(out, ResolvedSymbol{
				Name: sym.Name, Addr: addr, Bank: bank,
				Exported: sym.Type == obj.SymExport,
				Section:  section, File: file, Line: sym.Line,
			})
		}
	}
	return out
}

func collectSections(groups []*group) []PlacedSection {
	out := make([]PlacedSection, 0, len(groups))
	for _, g := range groups {
		ps := PlacedSection{Name: g.name, Type: g.typ, Org: g.placedOrg, Bank: g.placedBank, Size: g.size}
		if g.typ.IsROM() {
			ps.Data = g.data
		}
		out = append(out, ps)
	}
	return out
}

