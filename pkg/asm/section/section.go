// Package section implements C5, the section builder: the active-section
// stack driven by SECTION/PUSHS/POPS, UNION/NEXTU/ENDU overlay blocks,
// LOAD/ENDL address-redirected blocks, alignment and DS reservation, and
// the byte-emission primitives the directive engine calls while encoding
// instructions and data directives.
package section

import (
	"fmt"

	"github.com/brackenfield/gbtk/pkg/obj"
)

// Builder accumulates the sections of a single assembled file.
type Builder struct {
	sections []*obj.Section
	byName   map[string]*obj.Section

	active  *obj.Section // where labels/the "@" symbol currently resolve
	storage *obj.Section // where bytes are physically appended (differs from active only inside a LOAD block)
	offset  uint32       // active's logical cursor, counted from active.Org-relative zero

	stack []frame
	union *unionState
	load  *loadFrame
}

type frame struct {
	active  *obj.Section
	storage *obj.Section
	offset  uint32
}

type unionState struct {
	name    string
	maxSize uint32
	section *obj.Section
}

type loadFrame struct {
	outerActive  *obj.Section
	outerStorage *obj.Section
	outerOffset  uint32
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{byName: make(map[string]*obj.Section)}
}

// Sections returns every section declared so far, in declaration order.
func (b *Builder) Sections() []*obj.Section { return b.sections }

// Declare opens name as the active section, creating it if this is its
// first appearance, per the spec.md §3/§4.6 SECTION directive: type is
// fixed for the section's lifetime, org/bank are FloatingOrg/FloatingBank
// unless the directive pins them.
func (b *Builder) Declare(name string, typ obj.SectionType, mod obj.Modifier, org, bank int32, alignLog2 uint8, alignOfs uint32) error {
	if b.load != nil {
		return fmt.Errorf("cannot open SECTION %q inside a LOAD block; close it with ENDL first", name)
	}

	existing, ok := b.byName[name]
	switch {
	case !ok:
		s := &obj.Section{
			Name: name, Type: typ, Modifier: mod,
			Org: org, Bank: bank, AlignLog2: alignLog2, AlignOfs: alignOfs,
		}
		b.sections = append(b.sections, s)
		b.byName[name] = s
		b.active, b.storage, b.offset = s, s, 0
		if mod == obj.Union {
			b.union = &unionState{name: name, section: s}
		}

	case mod == obj.Fragment && existing.Modifier == obj.Fragment:
		// Reopening a FRAGMENT section appends to it in place.
		b.active, b.storage = existing, existing
		b.offset = uint32(len(existing.Data))
		if !existing.Type.IsROM() {
			b.offset = existing.Size
		}

	case mod == obj.Union && existing.Modifier == obj.Union:
		b.active, b.storage = existing, existing
		b.offset = 0
		b.union = &unionState{name: name, section: existing}

	default:
		return fmt.Errorf("section %q already declared with incompatible modifier", name)
	}
	return nil
}

// PushSection saves the current section context (PUSHS).
func (b *Builder) PushSection() {
	b.stack = append(b.stack, frame{active: b.active, storage: b.storage, offset: b.offset})
}

// PopSection restores the most recently pushed section context (POPS).
func (b *Builder) PopSection() error {
	if len(b.stack) == 0 {
		return fmt.Errorf("POPS with no matching PUSHS")
	}
	f := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	b.active, b.storage, b.offset = f.active, f.storage, f.offset
	return nil
}

// NextUnionArm resets the cursor to the start of the union's shared
// address range (NEXTU), recording the widest arm seen so far.
func (b *Builder) NextUnionArm() error {
	if b.union == nil {
		return fmt.Errorf("NEXTU outside of a UNION section")
	}
	if b.offset > b.union.maxSize {
		b.union.maxSize = b.offset
	}
	b.offset = 0
	return nil
}

// EndUnion closes the union block (ENDU), fixing the section's Size to
// the widest arm.
func (b *Builder) EndUnion() error {
	if b.union == nil {
		return fmt.Errorf("ENDU without a matching UNION section")
	}
	if b.offset > b.union.maxSize {
		b.union.maxSize = b.offset
	}
	b.union.section.Size = b.union.maxSize
	b.union = nil
	return nil
}

// BeginLoad opens a LOAD block: subsequent labels and emitted bytes
// address as if placed in a new section of type/org/bank, but the bytes
// are physically appended to the section that was active when LOAD was
// opened (spec.md §4.6's "code that runs in one place, is stored in
// another").
func (b *Builder) BeginLoad(name string, typ obj.SectionType, org, bank int32) error {
	if b.load != nil {
		return fmt.Errorf("nested LOAD blocks are not supported")
	}
	hostStorage := b.storage
	b.load = &loadFrame{outerActive: b.active, outerStorage: b.storage, outerOffset: b.offset}

	s := &obj.Section{Name: name, Type: typ, Org: org, Bank: bank}
	b.sections = append(b.sections, s)
	b.byName[name] = s

	b.active = s
	b.storage = hostStorage
	b.offset = 0
	return nil
}

// EndLoad closes a LOAD block (ENDL), restoring the enclosing section.
func (b *Builder) EndLoad() error {
	if b.load == nil {
		return fmt.Errorf("ENDL without a matching LOAD")
	}
	b.active.Size = b.offset
	f := b.load
	b.active, b.storage, b.offset = f.outerActive, f.outerStorage, f.outerOffset
	b.load = nil
	return nil
}

// Active returns the section labels currently attach to.
func (b *Builder) Active() *obj.Section { return b.active }

// ByName looks up a declared section regardless of whether it is active,
// for SIZEOF/STARTOF/BANK-of-a-named-section expression resolution.
func (b *Builder) ByName(name string) (*obj.Section, bool) {
	s, ok := b.byName[name]
	return s, ok
}

// IndexOf returns s's position in Sections(), for stamping a label's
// SectionID at definition time.
func (b *Builder) IndexOf(s *obj.Section) int32 {
	for i, candidate := range b.sections {
		if candidate == s {
			return int32(i)
		}
	}
	return -1
}

// Offset returns the current logical write cursor within Active(), i.e.
// the value of the "@" pseudo-symbol relative to Active's Org.
func (b *Builder) Offset() uint32 { return b.offset }

// EmitBytes appends data to the storage section and advances both
// cursors, growing active's declared Size to match. Non-ROM section
// types (VRAM/SRAM/WRAM*/HRAM/OAM) ignore the actual bytes — they are
// reservations — but still consume address space.
func (b *Builder) EmitBytes(data []byte) error {
	if b.active == nil {
		return fmt.Errorf("no active section: use SECTION before emitting data")
	}
	if b.storage.Type.IsROM() {
		b.storage.Data = append(b.storage.Data, data...)
	} else if len(data) > 0 {
		return fmt.Errorf("section %q of type %s cannot hold initialized data", b.active.Name, b.active.Type)
	}
	b.offset += uint32(len(data))
	if b.union == nil && b.offset > b.active.Size {
		b.active.Size = b.offset
	}
	return nil
}

// Reserve advances the cursor by n bytes without writing data (DS in a RAM
// section, or DS in ROM without an explicit fill value).
func (b *Builder) Reserve(n uint32) error {
	if b.active == nil {
		return fmt.Errorf("no active section: use SECTION before reserving space")
	}
	if b.storage.Type.IsROM() {
		b.storage.Data = append(b.storage.Data, make([]byte, n)...)
	}
	b.offset += n
	if b.union == nil && b.offset > b.active.Size {
		b.active.Size = b.offset
	}
	return nil
}

// Align pads storage's write cursor up to the next multiple of 2^log2,
// plus ofs, per the ALIGN directive.
func (b *Builder) Align(log2 uint8, ofs uint32) error {
	stride := uint32(1) << log2
	rem := b.offset % stride
	var pad uint32
	if rem <= ofs {
		pad = ofs - rem
	} else {
		pad = stride - rem + ofs
	}
	return b.Reserve(pad)
}

// AddPatch records a deferred relocation at the current storage offset.
func (b *Builder) AddPatch(p obj.Patch) {
	p.Offset = uint32(len(b.storage.Data)) - patchWidthAlreadyWritten(p)
	b.storage.Patches = append(b.storage.Patches, p)
}

// patchWidthAlreadyWritten accounts for the placeholder bytes EmitBytes
// already wrote for this patch (callers emit zero-filled placeholder
// bytes, then immediately record the patch describing how to fill them).
func patchWidthAlreadyWritten(p obj.Patch) uint32 {
	return uint32(p.Type.Width())
}
