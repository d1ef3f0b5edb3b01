package section

import "github.com/brackenfield/gbtk/pkg/obj"

const (
	opLDAAbs   = 0xFA // LD A,[a16]
	opLDAbsA   = 0xEA // LD [a16],A
	opLDHAImm  = 0xF0 // LDH A,[a8]  (a8 implicitly $FF00 + operand)
	opLDHImmA  = 0xE0 // LDH [a8],A
	opNOP      = 0x00
)

// RewriteHRAMLoads is the one peephole optimization this assembler
// performs (SPEC_FULL §12, gated behind -O): any already-resolved
// `LD A,[$FF..]` / `LD [$FF..],A` 3-byte encoding is narrowed to the
// 2-byte LDH form. The freed byte is replaced with a NOP rather than
// removed, so every other offset into the section — including existing
// Patches and any label already assigned an address — stays valid.
func RewriteHRAMLoads(s *obj.Section) int {
	if !s.Type.IsROM() {
		return 0
	}

	patched := make([]bool, len(s.Data))
	for _, p := range s.Patches {
		for i := uint32(0); i < uint32(p.Type.Width()) && p.Offset+i < uint32(len(s.Data)); i++ {
			patched[p.Offset+i] = true
		}
	}

	rewrites := 0
	data := s.Data
	for i := 0; i+2 < len(data); i++ {
		op := data[i]
		if op != opLDAAbs && op != opLDAbsA {
			continue
		}
		if patched[i] || patched[i+1] || patched[i+2] {
			continue
		}

		addr := uint16(data[i+1]) | uint16(data[i+2])<<8
		if addr < 0xFF00 {
			continue
		}

		short := byte(opLDHImmA)
		if op == opLDAAbs {
			short = opLDHAImm
		}

		data[i] = short
		data[i+1] = byte(addr & 0xff)
		data[i+2] = opNOP
		rewrites++
		i += 2
	}

	return rewrites
}
