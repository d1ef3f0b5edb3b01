package link

import (
	"encoding/binary"
	"fmt"

	"github.com/brackenfield/gbtk/pkg/asm/expr"
	"github.com/brackenfield/gbtk/pkg/obj"
)

// symRef is where one exported name lives: which module declared it, and
// its index into that module's Symbols slice.
type symRef struct {
	moduleIdx int
	symIdx    uint32
}

// buildExports indexes every SymExport symbol across modules by name. Only
// exported symbols are link-visible to other modules; SymLocal symbols stay
// module-private and SymImport entries are requests, not declarations
// (spec.md §6's symbol visibility rule).
func buildExports(modules []*obj.Module) (map[string]symRef, error) {
	exports := make(map[string]symRef, 64)
	for mi, mod := range modules {
		for si, s := range mod.Symbols {
			if s.Type != obj.SymExport {
				continue
			}
			if prev, exists := exports[s.Name]; exists {
				return nil, fmt.Errorf("symbol %q exported by more than one module (module %d and module %d)", s.Name, prev.moduleIdx, mi)
			}
			exports[s.Name] = symRef{moduleIdx: mi, symIdx: uint32(si)}
		}
	}
	return exports, nil
}

// resolver carries everything patch/assertion evaluation needs to turn a
// symbol or section reference into a final placed address.
type resolver struct {
	modules []*obj.Module
	exports map[string]symRef
	pieces  map[string]*piece
	byName  map[string]*group
}

func newResolver(modules []*obj.Module, exports map[string]symRef, pieces map[string]*piece, groups []*group) *resolver {
	byName := make(map[string]*group, len(groups))
	for _, g := range groups {
		byName[g.name] = g
	}
	return &resolver{modules: modules, exports: exports, pieces: pieces, byName: byName}
}

func (r *resolver) piece(moduleIdx, sectionIdx int) (*piece, bool) {
	p, ok := r.pieces[pieceKey(moduleIdx, sectionIdx)]
	return p, ok
}

// symbolValue resolves the given module-local symbol index to its final
// placed address and bank, recursing through SymImport indirection and
// section-relative offsets (see DESIGN.md for the Value interpretation
// this formula relies on: a floating-org section's symbols carry a
// section-relative offset, a fixed-org section's symbols already have
// the assembly-time org baked in and must have it backed out).
func (r *resolver) symbolValue(moduleIdx int, symIdx uint32) (addr int32, bank int32, err error) {
	mod := r.modules[moduleIdx]
	if int(symIdx) >= len(mod.Symbols) {
		return 0, 0, fmt.Errorf("symbol index %d out of range in module %d", symIdx, moduleIdx)
	}
	sym := mod.Symbols[symIdx]

	if sym.Type == obj.SymImport {
		ref, ok := r.exports[sym.Name]
		if !ok {
			return 0, 0, fmt.Errorf("undefined symbol %q", sym.Name)
		}
		return r.symbolValue(ref.moduleIdx, ref.symIdx)
	}

	if sym.SectionID < 0 {
		// A constant (EQU/SET) symbol: Value is the literal, no placement.
		return sym.Value, 0, nil
	}

	pc, ok := r.piece(moduleIdx, int(sym.SectionID))
	if !ok {
		return 0, 0, fmt.Errorf("symbol %q: owning section not found", sym.Name)
	}

	origSec := mod.Sections[sym.SectionID]
	localOffset := sym.Value
	if origSec.Org != obj.FloatingOrg {
		localOffset = sym.Value - origSec.Org
	}

	g := pc.group
	return g.placedOrg + int32(pc.base) + localOffset, g.placedBank, nil
}

// groupByName looks up a merged section group for BANK/SIZEOF/STARTOF of a
// section name, which refers to the link-wide merged group rather than any
// one module's piece of it.
func (r *resolver) groupByName(name string) (*group, error) {
	g, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("section %q referenced but never declared", name)
	}
	return g, nil
}

// evalCtx is the per-evaluation context an RPN stream runs under: which
// module's symbol table RPNSym indices resolve against, and which group (if
// any) BANK(@) resolves against.
type evalCtx struct {
	moduleIdx int
	self      *group
}

// evalRPN interprets one patch or assertion's postfix byte stream to a
// single constant, per spec.md §6's opcode table.
func (r *resolver) evalRPN(ctx evalCtx, rpn []byte) (int32, error) {
	var stack []int32
	push := func(v int32) { stack = append(stack, v) }
	pop := func() (int32, error) {
		if len(stack) == 0 {
			return 0, fmt.Errorf("RPN stack underflow")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}
	popPair := func() (a, b int32, err error) {
		b, err = pop()
		if err != nil {
			return 0, 0, err
		}
		a, err = pop()
		return a, b, err
	}

	i := 0
	for i < len(rpn) {
		op := rpn[i]
		i++

		switch op {
		case obj.RPNConst:
			if i+4 > len(rpn) {
				return 0, fmt.Errorf("truncated RPN constant")
			}
			push(int32(binary.LittleEndian.Uint32(rpn[i:])))
			i += 4

		case obj.RPNSym:
			if i+4 > len(rpn) {
				return 0, fmt.Errorf("truncated RPN symbol reference")
			}
			idx := binary.LittleEndian.Uint32(rpn[i:])
			i += 4
			addr, _, err := r.symbolValue(ctx.moduleIdx, idx)
			if err != nil {
				return 0, err
			}
			push(addr)

		case obj.RPNBankSym:
			if i+4 > len(rpn) {
				return 0, fmt.Errorf("truncated RPN symbol reference")
			}
			idx := binary.LittleEndian.Uint32(rpn[i:])
			i += 4
			_, bank, err := r.symbolValue(ctx.moduleIdx, idx)
			if err != nil {
				return 0, err
			}
			push(bank)

		case obj.RPNBankSect, obj.RPNSizeofSect, obj.RPNStartofSect:
			name, n, err := readCString(rpn[i:])
			if err != nil {
				return 0, err
			}
			i += n
			g, err := r.groupByName(name)
			if err != nil {
				return 0, err
			}
			switch op {
			case obj.RPNBankSect:
				push(g.placedBank)
			case obj.RPNSizeofSect:
				push(int32(g.size))
			case obj.RPNStartofSect:
				push(g.placedOrg)
			}

		case obj.RPNBankSelf:
			if ctx.self == nil {
				return 0, fmt.Errorf("BANK(@) used outside of any section")
			}
			push(ctx.self.placedBank)

		case obj.RPNNeg:
			v, err := pop()
			if err != nil {
				return 0, err
			}
			push(-v)
		case obj.RPNNot:
			v, err := pop()
			if err != nil {
				return 0, err
			}
			push(^v)
		case obj.RPNLogNot:
			v, err := pop()
			if err != nil {
				return 0, err
			}
			push(boolInt(v == 0))

		case obj.RPNHRAMCheck:
			v, err := pop()
			if err != nil {
				return 0, err
			}
			if err := expr.CheckHRAM(v); err != nil {
				return 0, err
			}
			push(v)
		case obj.RPNRSTCheck:
			v, err := pop()
			if err != nil {
				return 0, err
			}
			if err := expr.CheckRST(v); err != nil {
				return 0, err
			}
			push(v)

		default:
			a, b, err := popPair()
			if err != nil {
				return 0, fmt.Errorf("RPN opcode 0x%02X: %w", op, err)
			}
			v, err := binaryEval(op, a, b)
			if err != nil {
				return 0, err
			}
			push(v)
		}
	}

	if len(stack) != 1 {
		return 0, fmt.Errorf("RPN expression left %d values on the stack, expected 1", len(stack))
	}
	return stack[0], nil
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func binaryEval(op byte, a, b int32) (int32, error) {
	switch op {
	case obj.RPNAdd:
		return a + b, nil
	case obj.RPNSub:
		return a - b, nil
	case obj.RPNMul:
		return a * b, nil
	case obj.RPNDiv:
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	case obj.RPNMod:
		if b == 0 {
			return 0, fmt.Errorf("modulo by zero")
		}
		return a % b, nil
	case obj.RPNExp:
		return ipow(a, b), nil
	case obj.RPNOr:
		return a | b, nil
	case obj.RPNAnd:
		return a & b, nil
	case obj.RPNXor:
		return a ^ b, nil
	case obj.RPNLogAnd:
		return boolInt(a != 0 && b != 0), nil
	case obj.RPNLogOr:
		return boolInt(a != 0 || b != 0), nil
	case obj.RPNLogEq:
		return boolInt(a == b), nil
	case obj.RPNLogNe:
		return boolInt(a != b), nil
	case obj.RPNLogGt:
		return boolInt(a > b), nil
	case obj.RPNLogLt:
		return boolInt(a < b), nil
	case obj.RPNLogGe:
		return boolInt(a >= b), nil
	case obj.RPNLogLe:
		return boolInt(a <= b), nil
	case obj.RPNShl:
		return a << uint32(b), nil
	case obj.RPNShr:
		return a >> uint32(b), nil
	case obj.RPNUShr:
		return int32(uint32(a) >> uint32(b)), nil
	default:
		return 0, fmt.Errorf("unknown RPN opcode 0x%02X", op)
	}
}

// ipow implements modulo-2^32 integer exponentiation, matching the
// expression engine's EXP operator (spec.md §3's "modulo 2^32 two's
// complement with defined overflow").
func ipow(base, exp int32) int32 {
	if exp < 0 {
		return 0
	}
	result := int32(1)
	for n := exp; n > 0; n-- {
		result *= base
	}
	return result
}

func readCString(b []byte) (string, int, error) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("unterminated section name in RPN stream")
}
