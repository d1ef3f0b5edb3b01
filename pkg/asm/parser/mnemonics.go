package parser

import (
	"fmt"

	"github.com/brackenfield/gbtk/pkg/asm/expr"
	"github.com/brackenfield/gbtk/pkg/obj"
)

// Encoded is the result of encoding one instruction: the bytes to emit
// (with zero placeholders where Patch is non-nil) and the deferred
// relocation, if the operand could not be folded to a constant at
// assembly time.
type Encoded struct {
	Bytes []byte
	Patch *obj.Patch // nil if Bytes is already final
}

// immWidth is the byte width an operand expression patches, and the
// obj.PatchType that width corresponds to.
type immWidth int

const (
	width8 immWidth = 1
	width16 immWidth = 2
)

// resolveImm evaluates e; if it folds to a constant, check validates and
// bakes the final bytes. If it doesn't fold, a placeholder-zero patch of
// the given width is produced instead.
func resolveImm(e *expr.Node, r expr.Resolver, w immWidth, check func(int32) error) ([]byte, *obj.Patch, error) {
	v, ok, err := expr.Eval(e, r)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		if check != nil {
			if err := check(v); err != nil {
				return nil, nil, err
			}
		}
		if w == width8 {
			return []byte{byte(v)}, nil, nil
		}
		return []byte{byte(v), byte(v >> 8)}, nil, nil
	}

	pt := obj.PatchByte
	n := 1
	if w == width16 {
		pt = obj.PatchWord
		n = 2
	}
	return make([]byte, n), &obj.Patch{Type: pt, RPN: nil}, nil
}

func rpnFor(e *expr.Node, index expr.SymbolIndexer) ([]byte, error) {
	return expr.ToRPN(e, index)
}

// Encode assembles one instruction from the documented mnemonic subset
// (SPEC_FULL §12 / DESIGN.md scope decisions): data-movement LD in its
// register, immediate, [BC]/[DE] and absolute-address forms, LDH in its
// [C] and 8-bit-offset forms, JR/JP/CALL/RET with conditions,
// the eight accumulator arithmetic/logic ops, RST, and PUSH/POP.
func Encode(mnemonic string, ops []Operand, pc int32, r expr.Resolver, index expr.SymbolIndexer) (Encoded, error) {
	switch mnemonic {
	case "LD":
		return encodeLD(ops, r, index)
	case "LDH":
		return encodeLDH(ops, r, index)
	case "JR":
		return encodeJR(ops, pc, r, index)
	case "JP":
		return encodeJP(ops, r, index)
	case "CALL":
		return encodeCall(ops, r, index)
	case "RET":
		return encodeRet(ops)
	case "RETI":
		return Encoded{Bytes: []byte{0xD9}}, nil
	case "RST":
		return encodeRST(ops, r)
	case "PUSH":
		return encodePushPop(ops, 0xC5)
	case "POP":
		return encodePushPop(ops, 0xC1)
	case "ADD", "ADC", "SUB", "SBC", "AND", "XOR", "OR", "CP":
		return encodeALU(mnemonic, ops, r, index)
	case "NOP":
		return Encoded{Bytes: []byte{0x00}}, nil
	case "HALT":
		return Encoded{Bytes: []byte{0x76}}, nil
	case "DI":
		return Encoded{Bytes: []byte{0xF3}}, nil
	case "EI":
		return Encoded{Bytes: []byte{0xFB}}, nil
	default:
		return Encoded{}, fmt.Errorf("unsupported mnemonic %q", mnemonic)
	}
}

func finish(opcode byte, imm []byte, patch *obj.Patch) Encoded {
	bytes := append([]byte{opcode}, imm...)
	if patch != nil {
		patch.Offset = 1 // relative to the start of this instruction; caller rebases to the section
	}
	return Encoded{Bytes: bytes, Patch: patch}
}

func encodeLD(ops []Operand, r expr.Resolver, index expr.SymbolIndexer) (Encoded, error) {
	if len(ops) != 2 {
		return Encoded{}, fmt.Errorf("LD requires exactly two operands")
	}
	dst, src := ops[0], ops[1]

	switch {
	case dst.Kind == OperandReg8 && src.Kind == OperandReg8:
		return Encoded{Bytes: []byte{0x40 | reg8Index[dst.Reg]<<3 | reg8Index[src.Reg]}}, nil

	case dst.Kind == OperandReg8 && src.Kind == OperandMemHL:
		return Encoded{Bytes: []byte{0x46 | reg8Index[dst.Reg]<<3}}, nil

	case dst.Kind == OperandMemHL && src.Kind == OperandReg8:
		return Encoded{Bytes: []byte{0x70 | reg8Index[src.Reg]}}, nil

	case dst.Kind == OperandReg8 && src.Kind == OperandImm:
		imm, patch, err := resolveImm(src.Expr, r, width8, nil)
		if err != nil {
			return Encoded{}, err
		}
		if patch != nil {
			rpn, err := rpnFor(src.Expr, index)
			if err != nil {
				return Encoded{}, err
			}
			patch.RPN = rpn
		}
		return finish(0x06|reg8Index[dst.Reg]<<3, imm, patch), nil

	case dst.Kind == OperandMemHL && src.Kind == OperandImm:
		imm, patch, err := resolveImm(src.Expr, r, width8, nil)
		if err != nil {
			return Encoded{}, err
		}
		if patch != nil {
			rpn, err := rpnFor(src.Expr, index)
			if err != nil {
				return Encoded{}, err
			}
			patch.RPN = rpn
		}
		return finish(0x36, imm, patch), nil

	case dst.Kind == OperandReg16 && src.Kind == OperandImm:
		imm, patch, err := resolveImm(src.Expr, r, width16, nil)
		if err != nil {
			return Encoded{}, err
		}
		if patch != nil {
			rpn, err := rpnFor(src.Expr, index)
			if err != nil {
				return Encoded{}, err
			}
			patch.RPN = rpn
		}
		return finish(0x01|reg16Index[dst.Reg]<<4, imm, patch), nil

	case dst.Reg == "A" && src.Kind == OperandMemBC:
		return Encoded{Bytes: []byte{0x0A}}, nil
	case dst.Reg == "A" && src.Kind == OperandMemDE:
		return Encoded{Bytes: []byte{0x1A}}, nil
	case dst.Kind == OperandMemBC && src.Reg == "A":
		return Encoded{Bytes: []byte{0x02}}, nil
	case dst.Kind == OperandMemDE && src.Reg == "A":
		return Encoded{Bytes: []byte{0x12}}, nil

	case dst.Reg == "A" && src.Kind == OperandMemImm:
		return encodeLDAAbsOrHRAM(src.Expr, r, index, true)
	case dst.Kind == OperandMemImm && src.Reg == "A":
		return encodeLDAAbsOrHRAM(dst.Expr, r, index, false)

	case dst.Reg == "SP" && src.Reg == "HL":
		return Encoded{Bytes: []byte{0xF9}}, nil

	default:
		return Encoded{}, fmt.Errorf("unsupported LD operand combination")
	}
}

// encodeLDAAbsOrHRAM always takes the 3-byte absolute form: `ld a,[$ff80]`
// assembles literally as written, matching source. LDH is a distinct
// mnemonic (encodeLDH) for the short form, and the -O RewriteHRAMLoads
// peephole pass (pkg/asm/section) is what narrows an absolute-form
// instruction after the fact once its constant address is known to sit
// in the HRAM window (SPEC_FULL §12).
func encodeLDAAbsOrHRAM(addr *expr.Node, r expr.Resolver, index expr.SymbolIndexer, load bool) (Encoded, error) {
	opcode := byte(0xEA)
	if load {
		opcode = 0xFA
	}
	imm, patch, err := resolveImm(addr, r, width16, nil)
	if err != nil {
		return Encoded{}, err
	}
	if patch != nil {
		rpn, err := rpnFor(addr, index)
		if err != nil {
			return Encoded{}, err
		}
		patch.RPN = rpn
	}
	return finish(opcode, imm, patch), nil
}

func encodeLDH(ops []Operand, r expr.Resolver, index expr.SymbolIndexer) (Encoded, error) {
	if len(ops) != 2 {
		return Encoded{}, fmt.Errorf("LDH requires exactly two operands")
	}
	dst, src := ops[0], ops[1]

	if dst.Reg == "A" && src.Kind == OperandMemC {
		return Encoded{Bytes: []byte{0xF2}}, nil
	}
	if dst.Kind == OperandMemC && src.Reg == "A" {
		return Encoded{Bytes: []byte{0xE2}}, nil
	}
	if dst.Reg == "A" && src.Kind == OperandMemImm {
		imm, patch, err := resolveImm(src.Expr, r, width8, func(v int32) error { return expr.CheckNBit(v, 8) })
		if err != nil {
			return Encoded{}, err
		}
		if patch != nil {
			rpn, err := rpnFor(src.Expr, index)
			if err != nil {
				return Encoded{}, err
			}
			patch.RPN = rpn
		}
		return finish(0xF0, imm, patch), nil
	}
	if dst.Kind == OperandMemImm && src.Reg == "A" {
		imm, patch, err := resolveImm(dst.Expr, r, width8, nil)
		if err != nil {
			return Encoded{}, err
		}
		if patch != nil {
			rpn, err := rpnFor(dst.Expr, index)
			if err != nil {
				return Encoded{}, err
			}
			patch.RPN = rpn
		}
		return finish(0xE0, imm, patch), nil
	}
	return Encoded{}, fmt.Errorf("unsupported LDH operand combination")
}

func encodeJR(ops []Operand, pc int32, r expr.Resolver, index expr.SymbolIndexer) (Encoded, error) {
	var cond *Operand
	var target *expr.Node
	if len(ops) == 2 {
		cond, target = &ops[0], ops[1].Expr
	} else if len(ops) == 1 {
		target = ops[0].Expr
	} else {
		return Encoded{}, fmt.Errorf("JR requires one or two operands")
	}

	opcode := byte(0x18)
	if cond != nil {
		opcode = 0x20 | condIndex[cond.Reg]<<3
	}

	v, ok, err := expr.Eval(target, r)
	if err != nil {
		return Encoded{}, err
	}
	if ok {
		disp, err := expr.CheckPCRelative(v, pc)
		if err != nil {
			return Encoded{}, err
		}
		return Encoded{Bytes: []byte{opcode, byte(disp)}}, nil
	}

	rpn, err := rpnFor(target, index)
	if err != nil {
		return Encoded{}, err
	}
	patch := &obj.Patch{Type: obj.PatchJR, RPN: rpn, Offset: 1}
	return Encoded{Bytes: []byte{opcode, 0}, Patch: patch}, nil
}

func encodeJP(ops []Operand, r expr.Resolver, index expr.SymbolIndexer) (Encoded, error) {
	if len(ops) == 1 && ops[0].Kind == OperandMemHL {
		return Encoded{Bytes: []byte{0xE9}}, nil
	}

	var cond *Operand
	var target *expr.Node
	if len(ops) == 2 {
		cond, target = &ops[0], ops[1].Expr
	} else if len(ops) == 1 {
		target = ops[0].Expr
	} else {
		return Encoded{}, fmt.Errorf("JP requires one or two operands")
	}

	opcode := byte(0xC3)
	if cond != nil {
		opcode = 0xC2 | condIndex[cond.Reg]<<3
	}

	imm, patch, err := resolveImm(target, r, width16, nil)
	if err != nil {
		return Encoded{}, err
	}
	if patch != nil {
		rpn, err := rpnFor(target, index)
		if err != nil {
			return Encoded{}, err
		}
		patch.RPN = rpn
	}
	return finish(opcode, imm, patch), nil
}

func encodeCall(ops []Operand, r expr.Resolver, index expr.SymbolIndexer) (Encoded, error) {
	var cond *Operand
	var target *expr.Node
	if len(ops) == 2 {
		cond, target = &ops[0], ops[1].Expr
	} else if len(ops) == 1 {
		target = ops[0].Expr
	} else {
		return Encoded{}, fmt.Errorf("CALL requires one or two operands")
	}

	opcode := byte(0xCD)
	if cond != nil {
		opcode = 0xC4 | condIndex[cond.Reg]<<3
	}

	imm, patch, err := resolveImm(target, r, width16, nil)
	if err != nil {
		return Encoded{}, err
	}
	if patch != nil {
		rpn, err := rpnFor(target, index)
		if err != nil {
			return Encoded{}, err
		}
		patch.RPN = rpn
	}
	return finish(opcode, imm, patch), nil
}

func encodeRet(ops []Operand) (Encoded, error) {
	if len(ops) == 0 {
		return Encoded{Bytes: []byte{0xC9}}, nil
	}
	if len(ops) == 1 && ops[0].Kind == OperandCond {
		return Encoded{Bytes: []byte{0xC0 | condIndex[ops[0].Reg]<<3}}, nil
	}
	return Encoded{}, fmt.Errorf("RET takes zero or one condition operand")
}

func encodeRST(ops []Operand, r expr.Resolver) (Encoded, error) {
	if len(ops) != 1 {
		return Encoded{}, fmt.Errorf("RST requires exactly one operand")
	}
	v, ok, err := expr.Eval(ops[0].Expr, r)
	if err != nil {
		return Encoded{}, err
	}
	if !ok {
		return Encoded{}, fmt.Errorf("RST vector must be a compile-time constant")
	}
	if err := expr.CheckRST(v); err != nil {
		return Encoded{}, err
	}
	return Encoded{Bytes: []byte{0xC7 | byte(v)}}, nil
}

func encodePushPop(ops []Operand, base byte) (Encoded, error) {
	if len(ops) != 1 || ops[0].Kind != OperandReg16 {
		return Encoded{}, fmt.Errorf("expects exactly one 16-bit register operand")
	}
	idx, ok := reg16StackIndex[ops[0].Reg]
	if !ok {
		return Encoded{}, fmt.Errorf("unknown register pair %q", ops[0].Reg)
	}
	return Encoded{Bytes: []byte{base | idx<<4}}, nil
}

var aluBase = map[string]byte{
	"ADD": 0x80, "ADC": 0x88, "SUB": 0x90, "SBC": 0x98,
	"AND": 0xA0, "XOR": 0xA8, "OR": 0xB0, "CP": 0xB8,
}

var aluImmOpcode = map[string]byte{
	"ADD": 0xC6, "ADC": 0xCE, "SUB": 0xD6, "SBC": 0xDE,
	"AND": 0xE6, "XOR": 0xEE, "OR": 0xF6, "CP": 0xFE,
}

func encodeALU(mnemonic string, ops []Operand, r expr.Resolver, index expr.SymbolIndexer) (Encoded, error) {
	// The accumulator is implicit in two-operand form (ADD A,r) and may be
	// omitted in one-operand form (ADD r), both accepted here.
	operand := ops[len(ops)-1]

	switch operand.Kind {
	case OperandReg8:
		return Encoded{Bytes: []byte{aluBase[mnemonic] | reg8Index[operand.Reg]}}, nil
	case OperandMemHL:
		return Encoded{Bytes: []byte{aluBase[mnemonic] | 6}}, nil
	case OperandImm:
		imm, patch, err := resolveImm(operand.Expr, r, width8, nil)
		if err != nil {
			return Encoded{}, err
		}
		if patch != nil {
			rpn, err := rpnFor(operand.Expr, index)
			if err != nil {
				return Encoded{}, err
			}
			patch.RPN = rpn
		}
		return finish(aluImmOpcode[mnemonic], imm, patch), nil
	default:
		return Encoded{}, fmt.Errorf("%s: unsupported operand", mnemonic)
	}
}
