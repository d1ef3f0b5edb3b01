package parser

import "github.com/brackenfield/gbtk/pkg/asm/expr"

// OperandKind is the syntactic shape of one instruction operand.
type OperandKind int

const (
	OperandReg8 OperandKind = iota
	OperandReg16
	OperandMemHL
	OperandMemBC
	OperandMemDE
	OperandMemC    // (C), the HRAM-via-C addressing mode
	OperandMemImm  // (nn) / (n) — LD always encodes a 16-bit address, LDH an 8-bit offset
	OperandImm     // a bare n/nn expression
	OperandCond    // NZ/Z/NC/C as a branch condition, not the register C
)

// Operand is one parsed instruction operand.
type Operand struct {
	Kind OperandKind
	Reg  string // "A".."L", "BC"/"DE"/"HL"/"SP"/"AF", or the condition text
	Expr *expr.Node
}

var reg8Index = map[string]byte{
	"B": 0, "C": 1, "D": 2, "E": 3, "H": 4, "L": 5, "A": 7,
}

var reg16Index = map[string]byte{
	"BC": 0, "DE": 1, "HL": 2, "SP": 3,
}

var reg16StackIndex = map[string]byte{
	"BC": 0, "DE": 1, "HL": 2, "AF": 3,
}

var condIndex = map[string]byte{
	"NZ": 0, "Z": 1, "NC": 2, "C": 3,
}
