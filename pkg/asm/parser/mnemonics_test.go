package parser

import (
	"testing"

	"github.com/brackenfield/gbtk/pkg/asm/expr"
	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zeroResolver struct{}

func (zeroResolver) ResolveSymbol(name string) (int32, bool, error)    { return 0, false, nil }
func (zeroResolver) ResolvePC() (int32, bool)                          { return 0, false }
func (zeroResolver) SectionSize(name string) (int32, bool, error)      { return 0, false, nil }
func (zeroResolver) SectionStart(name string) (int32, bool, error)     { return 0, false, nil }
func (zeroResolver) SectionBank(name string) (int32, bool, error)      { return 0, false, nil }
func (zeroResolver) CurrentBank() (int32, bool)                        { return 0, false }

func noIndex(name string) (uint32, error) { return 0, nil }

func TestEncode_LDAbsoluteHRAMForm(t *testing.T) {
	ops := []Operand{
		{Kind: OperandReg8, Reg: "A"},
		{Kind: OperandMemImm, Expr: expr.Const(0xFF80)},
	}
	enc, err := Encode("LD", ops, 0x100, zeroResolver{}, noIndex)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFA, 0x80, 0xFF}, enc.Bytes)
	assert.Nil(t, enc.Patch)
}

func TestEncode_LDHShortFormWhenExplicit(t *testing.T) {
	ops := []Operand{
		{Kind: OperandReg8, Reg: "A"},
		{Kind: OperandMemImm, Expr: expr.Const(0x80)},
	}
	enc, err := Encode("LDH", ops, 0x100, zeroResolver{}, noIndex)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x80}, enc.Bytes)
}

func TestEncode_JRWithinRange(t *testing.T) {
	ops := []Operand{{Kind: OperandImm, Expr: expr.Const(0x102)}}
	enc, err := Encode("JR", ops, 0x100, zeroResolver{}, noIndex)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x18, 0x00}, enc.Bytes)
}

func TestEncode_JRConditional(t *testing.T) {
	ops := []Operand{
		{Kind: OperandCond, Reg: "Z"},
		{Kind: OperandImm, Expr: expr.Const(0x100)},
	}
	enc, err := Encode("JR", ops, 0x100, zeroResolver{}, noIndex)
	require.NoError(t, err)
	assert.Equal(t, byte(0x28), enc.Bytes[0])
	assert.EqualValues(t, -2, int8(enc.Bytes[1]))
}

func TestEncode_CallDeferredProducesPatch(t *testing.T) {
	ops := []Operand{{Kind: OperandImm, Expr: expr.Sym("Start")}}
	enc, err := Encode("CALL", ops, 0x100, zeroResolver{}, func(string) (uint32, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCD, 0x00, 0x00}, enc.Bytes)
	require.NotNil(t, enc.Patch)
	assert.Equal(t, obj.PatchWord, enc.Patch.Type)
}

func TestEncode_RSTValidVector(t *testing.T) {
	ops := []Operand{{Expr: expr.Const(0x38)}}
	enc, err := Encode("RST", ops, 0, zeroResolver{}, noIndex)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF}, enc.Bytes)
}

func TestEncode_RSTInvalidVector(t *testing.T) {
	ops := []Operand{{Expr: expr.Const(0x09)}}
	_, err := Encode("RST", ops, 0, zeroResolver{}, noIndex)
	assert.Error(t, err)
}

func TestEncode_PushPop(t *testing.T) {
	enc, err := Encode("PUSH", []Operand{{Kind: OperandReg16, Reg: "HL"}}, 0, zeroResolver{}, noIndex)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xE5}, enc.Bytes)

	enc, err = Encode("POP", []Operand{{Kind: OperandReg16, Reg: "AF"}}, 0, zeroResolver{}, noIndex)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF1}, enc.Bytes)
}

func TestEncode_ALUWithImmediate(t *testing.T) {
	enc, err := Encode("ADD", []Operand{
		{Kind: OperandReg8, Reg: "A"},
		{Kind: OperandImm, Expr: expr.Const(5)},
	}, 0, zeroResolver{}, noIndex)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC6, 0x05}, enc.Bytes)
}

func TestEncode_ALUWithRegister(t *testing.T) {
	enc, err := Encode("XOR", []Operand{{Kind: OperandReg8, Reg: "A"}}, 0, zeroResolver{}, noIndex)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAF}, enc.Bytes)
}
