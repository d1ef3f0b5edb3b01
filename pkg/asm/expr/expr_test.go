package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	symbols  map[string]int32
	sections map[string]struct{ size, start, bank int32 }
	pc       int32
	pcOK     bool
	bank     int32
	bankOK   bool
}

func (f *fakeResolver) ResolveSymbol(name string) (int32, bool, error) {
	v, ok := f.symbols[name]
	return v, ok, nil
}
func (f *fakeResolver) ResolvePC() (int32, bool) { return f.pc, f.pcOK }
func (f *fakeResolver) SectionSize(name string) (int32, bool, error) {
	s, ok := f.sections[name]
	return s.size, ok, nil
}
func (f *fakeResolver) SectionStart(name string) (int32, bool, error) {
	s, ok := f.sections[name]
	return s.start, ok, nil
}
func (f *fakeResolver) SectionBank(name string) (int32, bool, error) {
	s, ok := f.sections[name]
	return s.bank, ok, nil
}
func (f *fakeResolver) CurrentBank() (int32, bool) { return f.bank, f.bankOK }

func TestFold_ConstantArithmeticFoldsImmediately(t *testing.T) {
	n := Binary(OpMul, Binary(OpAdd, Const(3), Const(1)), Const(4))
	assert.True(t, n.IsConst())
	assert.EqualValues(t, 16, n.Const)
}

func TestEval_ScenarioDEF_N_EQU_3(t *testing.T) {
	// DEF N EQU 3 \ DB N+1, N*N, HIGH($1234), LOW($1234) -> 04 09 12 34
	r := &fakeResolver{symbols: map[string]int32{"N": 3}}

	nPlus1 := Binary(OpAdd, Sym("N"), Const(1))
	v, ok, err := Eval(nPlus1, r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 4, v)

	nSquared := Binary(OpMul, Sym("N"), Sym("N"))
	v, ok, err = Eval(nSquared, r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 9, v)

	high := Intrinsic("HIGH", Const(0x1234))
	v, ok, err = Eval(high, r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0x12, v)

	low := Intrinsic("LOW", Const(0x1234))
	v, ok, err = Eval(low, r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0x34, v)
}

func TestEval_UnresolvedSymbolDefersWithoutError(t *testing.T) {
	r := &fakeResolver{symbols: map[string]int32{}}
	_, ok, err := Eval(Sym("Later"), r)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEval_DivFloorsTowardNegativeInfinity(t *testing.T) {
	v, ok, err := Eval(Binary(OpDiv, Const(-7), Const(2)), &fakeResolver{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, -4, v)
}

func TestEval_SizeofAndStartof(t *testing.T) {
	r := &fakeResolver{sections: map[string]struct{ size, start, bank int32 }{
		"Header": {size: 4, start: 0x100, bank: 0},
	}}

	v, ok, err := Eval(Intrinsic("SIZEOF", Sym("Header")), r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 4, v)

	v, ok, err = Eval(Intrinsic("STARTOF", Sym("Header")), r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 0x100, v)
}

func TestCheckNBit_RejectsOutOfRange(t *testing.T) {
	assert.NoError(t, CheckNBit(255, 8))
	assert.NoError(t, CheckNBit(-1, 8))
	assert.Error(t, CheckNBit(256, 8))
	assert.Error(t, CheckNBit(-129, 8))
}

func TestCheckHRAM(t *testing.T) {
	assert.NoError(t, CheckHRAM(0xFF80))
	assert.Error(t, CheckHRAM(0x8000))
}

func TestCheckRST_OnlyAcceptsEightVectors(t *testing.T) {
	assert.NoError(t, CheckRST(0x38))
	assert.Error(t, CheckRST(0x09))
}

func TestCheckPCRelative_RangeAndValue(t *testing.T) {
	disp, err := CheckPCRelative(0x102, 0x100)
	require.NoError(t, err)
	assert.EqualValues(t, 0, disp)

	_, err = CheckPCRelative(0x200, 0x100)
	assert.Error(t, err)
}

func TestToRPN_SerializesConstAndSymbol(t *testing.T) {
	index := func(name string) (uint32, error) {
		if name == "Foo" {
			return 7, nil
		}
		return 0, assert.AnError
	}

	out, err := ToRPN(Binary(OpAdd, Const(1), Sym("Foo")), index)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, byte(0x80), out[0]) // RPNConst
}

func TestFixedTrig_QuarterTurnIsSinOne(t *testing.T) {
	quarterTurn := toFixed(0.25)
	result := fixedTrig(quarterTurn, math.Sin)
	assert.InDelta(t, float64(int32(1)<<FixedPointShift), float64(result), 8)
}
