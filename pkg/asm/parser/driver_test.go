package parser

import (
	"testing"

	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assemble(t *testing.T, lines ...string) *obj.Module {
	t.Helper()
	d := NewDriver(nil, nil)
	mod, err := d.Assemble("test.asm", lines)
	require.NoError(t, err)
	require.NotNil(t, mod)
	return mod
}

func romData(t *testing.T, mod *obj.Module, name string) []byte {
	t.Helper()
	for _, s := range mod.Sections {
		if s.Name == name {
			return s.Data
		}
	}
	t.Fatalf("section %q not found", name)
	return nil
}

func TestDriver_EquAndDB(t *testing.T) {
	mod := assemble(t,
		`N EQU 3`,
		`SECTION "Data", ROM0`,
		`DB N, N+1, N*2`,
	)
	assert.Equal(t, []byte{3, 4, 6}, romData(t, mod, "Data"))
}

func TestDriver_FixedOrgLabelAndAbsoluteLD(t *testing.T) {
	mod := assemble(t,
		`SECTION "Main", ROM0[$150]`,
		`Start:`,
		`  ld a,[$ff80]`,
		`  jp Start`,
	)
	data := romData(t, mod, "Main")
	// `ld a,[$ff80]` assembles as the literal 3-byte absolute form.
	assert.Equal(t, []byte{0xFA, 0x80, 0xFF}, data[:3])
	// `jp Start` resolves immediately since Start's address is known.
	assert.Equal(t, byte(0xC3), data[3])
	assert.Equal(t, []byte{0x50, 0x01}, data[4:6])
}

func TestDriver_JRWithinRangeResolvesImmediately(t *testing.T) {
	mod := assemble(t,
		`SECTION "Main", ROM0[$100]`,
		`Loop:`,
		`  nop`,
		`  jr Loop`,
	)
	data := romData(t, mod, "Main")
	assert.Equal(t, byte(0x18), data[1])
	assert.Equal(t, byte(0xFD), data[2]) // -3
}

func TestDriver_IfElseSelectsBranch(t *testing.T) {
	mod := assemble(t,
		`FLAG EQU 1`,
		`SECTION "Data", ROM0`,
		`IF FLAG`,
		`  DB 1`,
		`ELSE`,
		`  DB 2`,
		`ENDC`,
	)
	assert.Equal(t, []byte{1}, romData(t, mod, "Data"))
}

func TestDriver_IfElseFalseSkipsDeadBranch(t *testing.T) {
	// The dead branch references an undefined symbol; it must never be
	// evaluated since the skip is a raw line scan, not a tokenized one.
	mod := assemble(t,
		`FLAG EQU 0`,
		`SECTION "Data", ROM0`,
		`IF FLAG`,
		`  DB Undefined + 1`,
		`ELSE`,
		`  DB 9`,
		`ENDC`,
	)
	assert.Equal(t, []byte{9}, romData(t, mod, "Data"))
}

func TestDriver_ReptExpandsBodyNTimes(t *testing.T) {
	mod := assemble(t,
		`SECTION "Data", ROM0`,
		`REPT 3`,
		`  DB 7`,
		`ENDR`,
	)
	assert.Equal(t, []byte{7, 7, 7}, romData(t, mod, "Data"))
}

func TestDriver_ForLoopBindsVariableEachPass(t *testing.T) {
	mod := assemble(t,
		`SECTION "Data", ROM0`,
		`FOR N, 0, 3`,
		`  DB N`,
		`ENDR`,
	)
	assert.Equal(t, []byte{0, 1, 2}, romData(t, mod, "Data"))
}

func TestDriver_MacroInvocationInterpolatesArguments(t *testing.T) {
	mod := assemble(t,
		`PutByte MACRO`,
		`  DB \1`,
		`ENDM`,
		`SECTION "Data", ROM0`,
		`PutByte 42`,
	)
	assert.Equal(t, []byte{42}, romData(t, mod, "Data"))
}

func TestDriver_DeferredCallProducesPatch(t *testing.T) {
	mod := assemble(t,
		`SECTION "Main", ROM0`,
		`  call Later`,
		`SECTION "Other", ROM0`,
		`Later:`,
		`  ret`,
	)
	sec := mod.Sections[0]
	require.Len(t, sec.Patches, 1)
	assert.Equal(t, obj.PatchWord, sec.Patches[0].Type)
	assert.Equal(t, uint32(1), sec.Patches[0].Offset)
}

func TestDriver_ExportMarksSymbolVisible(t *testing.T) {
	mod := assemble(t,
		`SECTION "Main", ROM0[$100]`,
		`Entry:`,
		`  nop`,
		`EXPORT Entry`,
	)
	var found bool
	for _, s := range mod.Symbols {
		if s.Name == "Entry" {
			found = true
			assert.Equal(t, obj.SymExport, s.Type)
		}
	}
	assert.True(t, found)
}

func TestDriver_DSReservesZeroFilledSpace(t *testing.T) {
	mod := assemble(t,
		`SECTION "Data", ROM0`,
		`DB 1`,
		`DS 3`,
		`DB 2`,
	)
	assert.Equal(t, []byte{1, 0, 0, 0, 2}, romData(t, mod, "Data"))
}

func TestDriver_AssertTrueConditionProducesNoAssertion(t *testing.T) {
	mod := assemble(t,
		`SECTION "Data", ROM0`,
		`ASSERT 1 == 1`,
		`DB 1`,
	)
	assert.Empty(t, mod.Assertions)
}

func TestDriver_BreakStopsReptEarly(t *testing.T) {
	mod := assemble(t,
		`SECTION "Data", ROM0`,
		`REPT 5`,
		`  DB 9`,
		`  BREAK`,
		`  DB 9`,
		`ENDR`,
		`DB 1`,
	)
	assert.Equal(t, []byte{9, 1}, romData(t, mod, "Data"))
}

func TestDriver_ShiftRotatesMacroArgs(t *testing.T) {
	mod := assemble(t,
		`Put3 MACRO`,
		`  DB \1, \2`,
		`  SHIFT`,
		`  DB \1, \2`,
		`ENDM`,
		`SECTION "Data", ROM0`,
		`Put3 1, 2, 3`,
	)
	assert.Equal(t, []byte{1, 2, 2, 3}, romData(t, mod, "Data"))
}

func TestDriver_NArgReflectsMacroCallArgCount(t *testing.T) {
	mod := assemble(t,
		`Count MACRO`,
		`  DB _NARG`,
		`ENDM`,
		`SECTION "Data", ROM0`,
		`Count 1, 2, 3`,
		`Count 1`,
	)
	assert.Equal(t, []byte{3, 1}, romData(t, mod, "Data"))
}

func TestDriver_LineBuiltinTracksCurrentSourceLine(t *testing.T) {
	mod := assemble(t,
		`SECTION "Data", ROM0`,
		`DB __LINE__`,
		`DB __LINE__`,
	)
	data := romData(t, mod, "Data")
	require.Len(t, data, 2)
	assert.NotZero(t, data[0])
	assert.Equal(t, data[0]+1, data[1])
}
