package link

import (
	"encoding/binary"
	"testing"

	"github.com/brackenfield/gbtk/pkg/diag"
	"github.com/brackenfield/gbtk/pkg/link/region"
	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpnConst(v int32) []byte {
	out := []byte{obj.RPNConst}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return append(out, buf[:]...)
}

func rpnSym(idx uint32) []byte {
	out := []byte{obj.RPNSym}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], idx)
	return append(out, buf[:]...)
}

func findPlaced(t *testing.T, res *Result, name string) PlacedSection {
	t.Helper()
	for _, s := range res.Sections {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("section %q not placed", name)
	return PlacedSection{}
}

func TestLink_ForwardCallPatchResolves(t *testing.T) {
	mod := &obj.Module{
		FileNames: []string{"main.asm"},
		Symbols: []obj.Symbol{
			{Name: "Label", Type: obj.SymLocal, SectionID: 1, Value: 0x200},
		},
		Sections: []obj.Section{
			{
				Name: "Code", Type: obj.ROM0, Org: 0x100, Bank: 0, Size: 3,
				Data:    []byte{0xCD, 0x00, 0x00},
				Patches: []obj.Patch{{Type: obj.PatchWord, Offset: 1, RPN: rpnSym(0)}},
			},
			{Name: "Target", Type: obj.ROM0, Org: 0x200, Bank: 0, Size: 1, Data: []byte{0x00}},
		},
	}

	l := New([]*obj.Module{mod}, region.Default(), nil)
	res, err := l.Link()
	require.NoError(t, err)

	code := findPlaced(t, res, "Code")
	assert.Equal(t, []byte{0xCD, 0x00, 0x02}, code.Data)
}

func TestLink_CrossModuleImportResolves(t *testing.T) {
	modA := &obj.Module{
		FileNames: []string{"a.asm"},
		Symbols:   []obj.Symbol{{Name: "Helper", Type: obj.SymExport, SectionID: 0, Value: 0x300}},
		Sections: []obj.Section{
			{Name: "A", Type: obj.ROM0, Org: 0x300, Bank: 0, Size: 1, Data: []byte{0xC9}},
		},
	}
	modB := &obj.Module{
		FileNames: []string{"b.asm"},
		Symbols:   []obj.Symbol{{Name: "Helper", Type: obj.SymImport}},
		Sections: []obj.Section{
			{
				Name: "B", Type: obj.ROM0, Org: 0x100, Bank: 0, Size: 3,
				Data:    []byte{0xCD, 0x00, 0x00},
				Patches: []obj.Patch{{Type: obj.PatchWord, Offset: 1, RPN: rpnSym(0)}},
			},
		},
	}

	l := New([]*obj.Module{modA, modB}, region.Default(), nil)
	res, err := l.Link()
	require.NoError(t, err)

	b := findPlaced(t, res, "B")
	assert.Equal(t, []byte{0xCD, 0x00, 0x03}, b.Data)
}

func TestLink_JRDistancePatchResolves(t *testing.T) {
	mod := &obj.Module{
		FileNames: []string{"main.asm"},
		Symbols:   []obj.Symbol{{Name: "Target", Type: obj.SymLocal, SectionID: 0, Value: 0x110}},
		Sections: []obj.Section{
			{
				Name: "Main", Type: obj.ROM0, Org: 0x100, Bank: 0, Size: 2,
				Data:    []byte{0x18, 0x00},
				Patches: []obj.Patch{{Type: obj.PatchJR, Offset: 1, RPN: rpnSym(0)}},
			},
		},
	}

	l := New([]*obj.Module{mod}, region.Default(), nil)
	res, err := l.Link()
	require.NoError(t, err)

	main := findPlaced(t, res, "Main")
	assert.Equal(t, byte(0x0E), main.Data[1])
}

func TestLink_OutOfRangeByteReportsErrorAndWritesZero(t *testing.T) {
	mod := &obj.Module{
		FileNames: []string{"main.asm"},
		Sections: []obj.Section{
			{
				Name: "Main", Type: obj.ROM0, Org: 0x100, Bank: 0, Size: 1,
				Data:    []byte{0xFF},
				Patches: []obj.Patch{{Type: obj.PatchByte, Offset: 0, RPN: rpnConst(300)}},
			},
		},
	}

	bag := diag.NewBag(nil, nil)
	l := New([]*obj.Module{mod}, region.Default(), bag)
	res, err := l.Link()
	require.NoError(t, err)
	assert.Equal(t, 1, bag.ErrorCount())

	main := findPlaced(t, res, "Main")
	assert.Equal(t, byte(0), main.Data[0])
}

func TestLink_FailedAssertionReportsError(t *testing.T) {
	mod := &obj.Module{
		FileNames: []string{"main.asm"},
		Sections:  []obj.Section{{Name: "Main", Type: obj.ROM0, Org: 0x100, Bank: 0, Size: 1, Data: []byte{0}}},
		Assertions: []obj.Assertion{
			{
				Patch:    obj.Patch{RPN: rpnConst(0), PCSectionID: 0},
				Severity: obj.AssertError,
				Message:  "stack too deep",
			},
		},
	}

	bag := diag.NewBag(nil, nil)
	l := New([]*obj.Module{mod}, region.Default(), bag)
	_, err := l.Link()
	require.NoError(t, err)
	assert.Equal(t, 1, bag.ErrorCount())
}

func TestLink_PassingAssertionReportsNothing(t *testing.T) {
	mod := &obj.Module{
		FileNames:  []string{"main.asm"},
		Sections:   []obj.Section{{Name: "Main", Type: obj.ROM0, Org: 0x100, Bank: 0, Size: 1, Data: []byte{0}}},
		Assertions: []obj.Assertion{{Patch: obj.Patch{RPN: rpnConst(1)}, Severity: obj.AssertError}},
	}

	bag := diag.NewBag(nil, nil)
	l := New([]*obj.Module{mod}, region.Default(), bag)
	_, err := l.Link()
	require.NoError(t, err)
	assert.Equal(t, 0, bag.ErrorCount())
}

func TestLink_DuplicateExportIsAnError(t *testing.T) {
	modA := &obj.Module{Symbols: []obj.Symbol{{Name: "X", Type: obj.SymExport, SectionID: -1, Value: 1}}}
	modB := &obj.Module{Symbols: []obj.Symbol{{Name: "X", Type: obj.SymExport, SectionID: -1, Value: 2}}}

	l := New([]*obj.Module{modA, modB}, region.Default(), nil)
	_, err := l.Link()
	assert.Error(t, err)
}
