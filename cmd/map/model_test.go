package mapcmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brackenfield/gbtk/pkg/link"
	"github.com/brackenfield/gbtk/pkg/link/emit"
	"github.com/brackenfield/gbtk/pkg/link/region"
	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixtures(t *testing.T) (symPath, mapPath string) {
	t.Helper()
	res := &link.Result{
		Sections: []link.PlacedSection{
			{Name: "Main", Type: obj.ROM0, Org: 0x0150, Bank: 0, Size: 16},
		},
		Symbols: []link.ResolvedSymbol{
			{Name: "Start", Addr: 0x0150, Bank: 0, Exported: true},
			{Name: "Helper", Addr: 0x0158, Bank: 0, Exported: false},
		},
	}

	dir := t.TempDir()
	symPath = filepath.Join(dir, "game.sym")
	mapPath = filepath.Join(dir, "game.map")

	symFile, err := os.Create(symPath)
	require.NoError(t, err)
	defer symFile.Close()
	require.NoError(t, emit.WriteSymbolFile(symFile, res, "gbtk"))

	mapFile, err := os.Create(mapPath)
	require.NoError(t, err)
	defer mapFile.Close()
	require.NoError(t, emit.WriteMapFile(mapFile, res, region.Default()))

	return symPath, mapPath
}

func TestLoadSymbolFile_ParsesBankAddrName(t *testing.T) {
	symPath, _ := writeFixtures(t)

	syms, err := LoadSymbolFile(symPath)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, Symbol{Bank: 0, Addr: 0x0150, Name: "Start"}, syms[0])
	assert.Equal(t, Symbol{Bank: 0, Addr: 0x0158, Name: "Helper"}, syms[1])
}

func TestLoadMapFile_ParsesBankListingAndEmptyGaps(t *testing.T) {
	_, mapPath := writeFixtures(t)

	banks, err := LoadMapFile(mapPath)
	require.NoError(t, err)
	require.Len(t, banks, 1)

	b := banks[0]
	assert.Equal(t, "ROM0", b.SectionType)
	assert.Equal(t, 0, b.Bank)
	assert.Greater(t, b.TotalEmpty, 0)

	var sawMain, sawEmpty bool
	for _, e := range b.Entries {
		if e.Name == "Main" {
			sawMain = true
			assert.Equal(t, 16, e.Size)
			assert.False(t, e.Empty)
		}
		if e.Empty {
			sawEmpty = true
		}
	}
	assert.True(t, sawMain, "expected a Main entry")
	assert.True(t, sawEmpty, "expected at least one EMPTY gap")
}

func TestLoadModel_CombinesSymbolsAndBanks(t *testing.T) {
	symPath, mapPath := writeFixtures(t)

	model, err := LoadModel(symPath, mapPath)
	require.NoError(t, err)
	assert.Len(t, model.Symbols, 2)
	assert.Len(t, model.Banks, 1)
}

func TestLoadModel_SkipsEmptyPaths(t *testing.T) {
	model, err := LoadModel("", "")
	require.NoError(t, err)
	assert.Empty(t, model.Symbols)
	assert.Empty(t, model.Banks)
}

func TestFindSymbols_MatchesSubstringCaseInsensitiveSortedByAddr(t *testing.T) {
	model := &ReadOnlyMapModel{Symbols: []Symbol{
		{Bank: 0, Addr: 0x200, Name: "MainLoop"},
		{Bank: 0, Addr: 0x100, Name: "mainInit"},
		{Bank: 0, Addr: 0x300, Name: "Other"},
	}}

	got := model.FindSymbols("main")
	require.Len(t, got, 2)
	assert.Equal(t, "mainInit", got[0].Name)
	assert.Equal(t, "MainLoop", got[1].Name)
}

func TestFindSymbols_EmptySubstringReturnsAll(t *testing.T) {
	model := &ReadOnlyMapModel{Symbols: []Symbol{
		{Name: "A", Addr: 1},
		{Name: "B", Addr: 2},
	}}
	assert.Len(t, model.FindSymbols(""), 2)
}
