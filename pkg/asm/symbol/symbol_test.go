package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefine_RedefinitionOfLabelIsError(t *testing.T) {
	table := New()
	require.NoError(t, table.Define(Symbol{Name: "Start", Kind: KindLabel, Value: 0, HasValue: true}))

	err := table.Define(Symbol{Name: "Start", Kind: KindLabel, Value: 4, HasValue: true})
	assert.ErrorIs(t, err, ErrRedefined)
}

func TestDefine_VarMayBeRedefined(t *testing.T) {
	table := New()
	require.NoError(t, table.Define(Symbol{Name: "N", Kind: KindVar, Value: 1, HasValue: true}))
	require.NoError(t, table.Define(Symbol{Name: "N", Kind: KindVar, Value: 2, HasValue: true}))

	sym, err := table.Lookup("N")
	require.NoError(t, err)
	assert.EqualValues(t, 2, sym.Value)
}

func TestLocalLabel_NestsUnderCurrentGlobal(t *testing.T) {
	table := New()
	require.NoError(t, table.Define(Symbol{Name: "Loop", Kind: KindLabel, Value: 0x100, HasValue: true}))
	require.NoError(t, table.Define(Symbol{Name: ".again", Kind: KindLabel, Value: 0x102, HasValue: true}))

	sym, err := table.Lookup(".again")
	require.NoError(t, err)
	assert.EqualValues(t, 0x102, sym.Value)
}

func TestLocalLabel_WithoutGlobalIsError(t *testing.T) {
	table := New()
	err := table.Define(Symbol{Name: ".again", Kind: KindLabel, Value: 0, HasValue: true})
	assert.Error(t, err)
}

func TestPurge_ReferencedSymbolIsError(t *testing.T) {
	table := New()
	require.NoError(t, table.Define(Symbol{Name: "Foo", Kind: KindEqu, Value: 1, HasValue: true}))

	_, err := table.Lookup("Foo")
	require.NoError(t, err)

	err = table.Purge("Foo")
	assert.ErrorIs(t, err, ErrPurgeReferenced)
}

func TestPurge_UnreferencedSymbolSucceeds(t *testing.T) {
	table := New()
	require.NoError(t, table.Define(Symbol{Name: "Foo", Kind: KindEqu, Value: 1, HasValue: true}))

	require.NoError(t, table.Purge("Foo"))

	_, err := table.Lookup("Foo")
	assert.ErrorIs(t, err, ErrUndefined)
}

func TestBuiltin_NArgReflectsBoundContext(t *testing.T) {
	table := New()
	table.Bind(&BuildContext{NArg: 3})

	sym, err := table.Lookup("_NARG")
	require.NoError(t, err)
	assert.EqualValues(t, 3, sym.Value)
}

func TestNextAnonymous_Increments(t *testing.T) {
	table := New()
	assert.Equal(t, "@0", table.NextAnonymous())
	assert.Equal(t, "@1", table.NextAnonymous())
}

func TestExported_OnlyReturnsExportedGlobals(t *testing.T) {
	table := New()
	require.NoError(t, table.Define(Symbol{Name: "Public", Kind: KindLabel, Exported: true, Value: 0, HasValue: true}))
	require.NoError(t, table.Define(Symbol{Name: "Private", Kind: KindLabel, Value: 4, HasValue: true}))

	exported := table.Exported()
	require.Len(t, exported, 1)
	assert.Equal(t, "Public", exported[0].Name)
}
