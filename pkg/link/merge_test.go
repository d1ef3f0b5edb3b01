package link

import (
	"testing"

	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func section(name string, typ obj.SectionType, mod obj.Modifier, size uint32, data []byte) obj.Section {
	return obj.Section{
		Name: name, Type: typ, Modifier: mod, Size: size,
		Org: obj.FloatingOrg, Bank: obj.FloatingBank, Data: data,
	}
}

func TestMergeSections_FragmentConcatenatesInLinkOrder(t *testing.T) {
	modA := &obj.Module{Sections: []obj.Section{
		section("Code", obj.ROM0, obj.Fragment, 2, []byte{0x01, 0x02}),
	}}
	modB := &obj.Module{Sections: []obj.Section{
		section("Code", obj.ROM0, obj.Fragment, 2, []byte{0x03, 0x04}),
	}}

	groups, pieces, err := mergeSections([]*obj.Module{modA, modB})
	require.NoError(t, err)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, uint32(4), g.size)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, g.data)

	pa := pieces[pieceKey(0, 0)]
	pb := pieces[pieceKey(1, 0)]
	assert.Equal(t, uint32(0), pa.base)
	assert.Equal(t, uint32(2), pb.base)
}

func TestMergeSections_UnionOverlaysAndTakesMaxSize(t *testing.T) {
	modA := &obj.Module{Sections: []obj.Section{
		section("Vars", obj.WRAM0, obj.Union, 4, nil),
	}}
	modB := &obj.Module{Sections: []obj.Section{
		section("Vars", obj.WRAM0, obj.Union, 10, nil),
	}}

	groups, _, err := mergeSections([]*obj.Module{modA, modB})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, uint32(10), groups[0].size)
	assert.Len(t, groups[0].pieces, 2)
	for _, p := range groups[0].pieces {
		assert.Equal(t, uint32(0), p.base, "union pieces all start at offset 0")
	}
}

func TestMergeSections_DuplicateNormalIsAnError(t *testing.T) {
	modA := &obj.Module{Sections: []obj.Section{section("Main", obj.ROM0, obj.Normal, 1, []byte{0})}}
	modB := &obj.Module{Sections: []obj.Section{section("Main", obj.ROM0, obj.Normal, 1, []byte{0})}}

	_, _, err := mergeSections([]*obj.Module{modA, modB})
	assert.Error(t, err)
}

// A NORMAL section in one module merging with a FRAGMENT piece of the same
// name in another module is legal (spec.md §8 scenario 2): the NORMAL
// declaration is just a fragment of one.
func TestMergeSections_NormalThenFragmentMerges(t *testing.T) {
	modA := &obj.Module{Sections: []obj.Section{
		section("Code", obj.ROM0, obj.Normal, 2, []byte{0xAA, 0xBB}),
	}}
	modB := &obj.Module{Sections: []obj.Section{
		section("Code", obj.ROM0, obj.Fragment, 1, []byte{0xCC}),
	}}

	groups, _, err := mergeSections([]*obj.Module{modA, modB})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, obj.Fragment, groups[0].mod)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, groups[0].data)
}

func TestMergeSections_TypeMismatchIsAnError(t *testing.T) {
	modA := &obj.Module{Sections: []obj.Section{section("X", obj.ROM0, obj.Normal, 1, []byte{0})}}
	modB := &obj.Module{Sections: []obj.Section{section("X", obj.WRAM0, obj.Normal, 1, nil)}}

	_, _, err := mergeSections([]*obj.Module{modA, modB})
	assert.Error(t, err)
}

func TestMergeSections_ConflictingFixedOrgIsAnError(t *testing.T) {
	a := section("X", obj.ROM0, obj.Fragment, 1, []byte{0})
	a.Org = 0x100
	b := section("X", obj.ROM0, obj.Fragment, 1, []byte{0})
	b.Org = 0x200

	_, _, err := mergeSections([]*obj.Module{{Sections: []obj.Section{a}}, {Sections: []obj.Section{b}}})
	assert.Error(t, err)
}

func TestMergeSections_CoarserAlignmentWins(t *testing.T) {
	a := section("X", obj.ROM0, obj.Fragment, 1, []byte{0})
	a.AlignLog2 = 2
	b := section("X", obj.ROM0, obj.Fragment, 1, []byte{0})
	b.AlignLog2 = 8

	groups, _, err := mergeSections([]*obj.Module{{Sections: []obj.Section{a}}, {Sections: []obj.Section{b}}})
	require.NoError(t, err)
	assert.Equal(t, uint8(8), groups[0].alignLog2)
}
