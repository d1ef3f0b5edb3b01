package emit

import (
	"bytes"
	"testing"

	"github.com/brackenfield/gbtk/pkg/link"
	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteROM_PadsUnusedBytes(t *testing.T) {
	res := &link.Result{Sections: []link.PlacedSection{
		{Name: "Main", Type: obj.ROM0, Org: 0x150, Bank: 0, Size: 2, Data: []byte{0xAA, 0xBB}},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteROM(&buf, res, ROMOptions{Pad: 0xFF}))

	out := buf.Bytes()
	assert.Equal(t, 0x4000, len(out))
	assert.Equal(t, byte(0xFF), out[0])
	assert.Equal(t, []byte{0xAA, 0xBB}, out[0x150:0x152])
}

func TestWriteROM_OverlayScenario(t *testing.T) {
	overlay := bytes.Repeat([]byte{0x42}, 0x8000)
	res := &link.Result{Sections: []link.PlacedSection{
		{Name: "Hook", Type: obj.ROM0, Org: 0x0100, Bank: 0, Size: 16, Data: bytes.Repeat([]byte{0x01}, 16)},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteROM(&buf, res, ROMOptions{ThirtyTwoKiB: true, Overlay: overlay}))

	out := buf.Bytes()
	require.Len(t, out, 0x8000)
	assert.Equal(t, bytes.Repeat([]byte{0x01}, 16), out[0x100:0x110])
	assert.Equal(t, byte(0x42), out[0x0FF])
	assert.Equal(t, byte(0x42), out[0x110])
}

func TestWriteROM_RejectsUndersizedOverlay(t *testing.T) {
	res := &link.Result{}
	var buf bytes.Buffer
	err := WriteROM(&buf, res, ROMOptions{Overlay: make([]byte, 0x100)})
	assert.Error(t, err)
}

func TestWriteROM_ROMXBankRelocatesAfterBankZero(t *testing.T) {
	res := &link.Result{Sections: []link.PlacedSection{
		{Name: "Bank1", Type: obj.ROMX, Org: 0x4000, Bank: 1, Size: 1, Data: []byte{0x11}},
		{Name: "Bank2", Type: obj.ROMX, Org: 0x4000, Bank: 2, Size: 1, Data: []byte{0x22}},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteROM(&buf, res, ROMOptions{}))
	out := buf.Bytes()
	require.Len(t, out, 3*0x4000)
	assert.Equal(t, byte(0x11), out[0x4000])
	assert.Equal(t, byte(0x22), out[0x8000])
}
