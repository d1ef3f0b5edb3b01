package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ROM0BankedToBankZeroOnly(t *testing.T) {
	table := Default()
	rom0 := table[obj.ROM0]
	assert.Equal(t, int32(0x0000), rom0.AddrStart)
	assert.Equal(t, int32(0x3FFF), rom0.AddrEnd)
	assert.Equal(t, int32(0), rom0.BankFirst)
	assert.Equal(t, int32(0), rom0.BankLast)
	assert.False(t, rom0.Unbounded())
}

func TestDefault_ROMXIsUnboundedUpward(t *testing.T) {
	romx := Default()[obj.ROMX]
	assert.Equal(t, int32(1), romx.BankFirst)
	assert.True(t, romx.Unbounded())
}

func TestLoadOverrides_AppliesPartialFieldsOnTopOfDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- type: HRAM
  addrStart: 0xFF90
`), 0o644))

	table, err := LoadOverrides(path)
	require.NoError(t, err)
	hram := table[obj.HRAM]
	assert.Equal(t, int32(0xFF90), hram.AddrStart)
	assert.Equal(t, int32(0xFFFE), hram.AddrEnd) // untouched field keeps the default
}

func TestLoadOverrides_UnknownTypeIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- type: NOPE
  addrStart: 0
`), 0o644))

	_, err := LoadOverrides(path)
	assert.Error(t, err)
}
