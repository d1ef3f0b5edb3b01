package emit

import (
	"strings"
	"testing"

	"github.com/brackenfield/gbtk/pkg/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSymbolFile_FormatsBankAddrName(t *testing.T) {
	res := &link.Result{Symbols: []link.ResolvedSymbol{
		{Name: "Start", Addr: 0x150, Bank: 0},
	}}

	var buf strings.Builder
	require.NoError(t, WriteSymbolFile(&buf, res, "gbtk"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "gbtk")
	assert.Equal(t, "00:0150 Start", lines[1])
}

func TestWriteSymbolFile_SortsByAddressThenLocalBeforeGlobal(t *testing.T) {
	res := &link.Result{Symbols: []link.ResolvedSymbol{
		{Name: "Global", Addr: 0x100, Exported: true},
		{Name: "Local", Addr: 0x100, Exported: false},
	}}

	var buf strings.Builder
	require.NoError(t, WriteSymbolFile(&buf, res, "gbtk"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Local")
	assert.Contains(t, lines[2], "Global")
}

func TestWriteSymbolFile_ExcludesIllegalNames(t *testing.T) {
	res := &link.Result{Symbols: []link.ResolvedSymbol{
		{Name: ".local", Addr: 0x100},
		{Name: "Visible", Addr: 0x100},
	}}

	var buf strings.Builder
	require.NoError(t, WriteSymbolFile(&buf, res, "gbtk"))
	assert.NotContains(t, buf.String(), ".local")
	assert.Contains(t, buf.String(), "Visible")
}

func TestEscapeSymName_EscapesNonASCII(t *testing.T) {
	assert.Equal(t, "caf\\u00E9", escapeSymName("caf\u00e9"))
}
