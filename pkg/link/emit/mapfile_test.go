package emit

import (
	"strings"
	"testing"

	"github.com/brackenfield/gbtk/pkg/link"
	"github.com/brackenfield/gbtk/pkg/link/region"
	"github.com/brackenfield/gbtk/pkg/obj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteMapFile_AnnotatesGapsAndTotal(t *testing.T) {
	res := &link.Result{Sections: []link.PlacedSection{
		{Name: "Main", Type: obj.ROM0, Org: 0x0150, Bank: 0, Size: 16},
	}}

	var buf strings.Builder
	require.NoError(t, WriteMapFile(&buf, res, region.Default()))

	out := buf.String()
	assert.Contains(t, out, "=== Summary ===")
	assert.Contains(t, out, "=== ROM0 bank 0 ===")
	assert.Contains(t, out, "Main (16 bytes)")
	assert.Contains(t, out, "EMPTY")
	assert.Contains(t, out, "TOTAL EMPTY")
}

func TestWriteMapFile_SummaryCountsUsedBytes(t *testing.T) {
	res := &link.Result{Sections: []link.PlacedSection{
		{Name: "Main", Type: obj.ROM0, Org: 0, Bank: 0, Size: 100},
	}}

	var buf strings.Builder
	require.NoError(t, WriteMapFile(&buf, res, region.Default()))
	assert.Contains(t, buf.String(), "100 used")
}
