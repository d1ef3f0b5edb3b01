package warnflags

import (
	"testing"

	"github.com/brackenfield/gbtk/pkg/diag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPolicy_SilencesNoPrefixedCategory(t *testing.T) {
	p, err := BuildPolicy([]string{"no-obsolete"}, nil)
	require.NoError(t, err)
	assert.True(t, p.Silenced[diag.CategoryObsolete])
}

func TestBuildPolicy_BareWerrorPromotesAll(t *testing.T) {
	p, err := BuildPolicy(nil, []string{""})
	require.NoError(t, err)
	assert.True(t, p.AllErrors)
}

func TestBuildPolicy_WerrorWithNamePromotesJustThatCategory(t *testing.T) {
	p, err := BuildPolicy(nil, []string{"assert"})
	require.NoError(t, err)
	assert.True(t, p.Promoted[diag.CategoryAssert])
	assert.False(t, p.AllErrors)
}

func TestBuildPolicy_UnknownWarnCategoryErrors(t *testing.T) {
	_, err := BuildPolicy([]string{"bogus"}, nil)
	assert.Error(t, err)
}

func TestBuildPolicy_UnknownSilencedCategoryErrors(t *testing.T) {
	_, err := BuildPolicy([]string{"no-bogus"}, nil)
	assert.Error(t, err)
}

func TestBuildPolicy_UnknownWerrorCategoryErrors(t *testing.T) {
	_, err := BuildPolicy(nil, []string{"bogus"})
	assert.Error(t, err)
}
