package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionalStack_SimpleIfElse(t *testing.T) {
	c := &conditionalStack{}
	c.PushIf(false)
	assert.False(t, c.Active())

	require.NoError(t, c.Else())
	assert.True(t, c.Active())

	require.NoError(t, c.Endc())
	assert.True(t, c.Active())
}

func TestConditionalStack_ElifAfterTrueBranchStaysSkipped(t *testing.T) {
	c := &conditionalStack{}
	c.PushIf(true)
	assert.True(t, c.Active())

	require.NoError(t, c.Elif(true))
	assert.False(t, c.Active())
}

func TestConditionalStack_ElseAfterElseIsError(t *testing.T) {
	c := &conditionalStack{}
	c.PushIf(false)
	require.NoError(t, c.Else())
	assert.Error(t, c.Else())
}

func TestConditionalStack_ElifAfterElseIsError(t *testing.T) {
	c := &conditionalStack{}
	c.PushIf(false)
	require.NoError(t, c.Else())
	assert.Error(t, c.Elif(true))
}

func TestConditionalStack_NestedInactiveOuterKeepsInnerInactive(t *testing.T) {
	c := &conditionalStack{}
	c.PushIf(false)
	c.PushIf(true)
	assert.False(t, c.Active())
}

func TestConditionalStack_EndcWithoutIfIsError(t *testing.T) {
	c := &conditionalStack{}
	assert.Error(t, c.Endc())
}
