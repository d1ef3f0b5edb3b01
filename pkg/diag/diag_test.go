package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBag_WarningPromotedByWerror(t *testing.T) {
	policy := NewPolicy()
	policy.PromoteAll()

	var reported []Diagnostic
	bag := NewBag(policy, SinkFunc(func(d Diagnostic) { reported = append(reported, d) }))

	bag.Warnf(Location{}, CategoryObsolete, "old syntax")

	require.Len(t, reported, 1)
	assert.Equal(t, Error, reported[0].Kind)
	assert.Equal(t, 1, bag.ErrorCount())
	assert.Equal(t, 0, bag.WarningCount())
	assert.Equal(t, 1, bag.ExitCode())
}

func TestBag_SilencedCategoryDropped(t *testing.T) {
	policy := NewPolicy()
	policy.Silence(CategoryUser)

	var reported []Diagnostic
	bag := NewBag(policy, SinkFunc(func(d Diagnostic) { reported = append(reported, d) }))

	bag.Warnf(Location{}, CategoryUser, "hello")

	assert.Empty(t, reported)
	assert.Equal(t, 0, bag.WarningCount())
}

func TestBag_ExitCodeZeroWithOnlyWarnings(t *testing.T) {
	bag := NewBag(nil, nil)
	bag.Warnf(Location{}, CategoryObsolete, "x")
	assert.Equal(t, 0, bag.ExitCode())
	assert.Equal(t, 1, bag.WarningCount())
}

func TestBag_ExitCodeOneWithErrors(t *testing.T) {
	bag := NewBag(nil, nil)
	bag.Errorf(Location{}, "bad thing")
	assert.Equal(t, 1, bag.ExitCode())
}

func TestLocation_String(t *testing.T) {
	loc := Location{Frames: []FrameLocation{{Name: "main.asm", Line: 10}, {Name: "MACRO foo", Line: 2}}}
	assert.Equal(t, "main.asm(10) -> MACRO foo(2)", loc.String())
}
