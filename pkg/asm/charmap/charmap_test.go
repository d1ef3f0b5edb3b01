package charmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_LongestSequenceWinsFirst(t *testing.T) {
	cm := New("test")
	cm.Add("A", []byte{0x01})
	cm.Add("AB", []byte{0x02})

	assert.Equal(t, []byte{0x02, 0x01}, cm.Encode("ABA"))
}

func TestEncode_FallsBackToRawByteWhenUnmapped(t *testing.T) {
	cm := New("test")
	cm.Add("X", []byte{0xFF})

	assert.Equal(t, []byte{0xFF, 'y'}, cm.Encode("Xy"))
}

func TestStack_PushSetPop(t *testing.T) {
	s := NewStack()
	jp, err := s.Define("jp", "")
	require.NoError(t, err)
	jp.Add("ー", []byte{0x80})

	s.Push()
	require.NoError(t, s.SetActive("jp"))
	assert.Equal(t, "jp", s.Active().Name())

	require.NoError(t, s.Pop())
	assert.Equal(t, "main", s.Active().Name())
}

func TestStack_PopWithoutPushIsError(t *testing.T) {
	s := NewStack()
	assert.Error(t, s.Pop())
}

func TestStack_DefineDuplicateIsError(t *testing.T) {
	s := NewStack()
	_, err := s.Define("main", "")
	assert.Error(t, err)
}

func TestStack_CloneCopiesMappings(t *testing.T) {
	s := NewStack()
	base, err := s.Define("base", "")
	require.NoError(t, err)
	base.Add("Z", []byte{0x09})

	clone, err := s.Define("clone", "base")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x09}, clone.Encode("Z"))
}
