package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress_Valid(t *testing.T) {
	addr, err := ParseAddress("0xDE0B295669a9FD93d5F28D9Ec85E40f4cb697BAe")
	require.NoError(t, err)
	assert.Equal(t, "0xDE0B295669a9FD93d5F28D9Ec85E40f4cb697BAe", addr.Hex())

	// 前后空白被容忍
	_, err = ParseAddress("  0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae  ")
	assert.NoError(t, err)
}

func TestParseAddress_Invalid(t *testing.T) {
	cases := []string{
		"",
		"de0b295669a9fd93d5f28d9ec85e40f4cb697bae", // 缺少0x前缀
		"0x123",           // 太短
		"0xzzzz295669a9fd93d5f28d9ec85e40f4cb697bae", // 非十六进制
	}

	for _, input := range cases {
		_, err := ParseAddress(input)
		assert.Error(t, err, "输入: %q", input)
	}
}

func TestParseBlockRef(t *testing.T) {
	ref, err := ParseBlockRef("latest")
	require.NoError(t, err)
	assert.True(t, ref.IsLatest())

	ref, err = ParseBlockRef("")
	require.NoError(t, err)
	assert.True(t, ref.IsLatest())

	ref, err = ParseBlockRef("18000000")
	require.NoError(t, err)
	assert.False(t, ref.IsLatest())

	_, err = ParseBlockRef("abc")
	assert.Error(t, err)
	_, err = ParseBlockRef("-5")
	assert.Error(t, err)
}

func TestIsValidSelector(t *testing.T) {
	assert.True(t, IsValidSelector("0x18160ddd"))
	assert.False(t, IsValidSelector("18160ddd"))
	assert.False(t, IsValidSelector("0x1816"))
	assert.False(t, IsValidSelector("0x18160dddff"))
}
