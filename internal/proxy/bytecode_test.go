package proxy

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspector/pkg/models"
)

// buildMinimalProxy 构造标准EIP-1167字节码
func buildMinimalProxy(impl common.Address) []byte {
	code := append([]byte{}, eip1167Prefix...)
	code = append(code, 0x73) // PUSH20
	code = append(code, impl.Bytes()...)
	code = append(code, common.FromHex("0x5af43d82803e903d91602b")...)
	code = append(code, eip1167Suffix...)
	return code
}

func TestParseMinimalProxy(t *testing.T) {
	impl := common.HexToAddress("0xbebebebebebebebebebebebebebebebebebebebe")
	code := buildMinimalProxy(impl)

	parsed, ok := parseMinimalProxy(code)
	require.True(t, ok)
	assert.Equal(t, impl, parsed)
}

func TestParseMinimalProxy_ShortAddress(t *testing.T) {
	// 前导零被优化的变体：PUSH19 + 19字节地址
	impl := common.HexToAddress("0x00bebebebebebebebebebebebebebebebebebebe")
	code := append([]byte{}, eip1167Prefix...)
	code = append(code, 0x72) // PUSH19
	code = append(code, impl.Bytes()[1:]...)
	code = append(code, common.FromHex("0x5af43d82803e903d91602b")...)
	code = append(code, eip1167Suffix...)

	parsed, ok := parseMinimalProxy(code)
	require.True(t, ok)
	assert.Equal(t, impl, parsed)
}

func TestParseMinimalProxy_Invalid(t *testing.T) {
	// 非模板字节码
	_, ok := parseMinimalProxy(common.FromHex("0x6080604052348015600f57600080fd5b"))
	assert.False(t, ok)

	// 前缀正确但后缀损坏
	impl := common.HexToAddress("0xbebebebebebebebebebebebebebebebebebebebe")
	code := buildMinimalProxy(impl)
	code[len(code)-1] = 0x00
	_, ok = parseMinimalProxy(code)
	assert.False(t, ok)

	// 模板被截断
	_, ok = parseMinimalProxy(code[:len(code)-8])
	assert.False(t, ok)

	// 空字节码
	_, ok = parseMinimalProxy(nil)
	assert.False(t, ok)
}

func TestHasDelegatecall(t *testing.T) {
	// 真实的DELEGATECALL操作码
	assert.True(t, hasDelegatecall([]byte{0x60, 0x00, 0xf4}))

	// PUSH立即数中的0xf4不是操作码
	assert.False(t, hasDelegatecall([]byte{0x60, 0xf4, 0x00}))

	// PUSH32的32字节立即数全是0xf4也不应误判
	push32 := append([]byte{0x7f}, bytes.Repeat([]byte{0xf4}, 32)...)
	push32 = append(push32, 0x00)
	assert.False(t, hasDelegatecall(push32))

	assert.False(t, hasDelegatecall(nil))
}

func TestMatchBytecode_MinimalProxyWins(t *testing.T) {
	impl := common.HexToAddress("0xbebebebebebebebebebebebebebebebebebebebe")
	code := buildMinimalProxy(impl)

	candidates := MatchBytecode(code)
	require.NotEmpty(t, candidates)

	// 精确模板排在启发式之前
	assert.Equal(t, models.StandardMinimalProxyClone, candidates[0].Standard)
	assert.Equal(t, models.ConfidenceHigh, candidates[0].Confidence)
	require.NotNil(t, candidates[0].Implementation)
	assert.Equal(t, impl, *candidates[0].Implementation)
}

func TestMatchBytecode_DelegatecallHeuristic(t *testing.T) {
	candidates := MatchBytecode([]byte{0x60, 0x00, 0xf4})
	require.Len(t, candidates, 1)
	assert.Equal(t, models.StandardUnknown, candidates[0].Standard)
	assert.Equal(t, models.ConfidenceLow, candidates[0].Confidence)
}

func TestMatchBytecode_NoMatch(t *testing.T) {
	// 普通合约字节码：无模板、无DELEGATECALL
	candidates := MatchBytecode(common.FromHex("0x6080604052348015600f57600080fd5b"))
	assert.Empty(t, candidates)

	assert.Nil(t, MatchBytecode(nil))
}
