package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestFormatValue_Address(t *testing.T) {
	addr := common.HexToAddress("0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae")
	// EIP-55校验和格式
	assert.Equal(t, "0xDE0B295669a9FD93d5F28D9Ec85E40f4cb697BAe", formatValue(addr))
}

func TestFormatValue_BigInt(t *testing.T) {
	v, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	// 十进制字符串，避免JSON数值精度丢失
	assert.Equal(t, v.String(), formatValue(v))
	assert.Equal(t, "0", formatValue(big.NewInt(0)))
}

func TestFormatValue_Bytes(t *testing.T) {
	assert.Equal(t, "0xdeadbeef", formatValue([]byte{0xde, 0xad, 0xbe, 0xef}))

	var fixed [32]byte
	fixed[0] = 0xab
	assert.Equal(t,
		"0xab00000000000000000000000000000000000000000000000000000000000000",
		formatValue(fixed))
}

func TestFormatValue_Scalars(t *testing.T) {
	assert.Equal(t, true, formatValue(true))
	assert.Equal(t, "USDC", formatValue("USDC"))
	assert.Equal(t, uint8(18), formatValue(uint8(18)))
}

func TestFormatValue_Slice(t *testing.T) {
	addrs := []common.Address{
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
	}
	formatted, ok := formatValue(addrs).([]interface{})
	assert.True(t, ok)
	assert.Len(t, formatted, 2)

	supplies := []*big.Int{big.NewInt(100), big.NewInt(200)}
	assert.Equal(t, []interface{}{"100", "200"}, formatValue(supplies))
}

func TestFormatValue_Tuple(t *testing.T) {
	// 元组返回值被go-ethereum解码为匿名结构体
	tuple := struct {
		Owner  common.Address
		Amount *big.Int
	}{
		Owner:  common.HexToAddress("0x01"),
		Amount: big.NewInt(42),
	}

	formatted, ok := formatValue(tuple).(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "42", formatted["Amount"])
}

func TestFormatValue_Nil(t *testing.T) {
	assert.Nil(t, formatValue(nil))
	var p *big.Int
	assert.Nil(t, formatValue(p))
}
