package proxy

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspector/pkg/models"
)

func TestSlotProber_EIP1822(t *testing.T) {
	mc := newMockChain(100)
	mc.code[addrImplA] = plainBytecode
	mc.setStorage(addrProxy, EIP1822LogicSlot, addressWord(addrImplA))

	prober := NewSlotProber(mc, testLogger())
	evidence := prober.ProbeAll(context.Background(), addrProxy, 100)

	require.Contains(t, evidence, models.StandardEIP1822UUPS)
	ev := evidence[models.StandardEIP1822UUPS]
	assert.Equal(t, addrImplA, ev.Implementation)
	assert.Equal(t, models.ConfidenceHigh, ev.Confidence)
	assert.NotContains(t, evidence, models.StandardEIP1967Transparent)
}

func TestSlotProber_AdminSlot(t *testing.T) {
	admin := common.HexToAddress("0xDDD0000000000000000000000000000000000004")

	mc := newMockChain(100)
	mc.code[addrImplA] = plainBytecode
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, addressWord(addrImplA))
	mc.setStorage(addrProxy, EIP1967AdminSlot, addressWord(admin))

	prober := NewSlotProber(mc, testLogger())
	evidence := prober.ProbeAll(context.Background(), addrProxy, 100)

	require.Contains(t, evidence, models.StandardEIP1967Transparent)
	ev := evidence[models.StandardEIP1967Transparent]
	require.NotNil(t, ev.Admin)
	assert.Equal(t, admin, *ev.Admin)
}

func TestSlotProber_BeaconIndirection(t *testing.T) {
	beacon := common.HexToAddress("0xEEE0000000000000000000000000000000000005")

	mc := newMockChain(100)
	mc.code[addrImplA] = plainBytecode
	// 实现槽为空，信标槽指向beacon，beacon.implementation()返回实现地址
	mc.setStorage(addrProxy, EIP1967BeaconSlot, addressWord(beacon))
	mc.calls[beacon] = common.LeftPadBytes(addrImplA.Bytes(), 32)

	prober := NewSlotProber(mc, testLogger())
	evidence := prober.ProbeAll(context.Background(), addrProxy, 100)

	require.Contains(t, evidence, models.StandardEIP1967Transparent)
	ev := evidence[models.StandardEIP1967Transparent]
	assert.Equal(t, addrImplA, ev.Implementation)
	require.NotNil(t, ev.Beacon)
	assert.Equal(t, beacon, *ev.Beacon)
	assert.Equal(t, models.ConfidenceHigh, ev.Confidence)
}

func TestSlotProber_BeaconCallReverts(t *testing.T) {
	beacon := common.HexToAddress("0xEEE0000000000000000000000000000000000005")

	mc := newMockChain(100)
	mc.setStorage(addrProxy, EIP1967BeaconSlot, addressWord(beacon))
	// beacon上没有可调用的implementation()，mock默认revert

	prober := NewSlotProber(mc, testLogger())
	evidence := prober.ProbeAll(context.Background(), addrProxy, 100)

	// 信标调用失败按证据缺失处理
	assert.NotContains(t, evidence, models.StandardEIP1967Transparent)
}

func TestSlotProber_ZeroSlotIsUnset(t *testing.T) {
	mc := newMockChain(100)
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, common.Hash{})

	prober := NewSlotProber(mc, testLogger())
	evidence := prober.ProbeAll(context.Background(), addrProxy, 100)

	assert.Empty(t, evidence)
}

func TestSlotProber_UsesPinnedBlock(t *testing.T) {
	mc := newMockChain(200)
	mc.code[addrImplA] = plainBytecode
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, addressWord(addrImplA))

	prober := NewSlotProber(mc, testLogger())
	prober.ProbeAll(context.Background(), addrProxy, 123)

	require.NotEmpty(t, mc.seenBlocks)
	for _, b := range mc.seenBlocks {
		assert.Equal(t, uint64(123), b)
	}
}
