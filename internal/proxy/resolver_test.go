package proxy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspector/internal/chain"
	"inspector/internal/config"
	"inspector/pkg/models"
)

// mockChain 可编排的链客户端
type mockChain struct {
	mu         sync.Mutex
	head       uint64
	code         map[common.Address][]byte
	storage      map[common.Address]map[common.Hash][]byte
	calls        map[common.Address][]byte // 地址 -> 任意调用的返回值
	codeErrs     map[common.Address]error
	codeErrAfter map[common.Address]int // 前N次GetCode成功，之后返回错误
	codeCalls    map[common.Address]int
	seenBlocks   []uint64
}

func newMockChain(head uint64) *mockChain {
	return &mockChain{
		head:         head,
		code:         make(map[common.Address][]byte),
		storage:      make(map[common.Address]map[common.Hash][]byte),
		calls:        make(map[common.Address][]byte),
		codeErrs:     make(map[common.Address]error),
		codeErrAfter: make(map[common.Address]int),
		codeCalls:    make(map[common.Address]int),
	}
}

func (m *mockChain) setStorage(addr common.Address, slot common.Hash, value common.Hash) {
	if m.storage[addr] == nil {
		m.storage[addr] = make(map[common.Hash][]byte)
	}
	m.storage[addr][slot] = value.Bytes()
}

func (m *mockChain) recordBlock(blockNumber uint64) {
	m.mu.Lock()
	m.seenBlocks = append(m.seenBlocks, blockNumber)
	m.mu.Unlock()
}

func (m *mockChain) GetCode(ctx context.Context, address common.Address, blockNumber uint64) ([]byte, error) {
	m.recordBlock(blockNumber)
	m.mu.Lock()
	m.codeCalls[address]++
	calls := m.codeCalls[address]
	m.mu.Unlock()

	if err, ok := m.codeErrs[address]; ok {
		return nil, err
	}
	if after, ok := m.codeErrAfter[address]; ok && calls > after {
		return nil, errors.New("node error")
	}
	return m.code[address], nil
}

func (m *mockChain) GetStorageAt(ctx context.Context, address common.Address, slot common.Hash, blockNumber uint64) ([]byte, error) {
	m.recordBlock(blockNumber)
	if slots, ok := m.storage[address]; ok {
		if v, ok := slots[slot]; ok {
			return v, nil
		}
	}
	return make([]byte, 32), nil
}

func (m *mockChain) Call(ctx context.Context, address common.Address, data []byte, blockNumber uint64) ([]byte, error) {
	m.recordBlock(blockNumber)
	if ret, ok := m.calls[address]; ok {
		return ret, nil
	}
	return nil, errors.New("execution reverted")
}

func (m *mockChain) LatestBlock(ctx context.Context) (uint64, error) {
	return m.head, nil
}

var _ chain.Client = (*mockChain)(nil)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testResolver(client chain.Client, maxDepth int) *Resolver {
	return NewResolver(client, &config.ResolverConfig{MaxDepth: maxDepth}, testLogger())
}

var (
	addrProxy = common.HexToAddress("0xAAA0000000000000000000000000000000000001")
	addrImplA = common.HexToAddress("0xBBB0000000000000000000000000000000000002")
	addrImplB = common.HexToAddress("0xCCC0000000000000000000000000000000000003")
	// 无法被识别为模板的普通字节码
	plainBytecode = common.FromHex("0x6080604052348015600f57600080fd5b")
)

func addressWord(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

// slowChain 字节码读取在上下文取消前不返回
type slowChain struct {
	*mockChain
}

func (s *slowChain) GetCode(ctx context.Context, address common.Address, blockNumber uint64) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return s.mockChain.GetCode(ctx, address, blockNumber)
	}
}

// 配置的解析超时限制整次Resolve的总时长
func TestResolve_ConfiguredTimeout(t *testing.T) {
	mc := newMockChain(18500000)
	mc.code[addrProxy] = plainBytecode

	resolver := NewResolver(&slowChain{mc},
		&config.ResolverConfig{MaxDepth: 4, Timeout: "50ms"}, testLogger())

	start := time.Now()
	_, err := resolver.Resolve(context.Background(), addrProxy, chain.LatestBlockRef())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolve_EIP1967SlotSet(t *testing.T) {
	// 槽位指向实现、字节码不可辨识 → EIP-1967高置信度
	mc := newMockChain(18500000)
	mc.code[addrProxy] = plainBytecode
	mc.code[addrImplA] = plainBytecode
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, addressWord(addrImplA))

	resolver := testResolver(mc, 4)
	res, err := resolver.Resolve(context.Background(), addrProxy, chain.LatestBlockRef())
	require.NoError(t, err)

	assert.Equal(t, models.StandardEIP1967Transparent, res.Standard)
	assert.Equal(t, models.ConfidenceHigh, res.Confidence)
	assert.Equal(t, models.CanonicalAddress(addrImplA), res.ImplementationAddress)
	assert.Equal(t, uint64(18500000), res.ResolvedAtBlock)
}

func TestResolve_SlotEvidenceOutranksBytecode(t *testing.T) {
	// 字节码模板指向B，EIP-1967槽指向A：槽位证据胜出
	mc := newMockChain(100)
	mc.code[addrProxy] = buildMinimalProxy(addrImplB)
	mc.code[addrImplA] = plainBytecode
	mc.code[addrImplB] = plainBytecode
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, addressWord(addrImplA))

	resolver := testResolver(mc, 4)
	res, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)

	assert.Equal(t, models.StandardEIP1967Transparent, res.Standard)
	assert.Equal(t, models.CanonicalAddress(addrImplA), res.ImplementationAddress)
}

func TestResolve_NonProxyTerminal(t *testing.T) {
	// 无槽位、无模式 → Unknown高置信度，不是错误
	mc := newMockChain(100)
	mc.code[addrProxy] = plainBytecode

	resolver := testResolver(mc, 4)
	res, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)

	assert.Equal(t, models.StandardUnknown, res.Standard)
	assert.Equal(t, models.ConfidenceHigh, res.Confidence)
	assert.Empty(t, res.ImplementationAddress)
}

func TestResolve_EOA(t *testing.T) {
	// 无字节码地址是确定的非代理
	mc := newMockChain(100)

	resolver := testResolver(mc, 4)
	res, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)

	assert.Equal(t, models.StandardUnknown, res.Standard)
	assert.Equal(t, models.ConfidenceHigh, res.Confidence)
}

func TestResolve_MinimalProxy(t *testing.T) {
	mc := newMockChain(100)
	mc.code[addrProxy] = buildMinimalProxy(addrImplA)
	mc.code[addrImplA] = plainBytecode

	resolver := testResolver(mc, 4)
	res, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)

	assert.Equal(t, models.StandardMinimalProxyClone, res.Standard)
	assert.Equal(t, models.ConfidenceHigh, res.Confidence)
	assert.Equal(t, models.CanonicalAddress(addrImplA), res.ImplementationAddress)
}

func TestResolve_UninitializedProxyDowngraded(t *testing.T) {
	// 实现槽指向无代码地址：降级为Low，实现地址不对外暴露
	mc := newMockChain(100)
	mc.code[addrProxy] = plainBytecode
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, addressWord(addrImplA))

	resolver := testResolver(mc, 4)
	res, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)

	assert.Equal(t, models.StandardEIP1967Transparent, res.Standard)
	assert.Equal(t, models.ConfidenceLow, res.Confidence)
	assert.Empty(t, res.ImplementationAddress)
}

func TestResolve_DelegatecallOnlyIsUnknownLow(t *testing.T) {
	// 仅有DELEGATECALL启发式：疑似代理但不猜测标准
	mc := newMockChain(100)
	mc.code[addrProxy] = []byte{0x60, 0x00, 0xf4}

	resolver := testResolver(mc, 4)
	res, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)

	assert.Equal(t, models.StandardUnknown, res.Standard)
	assert.Equal(t, models.ConfidenceLow, res.Confidence)
	assert.Empty(t, res.ImplementationAddress)
}

func TestResolve_ProxyChain(t *testing.T) {
	// 代理指向代理再指向实现，解析链应包含全部三跳
	mc := newMockChain(100)
	mc.code[addrProxy] = plainBytecode
	mc.code[addrImplA] = buildMinimalProxy(addrImplB)
	mc.code[addrImplB] = plainBytecode
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, addressWord(addrImplA))

	resolver := testResolver(mc, 4)
	res, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)

	require.Len(t, res.Chain, 3)
	assert.Equal(t, models.StandardEIP1967Transparent, res.Chain[0].Standard)
	assert.Equal(t, models.StandardMinimalProxyClone, res.Chain[1].Standard)
	assert.Equal(t, models.StandardUnknown, res.Chain[2].Standard)
	assert.Equal(t, models.CanonicalAddress(addrImplB), res.FinalImplementation())
}

func TestResolve_CycleDetection(t *testing.T) {
	// A与B互指：访问集合应终止遍历而不是死循环
	mc := newMockChain(100)
	mc.code[addrProxy] = plainBytecode
	mc.code[addrImplA] = plainBytecode
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, addressWord(addrImplA))
	mc.setStorage(addrImplA, EIP1967ImplementationSlot, addressWord(addrProxy))

	resolver := testResolver(mc, 8)
	res, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)

	// proxy和implA各出现一次后在环处停止
	assert.Len(t, res.Chain, 2)
}

func TestResolve_DepthBound(t *testing.T) {
	// 构造长代理链，解析深度受上限约束
	addrs := make([]common.Address, 6)
	for i := range addrs {
		addrs[i] = common.BytesToAddress([]byte{byte(i + 1)})
	}

	mc := newMockChain(100)
	for i := 0; i < len(addrs)-1; i++ {
		mc.code[addrs[i]] = plainBytecode
		mc.code[addrs[i+1]] = plainBytecode
		mc.setStorage(addrs[i], EIP1967ImplementationSlot, addressWord(addrs[i+1]))
	}

	resolver := testResolver(mc, 3)
	res, err := resolver.Resolve(context.Background(), addrs[0], chain.BlockRef(100))
	require.NoError(t, err)

	assert.LessOrEqual(t, len(res.Chain), 3)
}

func TestResolve_Deterministic(t *testing.T) {
	// 同地址同区块重复解析结果一致（幂等性）
	mc := newMockChain(100)
	mc.code[addrProxy] = plainBytecode
	mc.code[addrImplA] = plainBytecode
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, addressWord(addrImplA))

	resolver := testResolver(mc, 4)

	first, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)

	assert.Equal(t, first.Standard, second.Standard)
	assert.Equal(t, first.ImplementationAddress, second.ImplementationAddress)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.ResolvedAtBlock, second.ResolvedAtBlock)
	assert.Equal(t, first.Chain, second.Chain)
}

func TestResolve_BlockPinning(t *testing.T) {
	// latest只解析一次，所有子查询使用同一锚定区块
	mc := newMockChain(18500000)
	mc.code[addrProxy] = plainBytecode
	mc.code[addrImplA] = plainBytecode
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, addressWord(addrImplA))

	resolver := testResolver(mc, 4)
	_, err := resolver.Resolve(context.Background(), addrProxy, chain.LatestBlockRef())
	require.NoError(t, err)

	require.NotEmpty(t, mc.seenBlocks)
	for _, b := range mc.seenBlocks {
		assert.Equal(t, uint64(18500000), b)
	}
}

func TestResolve_TargetCodeUnavailableIsFatal(t *testing.T) {
	mc := newMockChain(100)
	mc.codeErrs[addrProxy] = errors.New("node error")

	resolver := testResolver(mc, 4)
	_, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	assert.Error(t, err)
}

func TestResolve_RecursionFailureTruncatesChain(t *testing.T) {
	// 递归跳的字节码获取失败只截断链，不影响整体结果
	mc := newMockChain(100)
	mc.code[addrProxy] = plainBytecode
	mc.setStorage(addrProxy, EIP1967ImplementationSlot, addressWord(addrImplA))
	mc.code[addrImplA] = plainBytecode
	// 第一次GetCode（交叉验证）成功，递归解析时失败
	mc.codeErrAfter[addrImplA] = 1

	resolver := testResolver(mc, 4)
	res, err := resolver.Resolve(context.Background(), addrProxy, chain.BlockRef(100))
	require.NoError(t, err)

	assert.Equal(t, models.StandardEIP1967Transparent, res.Standard)
	assert.Equal(t, models.CanonicalAddress(addrImplA), res.ImplementationAddress)
	assert.Len(t, res.Chain, 1)
}
