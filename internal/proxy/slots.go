package proxy

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"inspector/internal/chain"
	"inspector/pkg/models"
)

// errEmptyBeaconResult 信标implementation()返回空值
var errEmptyBeaconResult = errors.New("信标implementation()返回空结果")

// SlotEvidence 存储槽探测得到的证据
type SlotEvidence struct {
	Standard       models.ProxyStandard // 命中的标准
	Implementation common.Address       // 槽中解析出的实现地址
	Admin          *common.Address      // 管理员地址（标准定义了admin槽时）
	Beacon         *common.Address      // 信标地址（标准定义了beacon槽时）
	Confidence     models.Confidence    // High=实现有代码；Low=实现无代码（疑似未初始化）
}

// SlotProber 存储槽探测器
type SlotProber struct {
	client chain.Client
	logger *logrus.Entry
}

// NewSlotProber 创建存储槽探测器
func NewSlotProber(client chain.Client, logger *logrus.Logger) *SlotProber {
	return &SlotProber{
		client: client,
		logger: logger.WithField("component", "slot_prober"),
	}
}

// ProbeAll 在锚定区块探测所有已知标准的槽位
//
// 返回标准到证据的映射，可能为空。单个槽的读取失败
// 只意味着该标准证据缺失，不中断其余探测。
func (p *SlotProber) ProbeAll(ctx context.Context, address common.Address, blockNumber uint64) map[models.ProxyStandard]SlotEvidence {
	evidence := make(map[models.ProxyStandard]SlotEvidence)

	for _, entry := range slotStandards {
		ev, ok := p.probeStandard(ctx, address, entry.Standard, entry.Slots, blockNumber)
		if ok {
			evidence[entry.Standard] = ev
		}
	}

	return evidence
}

// probeStandard 探测单个标准的槽位
func (p *SlotProber) probeStandard(ctx context.Context, address common.Address, standard models.ProxyStandard, slots StandardSlots, blockNumber uint64) (SlotEvidence, bool) {
	impl, ok := p.readAddressSlot(ctx, address, slots.Implementation, blockNumber)

	ev := SlotEvidence{Standard: standard}

	if ok {
		ev.Implementation = impl
	} else if slots.Beacon != (common.Hash{}) {
		// 实现槽为空时尝试信标间接寻址：信标槽存着一个
		// 合约地址，对它调用implementation()得到实现地址
		beacon, beaconOK := p.readAddressSlot(ctx, address, slots.Beacon, blockNumber)
		if !beaconOK {
			return SlotEvidence{}, false
		}
		ev.Beacon = &beacon

		beaconImpl, err := p.resolveBeaconImplementation(ctx, beacon, blockNumber)
		if err != nil {
			p.logger.Debugf("信标 %s implementation() 调用失败: %v", beacon.Hex(), err)
			return SlotEvidence{}, false
		}
		ev.Implementation = beaconImpl
	} else {
		return SlotEvidence{}, false
	}

	// 交叉验证：实现地址在同一锚定区块必须有字节码，
	// 指向空代码的实现槽大概率是未初始化的代理
	if p.implementationHasCode(ctx, ev.Implementation, blockNumber) {
		ev.Confidence = models.ConfidenceHigh
	} else {
		ev.Confidence = models.ConfidenceLow
	}

	// admin槽独立读取，失败不影响主证据
	if slots.Admin != (common.Hash{}) {
		if admin, adminOK := p.readAddressSlot(ctx, address, slots.Admin, blockNumber); adminOK {
			ev.Admin = &admin
		}
	}

	return ev, true
}

// readAddressSlot 读取槽位并解释为右对齐的20字节地址
//
// 全零槽值表示"槽未设置"而不是零地址。读取错误经客户端
// 重试后仍失败时按证据缺失处理。
func (p *SlotProber) readAddressSlot(ctx context.Context, address common.Address, slot common.Hash, blockNumber uint64) (common.Address, bool) {
	value, err := p.client.GetStorageAt(ctx, address, slot, blockNumber)
	if err != nil {
		p.logger.Debugf("读取槽 %s 失败: %v", slot.Hex(), err)
		return common.Address{}, false
	}

	if isZeroWord(value) {
		return common.Address{}, false
	}

	return common.BytesToAddress(value), true
}

// resolveBeaconImplementation 通过信标合约查询实现地址
func (p *SlotProber) resolveBeaconImplementation(ctx context.Context, beacon common.Address, blockNumber uint64) (common.Address, error) {
	result, err := p.client.Call(ctx, beacon, beaconImplementationCall, blockNumber)
	if err != nil {
		return common.Address{}, err
	}
	if len(result) < 32 || isZeroWord(result[:32]) {
		return common.Address{}, errEmptyBeaconResult
	}
	return common.BytesToAddress(result[:32]), nil
}

// implementationHasCode 检查地址在锚定区块是否有字节码
func (p *SlotProber) implementationHasCode(ctx context.Context, address common.Address, blockNumber uint64) bool {
	code, err := p.client.GetCode(ctx, address, blockNumber)
	if err != nil {
		p.logger.Debugf("校验实现地址 %s 字节码失败: %v", address.Hex(), err)
		return false
	}
	return len(code) > 0
}

// isZeroWord 判断字节串是否全零
func isZeroWord(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
