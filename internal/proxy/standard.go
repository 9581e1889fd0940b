package proxy

import (
	"github.com/ethereum/go-ethereum/common"

	"inspector/pkg/models"
)

// 各代理标准定义的固定存储槽
//
// EIP-1967: bytes32(uint256(keccak256("eip1967.proxy.implementation")) - 1)
// EIP-1822: keccak256("PROXIABLE")
// OpenZeppelin旧版: keccak256("org.zeppelinos.proxy.implementation")
var (
	EIP1967ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	EIP1967AdminSlot          = common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103")
	EIP1967BeaconSlot         = common.HexToHash("0xa3f0ad74e5423aebfd80d3ef4346578335a9a72aeaee59ff6cb3582b35133d50")
	EIP1822LogicSlot          = common.HexToHash("0xc5f16f0fcc639fa48a6947836d9850f504798523bf8c9a3a87d5876cf622bcf7")
	OpenZeppelinLegacySlot    = common.HexToHash("0x7050c9e0f4ca769c69bd3a8ef740bc37934f8e2c036e5a723fd8ee048ed3f8c3")
)

// StandardSlots 某个标准定义的槽位集合
type StandardSlots struct {
	Implementation common.Hash // 实现地址槽
	Admin          common.Hash // 管理员地址槽（可选，零值表示无）
	Beacon         common.Hash // 信标地址槽（可选，零值表示无）
}

// slotStandards 基于存储槽的标准及其槽位定义
//
// 新增一个标准只需在这里补一项，探测与归并逻辑不需要改动。
// 顺序即多个槽同时命中时的优先顺序。
var slotStandards = []struct {
	Standard models.ProxyStandard
	Slots    StandardSlots
}{
	{
		Standard: models.StandardEIP1967Transparent,
		Slots: StandardSlots{
			Implementation: EIP1967ImplementationSlot,
			Admin:          EIP1967AdminSlot,
			Beacon:         EIP1967BeaconSlot,
		},
	},
	{
		Standard: models.StandardEIP1822UUPS,
		Slots: StandardSlots{
			Implementation: EIP1822LogicSlot,
		},
	},
	{
		Standard: models.StandardOpenZeppelinLegacy,
		Slots: StandardSlots{
			Implementation: OpenZeppelinLegacySlot,
		},
	},
}

// EIP-1167最小代理字节码模板
//
// 完整形式: 363d3d373d3d3d363d73 <20字节实现地址> 5af43d82803e903d91602b57fd5bf3
// PUSH操作码可能因地址前导零被优化而变短，解析时按PUSHn宽度提取。
var (
	eip1167Prefix = common.FromHex("0x363d3d373d3d3d363d")
	eip1167Suffix = common.FromHex("0x57fd5bf3")
)

// beaconImplementationCall 信标合约implementation()的调用数据
var beaconImplementationCall = common.FromHex("0x5c60da1b")
