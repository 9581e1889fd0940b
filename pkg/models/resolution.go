package models

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ProxyStandard 代理标准类型
type ProxyStandard string

const (
	StandardEIP1967Transparent ProxyStandard = "eip1967_transparent" // EIP-1967透明代理
	StandardEIP1822UUPS        ProxyStandard = "eip1822_uups"        // EIP-1822 UUPS代理
	StandardOpenZeppelinLegacy ProxyStandard = "openzeppelin_legacy" // OpenZeppelin旧版代理
	StandardMinimalProxyClone  ProxyStandard = "eip1167_minimal"     // EIP-1167最小代理
	StandardUnknown            ProxyStandard = "unknown"             // 未知/非代理
)

// IsProxy 是否为已识别的代理标准
func (s ProxyStandard) IsProxy() bool {
	return s != StandardUnknown && s != ""
}

// Confidence 解析置信度
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// confidenceRank 置信度排序值
var confidenceRank = map[Confidence]int{
	ConfidenceLow:    1,
	ConfidenceMedium: 2,
	ConfidenceHigh:   3,
}

// AtLeast 置信度是否不低于other
func (c Confidence) AtLeast(other Confidence) bool {
	return confidenceRank[c] >= confidenceRank[other]
}

// ProxyResolution 代理解析结果
type ProxyResolution struct {
	Address               string          `json:"address"`                          // 目标合约地址
	Standard              ProxyStandard   `json:"standard"`                         // 识别出的代理标准
	ImplementationAddress string          `json:"implementation_address,omitempty"` // 实现合约地址
	AdminAddress          string          `json:"admin_address,omitempty"`          // 管理员地址
	BeaconAddress         string          `json:"beacon_address,omitempty"`         // 信标地址
	Confidence            Confidence      `json:"confidence"`                       // 置信度
	ResolvedAtBlock       uint64          `json:"resolved_at_block"`                // 解析时锚定的区块号
	Chain                 []ResolutionHop `json:"chain,omitempty"`                  // 完整解析链（代理→代理→实现）
	ResolvedAt            time.Time       `json:"resolved_at"`                      // 解析时间
}

// ResolutionHop 解析链中的一跳
type ResolutionHop struct {
	Address        string        `json:"address"`                  // 本跳合约地址
	Standard       ProxyStandard `json:"standard"`                 // 本跳代理标准
	Implementation string        `json:"implementation,omitempty"` // 本跳指向的实现地址
	Confidence     Confidence    `json:"confidence"`               // 本跳置信度
}

// FinalImplementation 解析链末端的可执行合约地址
func (r *ProxyResolution) FinalImplementation() string {
	if len(r.Chain) == 0 {
		return r.Address
	}
	last := r.Chain[len(r.Chain)-1]
	if last.Implementation != "" {
		return last.Implementation
	}
	return last.Address
}

// CanonicalAddress 地址的规范小写文本形式
func CanonicalAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// SameAddress 地址文本的大小写不敏感比较
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
