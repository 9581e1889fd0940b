package models

import (
	"time"
)

// InspectionReport 一次完整检查的汇总报告
//
// 包含代理解析、函数筛选和状态快照三部分结果。
// 快照针对解析出的最终实现合约的ABI在代理地址上执行。
type InspectionReport struct {
	Address     string           `json:"address"`            // 被检查的合约地址
	BlockNumber uint64           `json:"block_number"`       // 锚定区块号
	Resolution  *ProxyResolution `json:"resolution"`         // 代理解析结果
	Selection   *SelectionResult `json:"selection"`          // ABI函数筛选结果
	Snapshot    *StateSnapshot   `json:"snapshot,omitempty"` // 状态快照（无ABI时为空）
	ABIVerified bool             `json:"abi_verified"`       // 是否获取到已验证的ABI
	GeneratedAt time.Time        `json:"generated_at"`       // 报告生成时间
}

// BatchEntry 批量检查中单个地址的结果
//
// 单个地址失败时记录错误信息，不影响同批次其余地址。
type BatchEntry struct {
	Address string            `json:"address"`          // 合约地址
	Report  *InspectionReport `json:"report,omitempty"` // 检查报告（失败时为空）
	Error   string            `json:"error,omitempty"`  // 失败原因
}

// BatchAnalysis 批量检查汇总
//
// 所有地址锚定在同一个区块号上检查，读到的是同一份链上状态。
type BatchAnalysis struct {
	BlockNumber  uint64       `json:"block_number"`  // 公共锚定区块号
	Entries      []BatchEntry `json:"entries"`       // 按请求顺序排列的结果
	SuccessCount int          `json:"success_count"` // 成功地址数
	FailureCount int          `json:"failure_count"` // 失败地址数
	GeneratedAt  time.Time    `json:"generated_at"`
}

// ComparisonReport 同一合约在两个区块间的对比报告
type ComparisonReport struct {
	Address     string        `json:"address"`      // 合约地址
	BlockBefore uint64        `json:"block_before"` // 旧区块号
	BlockAfter  uint64        `json:"block_after"`  // 新区块号
	Diff        *SnapshotDiff `json:"diff"`         // 快照差异
	// 实现地址在两个区块间发生变化时记录（代理升级）
	ImplementationBefore string    `json:"implementation_before,omitempty"`
	ImplementationAfter  string    `json:"implementation_after,omitempty"`
	Upgraded             bool      `json:"upgraded"` // 实现是否被升级
	GeneratedAt          time.Time `json:"generated_at"`
}
