package models

import (
	"time"
)

// CallOutcome 单次只读调用的结果
type CallOutcome struct {
	Function  string      `json:"function"`         // 函数名
	Signature string      `json:"signature"`        // 规范签名
	Success   bool        `json:"success"`          // 是否成功
	Value     interface{} `json:"value,omitempty"`  // 解码后的返回值（成功时）
	Reason    string      `json:"reason,omitempty"` // 失败原因（失败时）
}

// StateSnapshot 合约状态快照
//
// 快照是不可变值对象，按 (地址, 区块) 缓存是安全的。
// Outcomes 对每个可调用函数恰好包含一条记录，失败的调用
// 以 Success=false 记录而不是被丢弃。
type StateSnapshot struct {
	ContractAddress string                 `json:"contract_address"` // 合约地址
	BlockNumber     uint64                 `json:"block_number"`     // 锚定区块号
	CapturedAt      time.Time              `json:"captured_at"`      // 捕获时间
	Outcomes        map[string]CallOutcome `json:"outcomes"`         // 选择器 -> 调用结果
	SuccessCount    int                    `json:"success_count"`    // 成功调用数
	FailureCount    int                    `json:"failure_count"`    // 失败调用数
}

// Outcome 按选择器查询调用结果
func (s *StateSnapshot) Outcome(selector string) (CallOutcome, bool) {
	out, ok := s.Outcomes[selector]
	return out, ok
}
