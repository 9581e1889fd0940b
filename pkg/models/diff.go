package models

// ValueChange 某个选择器在两个快照间的前后值
type ValueChange struct {
	Function string       `json:"function"`         // 函数名
	Before   *CallOutcome `json:"before,omitempty"` // 旧快照中的结果
	After    *CallOutcome `json:"after,omitempty"`  // 新快照中的结果
}

// SnapshotDiff 两个快照的功能性比较结果
type SnapshotDiff struct {
	AddressBefore  string                 `json:"address_before"`  // 旧快照合约地址
	AddressAfter   string                 `json:"address_after"`   // 新快照合约地址
	BlockBefore    uint64                 `json:"block_before"`    // 旧快照区块号
	BlockAfter     uint64                 `json:"block_after"`     // 新快照区块号
	Added          []string               `json:"added"`           // 仅新快照中存在的选择器
	Removed        []string               `json:"removed"`         // 仅旧快照中存在的选择器
	Changed        map[string]ValueChange `json:"changed"`         // 值发生变化的选择器
	UnchangedCount int                    `json:"unchanged_count"` // 未变化选择器数量
}

// HasChanges 是否存在任何差异
func (d *SnapshotDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Changed) > 0
}
