package state

import (
	"encoding/json"
	"sort"

	"inspector/pkg/models"
)

// Diff 比较两个状态快照
//
// 按选择器对齐：仅一侧存在的记入Added/Removed，两侧都存在
// 但结果不同的记入Changed（成功与失败之间的转换也算变化）。
// 结果与快照捕获顺序无关，选择器列表排序后输出以保证确定性。
func Diff(before, after *models.StateSnapshot) *models.SnapshotDiff {
	diff := &models.SnapshotDiff{
		AddressBefore: before.ContractAddress,
		AddressAfter:  after.ContractAddress,
		BlockBefore:   before.BlockNumber,
		BlockAfter:    after.BlockNumber,
		Added:         []string{},
		Removed:       []string{},
		Changed:       make(map[string]models.ValueChange),
	}

	for sel, beforeOutcome := range before.Outcomes {
		afterOutcome, ok := after.Outcomes[sel]
		if !ok {
			diff.Removed = append(diff.Removed, sel)
			continue
		}
		if outcomesEqual(beforeOutcome, afterOutcome) {
			diff.UnchangedCount++
			continue
		}
		b, a := beforeOutcome, afterOutcome
		diff.Changed[sel] = models.ValueChange{
			Function: afterOutcome.Function,
			Before:   &b,
			After:    &a,
		}
	}

	for sel := range after.Outcomes {
		if _, ok := before.Outcomes[sel]; !ok {
			diff.Added = append(diff.Added, sel)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)

	return diff
}

// outcomesEqual 判断两次调用结果是否等价
func outcomesEqual(a, b models.CallOutcome) bool {
	if a.Success != b.Success {
		return false
	}
	if !a.Success {
		return a.Reason == b.Reason
	}
	return valuesEqual(a.Value, b.Value)
}

// valuesEqual 比较格式化后的返回值
//
// 经JSON序列化后比较，保证内存中的快照和从文件载入的
// 快照（数值类型会退化）比较结果一致。
func valuesEqual(a, b interface{}) bool {
	aBytes, aErr := json.Marshal(a)
	bBytes, bErr := json.Marshal(b)
	if aErr != nil || bErr != nil {
		return false
	}
	return string(aBytes) == string(bBytes)
}
