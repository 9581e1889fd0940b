package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"inspector/pkg/models"
)

// snapshotPreviewLimit 文本报告中展示的状态条目上限
const snapshotPreviewLimit = 5

// RenderReport 渲染检查报告为可读文本
func RenderReport(report *models.InspectionReport) string {
	var b strings.Builder

	b.WriteString("=== 合约检查报告 ===\n\n")
	fmt.Fprintf(&b, "合约地址: %s\n", report.Address)
	fmt.Fprintf(&b, "锚定区块: %d\n", report.BlockNumber)
	fmt.Fprintf(&b, "生成时间: %s\n\n", report.GeneratedAt.Format(time.RFC3339))

	if report.Resolution != nil {
		b.WriteString("=== 代理解析 ===\n")
		fmt.Fprintf(&b, "代理标准: %s\n", report.Resolution.Standard)
		fmt.Fprintf(&b, "置信度: %s\n", report.Resolution.Confidence)
		if report.Resolution.ImplementationAddress != "" {
			fmt.Fprintf(&b, "实现地址: %s\n", report.Resolution.ImplementationAddress)
		}
		if report.Resolution.AdminAddress != "" {
			fmt.Fprintf(&b, "管理员地址: %s\n", report.Resolution.AdminAddress)
		}
		if report.Resolution.BeaconAddress != "" {
			fmt.Fprintf(&b, "信标地址: %s\n", report.Resolution.BeaconAddress)
		}
		if len(report.Resolution.Chain) > 0 {
			fmt.Fprintf(&b, "解析链深度: %d\n", len(report.Resolution.Chain))
		}
		b.WriteString("\n")
	}

	b.WriteString("=== 基本信息 ===\n")
	if report.ABIVerified {
		b.WriteString("验证状态: 已验证\n")
	} else {
		b.WriteString("验证状态: 未验证\n")
	}
	if report.Selection != nil {
		fmt.Fprintf(&b, "可调用函数: %d\n", len(report.Selection.Eligible))
		fmt.Fprintf(&b, "跳过函数: %d\n", len(report.Selection.Skipped))
	}
	b.WriteString("\n")

	if report.Snapshot != nil {
		b.WriteString("=== 状态快照 ===\n")
		fmt.Fprintf(&b, "快照区块: %d\n", report.Snapshot.BlockNumber)
		fmt.Fprintf(&b, "成功调用: %d\n", report.Snapshot.SuccessCount)
		fmt.Fprintf(&b, "失败调用: %d\n", report.Snapshot.FailureCount)

		if len(report.Snapshot.Outcomes) > 0 {
			fmt.Fprintf(&b, "状态数据 (前%d个):\n", snapshotPreviewLimit)
			for i, selector := range sortedSelectors(report.Snapshot.Outcomes) {
				if i >= snapshotPreviewLimit {
					break
				}
				outcome := report.Snapshot.Outcomes[selector]
				if outcome.Success {
					fmt.Fprintf(&b, "  %s: %v\n", outcome.Function, outcome.Value)
				} else {
					fmt.Fprintf(&b, "  %s: 调用失败 (%s)\n", outcome.Function, outcome.Reason)
				}
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RenderComparison 渲染区块间对比报告为可读文本
func RenderComparison(comparison *models.ComparisonReport) string {
	var b strings.Builder

	b.WriteString("=== 合约状态对比报告 ===\n\n")
	fmt.Fprintf(&b, "合约地址: %s\n", comparison.Address)
	fmt.Fprintf(&b, "对比区块: %d -> %d\n", comparison.BlockBefore, comparison.BlockAfter)
	fmt.Fprintf(&b, "生成时间: %s\n\n", comparison.GeneratedAt.Format(time.RFC3339))

	if comparison.Upgraded {
		b.WriteString("=== 实现升级 ===\n")
		fmt.Fprintf(&b, "旧实现: %s\n", comparison.ImplementationBefore)
		fmt.Fprintf(&b, "新实现: %s\n\n", comparison.ImplementationAfter)
	}

	if comparison.Diff == nil {
		b.WriteString("无可对比的状态快照\n")
		return b.String()
	}

	diff := comparison.Diff
	b.WriteString("=== 状态变化 ===\n")
	fmt.Fprintf(&b, "变更: %d, 新增: %d, 移除: %d, 未变: %d\n",
		len(diff.Changed), len(diff.Added), len(diff.Removed), diff.UnchangedCount)

	for _, selector := range sortedChangeSelectors(diff.Changed) {
		change := diff.Changed[selector]
		fmt.Fprintf(&b, "  %s: %s -> %s\n",
			change.Function, outcomeText(change.Before), outcomeText(change.After))
	}
	for _, selector := range diff.Added {
		fmt.Fprintf(&b, "  新增 %s\n", selector)
	}
	for _, selector := range diff.Removed {
		fmt.Fprintf(&b, "  移除 %s\n", selector)
	}

	return b.String()
}

// RenderBatch 渲染批量检查汇总为可读文本
func RenderBatch(batch *models.BatchAnalysis) string {
	var b strings.Builder

	b.WriteString("=== 批量检查报告 ===\n\n")
	fmt.Fprintf(&b, "锚定区块: %d\n", batch.BlockNumber)
	fmt.Fprintf(&b, "成功: %d, 失败: %d\n", batch.SuccessCount, batch.FailureCount)
	fmt.Fprintf(&b, "生成时间: %s\n\n", batch.GeneratedAt.Format(time.RFC3339))

	for _, entry := range batch.Entries {
		if entry.Error != "" {
			fmt.Fprintf(&b, "%s: 检查失败 (%s)\n", entry.Address, entry.Error)
			continue
		}
		report := entry.Report
		fmt.Fprintf(&b, "%s: 标准=%s", entry.Address, report.Resolution.Standard)
		if report.Snapshot != nil {
			fmt.Fprintf(&b, ", 成功调用=%d, 失败调用=%d",
				report.Snapshot.SuccessCount, report.Snapshot.FailureCount)
		} else {
			b.WriteString(", 无快照")
		}
		b.WriteString("\n")
	}

	return b.String()
}

// outcomeText 单个调用结果的简短文本
func outcomeText(outcome *models.CallOutcome) string {
	if outcome == nil {
		return "无"
	}
	if !outcome.Success {
		return fmt.Sprintf("失败(%s)", outcome.Reason)
	}
	return fmt.Sprintf("%v", outcome.Value)
}

// sortedSelectors 返回按选择器排序的键，保证文本输出稳定
func sortedSelectors(outcomes map[string]models.CallOutcome) []string {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedChangeSelectors(changes map[string]models.ValueChange) []string {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
