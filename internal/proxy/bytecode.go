package proxy

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"

	"inspector/pkg/models"
)

// Candidate 字节码模式匹配产生的候选分类
type Candidate struct {
	Standard       models.ProxyStandard // 候选标准
	Implementation *common.Address      // 从字节码直接提取的实现地址（仅EIP-1167）
	Confidence     models.Confidence    // 候选置信度
	Specificity    int                  // 匹配签名的字节长度，用于排序
}

// MatchBytecode 对部署字节码做已知代理模式分类
//
// 候选按签名特异性降序排列。无任何匹配时返回空切片，
// 调用方将其视为"非代理"的有效结论而不是错误。
func MatchBytecode(bytecode []byte) []Candidate {
	if len(bytecode) == 0 {
		return nil
	}

	var candidates []Candidate

	// EIP-1167精确模板匹配，实现地址内嵌在字节码中
	if impl, ok := parseMinimalProxy(bytecode); ok {
		candidates = append(candidates, Candidate{
			Standard:       models.StandardMinimalProxyClone,
			Implementation: &impl,
			Confidence:     models.ConfidenceHigh,
			Specificity:    len(eip1167Prefix) + len(eip1167Suffix) + 20,
		})
	}

	// 通用DELEGATECALL启发式：说明合约会转发调用，但无法
	// 从字节码得知目标，具体标准留给存储槽探测判断
	if len(candidates) == 0 && hasDelegatecall(bytecode) {
		candidates = append(candidates, Candidate{
			Standard:    models.StandardUnknown,
			Confidence:  models.ConfidenceLow,
			Specificity: 1,
		})
	}

	return candidates
}

// parseMinimalProxy 解析EIP-1167最小代理模板并提取实现地址
func parseMinimalProxy(bytecode []byte) (common.Address, bool) {
	if !bytes.HasPrefix(bytecode, eip1167Prefix) {
		return common.Address{}, false
	}

	if len(bytecode) < len(eip1167Prefix)+1 {
		return common.Address{}, false
	}

	// 前缀后是PUSHn操作码，n决定内嵌地址的字节数；
	// 标准模板为PUSH20，前导零被优化的变体会更短
	pushOp := bytecode[len(eip1167Prefix)]
	addressLength := int(pushOp) - 0x5f
	if addressLength < 1 || addressLength > 20 {
		return common.Address{}, false
	}

	addrStart := len(eip1167Prefix) + 1
	addrEnd := addrStart + addressLength
	// 地址后固定11字节中段，再接4字节后缀
	suffixStart := addrEnd + 11
	if len(bytecode) < suffixStart+len(eip1167Suffix) {
		return common.Address{}, false
	}

	if !bytes.Equal(bytecode[suffixStart:suffixStart+len(eip1167Suffix)], eip1167Suffix) {
		return common.Address{}, false
	}

	impl := common.BytesToAddress(bytecode[addrStart:addrEnd])
	if impl == (common.Address{}) {
		return common.Address{}, false
	}

	return impl, true
}

// hasDelegatecall 扫描字节码中可达的DELEGATECALL操作码
//
// 按操作码宽度步进，跳过PUSH指令的立即数，避免把
// 数据字节误判为操作码。
func hasDelegatecall(bytecode []byte) bool {
	const opDelegatecall = 0xf4

	for i := 0; i < len(bytecode); i++ {
		op := bytecode[i]
		if op == opDelegatecall {
			return true
		}
		// PUSH1(0x60)到PUSH32(0x7f)携带1-32字节立即数
		if op >= 0x60 && op <= 0x7f {
			i += int(op) - 0x5f
		}
	}
	return false
}
