package chain

import (
	"context"

	ierrors "inspector/internal/errors"
)

// BlockReference 区块引用：具体区块号或latest
//
// latest只在操作开始时解析一次，之后整个操作内使用同一个
// 锚定的区块号，保证多步读取看到的是同一份链上状态。
type BlockReference struct {
	latest bool
	number uint64
}

// LatestBlockRef 指向最新区块的引用
func LatestBlockRef() BlockReference {
	return BlockReference{latest: true}
}

// BlockRef 指向具体区块号的引用
func BlockRef(number uint64) BlockReference {
	return BlockReference{number: number}
}

// IsLatest 是否为latest引用
func (r BlockReference) IsLatest() bool {
	return r.latest
}

// Number 返回引用的具体区块号，latest引用返回false
func (r BlockReference) Number() (uint64, bool) {
	if r.latest {
		return 0, false
	}
	return r.number, true
}

// Pin 将区块引用解析为锚定的区块号
//
// 指定的区块号尚未产出时立即返回输入错误，不重试。
func (r BlockReference) Pin(ctx context.Context, client Client) (uint64, error) {
	head, err := client.LatestBlock(ctx)
	if err != nil {
		return 0, ierrors.WrapError(err, ierrors.ErrorTypeNetwork, ierrors.SeverityHigh,
			"LATEST_BLOCK_FAILED", "获取最新区块号失败")
	}

	if r.latest {
		return head, nil
	}

	if r.number > head {
		return 0, ierrors.NewInspectorError(ierrors.ErrorTypeInput, ierrors.SeverityMedium,
			"BLOCK_NOT_MINED", "目标区块尚未产出").WithBlockNumber(r.number)
	}

	return r.number, nil
}
