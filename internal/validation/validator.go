package validation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"inspector/internal/chain"
	ierrors "inspector/internal/errors"
)

var selectorRegex = regexp.MustCompile("^0x[0-9a-fA-F]{8}$")

// ParseAddress 校验并解析合约地址输入
//
// 非法地址立即返回输入错误，不会发起任何网络请求。
func ParseAddress(input string) (common.Address, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return common.Address{}, ierrors.ErrInvalidAddress.WithContext("input", input)
	}

	if !strings.HasPrefix(trimmed, "0x") || !common.IsHexAddress(trimmed) {
		return common.Address{}, ierrors.ErrInvalidAddress.WithContext("input", input)
	}

	return common.HexToAddress(trimmed), nil
}

// ParseBlockRef 校验并解析区块引用输入
//
// 接受 "latest"（或空串）和十进制区块号。
func ParseBlockRef(input string) (chain.BlockReference, error) {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" || trimmed == "latest" {
		return chain.LatestBlockRef(), nil
	}

	number, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return chain.BlockReference{}, ierrors.WrapError(
			err, ierrors.ErrorTypeInput, ierrors.SeverityLow,
			"INVALID_BLOCK_REF", "区块引用必须是 latest 或十进制区块号",
		).WithContext("input", input)
	}

	return chain.BlockRef(number), nil
}

// IsValidSelector 校验4字节选择器格式
func IsValidSelector(selector string) bool {
	return selectorRegex.MatchString(selector)
}
