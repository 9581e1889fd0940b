package models

// ABIFunctionDescriptor 可调用只读函数描述
type ABIFunctionDescriptor struct {
	Name            string   `json:"name"`             // 函数名
	Selector        string   `json:"selector"`         // 4字节选择器（0x前缀十六进制）
	Signature       string   `json:"signature"`        // 规范签名，如 balanceOf(address)
	InputTypes      []string `json:"input_types"`      // 输入参数类型
	OutputTypes     []string `json:"output_types"`     // 输出参数类型
	OutputNames     []string `json:"output_names"`     // 输出参数名（可为空串）
	StateMutability string   `json:"state_mutability"` // view 或 pure
	SyntheticArgs   bool     `json:"synthetic_args"`   // 是否使用合成的默认参数调用
}

// SkippedFunction 被跳过的函数及原因
type SkippedFunction struct {
	Name      string `json:"name"`      // 函数名
	Signature string `json:"signature"` // 规范签名
	Reason    string `json:"reason"`    // 跳过原因
}

// SelectionResult ABI函数筛选结果
type SelectionResult struct {
	Eligible []ABIFunctionDescriptor `json:"eligible"` // 可自动批量调用的函数（按ABI声明顺序）
	Skipped  []SkippedFunction       `json:"skipped"`  // 需要参数等原因被跳过的函数
}
