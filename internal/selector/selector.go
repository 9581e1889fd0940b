package selector

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"inspector/pkg/models"
)

// abiEntry ABI定义中的一个条目
type abiEntry struct {
	Type            string                   `json:"type"`
	Name            string                   `json:"name"`
	StateMutability string                   `json:"stateMutability"`
	Constant        bool                     `json:"constant"` // 旧版ABI的view标记
	Inputs          []abi.ArgumentMarshaling `json:"inputs"`
	Outputs         []abi.ArgumentMarshaling `json:"outputs"`
}

// CallPlan 一个可执行的只读调用计划
type CallPlan struct {
	Descriptor models.ABIFunctionDescriptor // 函数描述
	CallData   []byte                       // 编码好的调用数据（选择器+参数）
	Outputs    abi.Arguments                // 输出参数类型，用于解码返回值
}

// Selection 筛选结果：调用计划加被跳过的函数
type Selection struct {
	Plans   []CallPlan               // 按ABI声明顺序
	Skipped []models.SkippedFunction // 被跳过的函数及原因
}

// Descriptors 提取全部函数描述
func (s *Selection) Descriptors() []models.ABIFunctionDescriptor {
	descriptors := make([]models.ABIFunctionDescriptor, 0, len(s.Plans))
	for _, plan := range s.Plans {
		descriptors = append(descriptors, plan.Descriptor)
	}
	return descriptors
}

// Result 转换为可序列化的筛选结果
func (s *Selection) Result() *models.SelectionResult {
	return &models.SelectionResult{
		Eligible: s.Descriptors(),
		Skipped:  s.Skipped,
	}
}

// SelectFunctions 从ABI中筛选可自动批量调用的只读函数
//
// 只保留view/pure函数；带参数的函数尝试合成零值默认参数，
// 无法合成时记录为跳过而不是静默丢弃。按选择器去重，
// 保持ABI声明顺序以保证报告可复现。
//
// 空ABI（合约未验证等）返回空筛选结果，不视为错误。
func SelectFunctions(abiJSON []byte) (*Selection, error) {
	selection := &Selection{}

	if len(abiJSON) == 0 {
		return selection, nil
	}

	var entries []abiEntry
	if err := json.Unmarshal(abiJSON, &entries); err != nil {
		return nil, fmt.Errorf("解析ABI失败: %w", err)
	}

	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.Type != "function" {
			continue
		}
		if !isReadOnly(entry) {
			continue
		}
		// 下划线开头的函数按私有约定跳过
		if strings.HasPrefix(entry.Name, "_") {
			continue
		}

		plan, skip, err := buildCallPlan(entry)
		if err != nil {
			// 单个条目的类型解析失败不应废弃整个ABI
			selection.Skipped = append(selection.Skipped, models.SkippedFunction{
				Name:   entry.Name,
				Reason: fmt.Sprintf("类型解析失败: %v", err),
			})
			continue
		}
		if skip != nil {
			selection.Skipped = append(selection.Skipped, *skip)
			continue
		}

		// ABI冗余条目按选择器去重
		if seen[plan.Descriptor.Selector] {
			continue
		}
		seen[plan.Descriptor.Selector] = true

		selection.Plans = append(selection.Plans, *plan)
	}

	return selection, nil
}

// isReadOnly 判断函数是否为只读
func isReadOnly(entry abiEntry) bool {
	switch entry.StateMutability {
	case "view", "pure":
		return true
	case "":
		// 旧版ABI没有stateMutability字段，以constant标记为准
		return entry.Constant
	default:
		return false
	}
}

// buildCallPlan 为单个函数构造调用计划
func buildCallPlan(entry abiEntry) (*CallPlan, *models.SkippedFunction, error) {
	inputs, err := parseArguments(entry.Inputs)
	if err != nil {
		return nil, nil, err
	}
	outputs, err := parseArguments(entry.Outputs)
	if err != nil {
		return nil, nil, err
	}

	signature := canonicalSignature(entry.Name, inputs)
	selectorBytes := crypto.Keccak256([]byte(signature))[:4]

	descriptor := models.ABIFunctionDescriptor{
		Name:            entry.Name,
		Selector:        hexutil.Encode(selectorBytes),
		Signature:       signature,
		InputTypes:      typeStrings(inputs),
		OutputTypes:     typeStrings(outputs),
		OutputNames:     argumentNames(outputs),
		StateMutability: stateMutability(entry),
	}

	callData := selectorBytes

	if len(inputs) > 0 {
		args, ok := synthesizeDefaults(inputs)
		if !ok {
			return nil, &models.SkippedFunction{
				Name:      entry.Name,
				Signature: signature,
				Reason:    "需要调用方提供参数",
			}, nil
		}

		packed, err := inputs.Pack(args...)
		if err != nil {
			return nil, &models.SkippedFunction{
				Name:      entry.Name,
				Signature: signature,
				Reason:    fmt.Sprintf("默认参数编码失败: %v", err),
			}, nil
		}
		callData = append(callData, packed...)
		descriptor.SyntheticArgs = true
	}

	return &CallPlan{
		Descriptor: descriptor,
		CallData:   callData,
		Outputs:    outputs,
	}, nil, nil
}

// parseArguments 将ABI参数定义解析为类型化参数列表
func parseArguments(marshalings []abi.ArgumentMarshaling) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(marshalings))
	for _, m := range marshalings {
		typ, err := abi.NewType(m.Type, m.InternalType, m.Components)
		if err != nil {
			return nil, fmt.Errorf("参数 %s 类型 %s 无效: %w", m.Name, m.Type, err)
		}
		args = append(args, abi.Argument{Name: m.Name, Type: typ})
	}
	return args, nil
}

// canonicalSignature 构造规范函数签名
func canonicalSignature(name string, inputs abi.Arguments) string {
	types := make([]string, 0, len(inputs))
	for _, arg := range inputs {
		types = append(types, arg.Type.String())
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(types, ","))
}

// synthesizeDefaults 为输入参数合成零值默认参数
//
// 所有参数都能合成时返回参数列表，否则返回false表示
// 该函数需要真实参数、无法自动调用。
func synthesizeDefaults(inputs abi.Arguments) ([]interface{}, bool) {
	args := make([]interface{}, 0, len(inputs))
	for _, arg := range inputs {
		if !synthesizable(arg.Type) {
			return nil, false
		}
		args = append(args, zeroValue(arg.Type))
	}
	return args, true
}

// zeroValue 构造类型的零值
//
// 大整数在go-ethereum中表示为*big.Int指针，必须分配实例
// 而不能用nil零值参与编码。
func zeroValue(typ abi.Type) interface{} {
	goType := typ.GetType()
	if goType.Kind() == reflect.Ptr {
		return reflect.New(goType.Elem()).Interface()
	}
	return reflect.Zero(goType).Interface()
}

// synthesizable 判断类型是否有合理的零值默认参数
func synthesizable(typ abi.Type) bool {
	switch typ.T {
	case abi.AddressTy, abi.UintTy, abi.IntTy, abi.BoolTy,
		abi.BytesTy, abi.FixedBytesTy, abi.StringTy:
		return true
	case abi.SliceTy:
		// 空动态数组总是可编码的
		return true
	default:
		// 固定长度数组和元组不合成，避免构造无意义的调用
		return false
	}
}

// typeStrings 提取参数类型的字符串表示
func typeStrings(args abi.Arguments) []string {
	types := make([]string, 0, len(args))
	for _, arg := range args {
		types = append(types, arg.Type.String())
	}
	return types
}

// argumentNames 提取参数名
func argumentNames(args abi.Arguments) []string {
	names := make([]string, 0, len(args))
	for _, arg := range args {
		names = append(names, arg.Name)
	}
	return names
}

// stateMutability 归一化状态可变性标记
func stateMutability(entry abiEntry) string {
	if entry.StateMutability != "" {
		return entry.StateMutability
	}
	return "view"
}
