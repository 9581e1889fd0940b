package state

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// formatValue 把解码后的ABI值转换为可序列化、可比较的形式
//
// 地址用EIP-55校验和格式，大整数用十进制字符串（避免JSON
// 精度丢失），字节序列用0x前缀十六进制。数组和元组递归处理。
func formatValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case common.Address:
		return v.Hex()
	case *common.Address:
		if v == nil {
			return nil
		}
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case *big.Int:
		if v == nil {
			return nil
		}
		return v.String()
	case []byte:
		return hexutil.Encode(v)
	case bool, string:
		return v
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		return v
	}

	return formatReflected(reflect.ValueOf(value))
}

// formatReflected 处理泛型解码产生的数组、切片和元组结构体
func formatReflected(v reflect.Value) interface{} {
	switch v.Kind() {
	case reflect.Array:
		// 定长字节数组（bytes32等）编码为十六进制
		if v.Type().Elem().Kind() == reflect.Uint8 {
			data := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(data), v)
			return hexutil.Encode(data)
		}
		return formatSequence(v)
	case reflect.Slice:
		return formatSequence(v)
	case reflect.Struct:
		// 元组解码为匿名结构体，按字段名展开
		fields := make(map[string]interface{}, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			fields[v.Type().Field(i).Name] = formatValue(v.Field(i).Interface())
		}
		return fields
	case reflect.Ptr:
		if v.IsNil() {
			return nil
		}
		return formatValue(v.Elem().Interface())
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// formatSequence 递归格式化数组或切片元素
func formatSequence(v reflect.Value) interface{} {
	elements := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		elements[i] = formatValue(v.Index(i).Interface())
	}
	return elements
}
