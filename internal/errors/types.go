package errors

import (
	"fmt"
	"time"
)

// ErrorType 错误类型
type ErrorType int

const (
	// 网络相关错误
	ErrorTypeNetwork ErrorType = iota
	ErrorTypeConnection
	ErrorTypeTimeout
	ErrorTypeRateLimit

	// 链上调用相关错误
	ErrorTypeRevert
	ErrorTypeDecode
	ErrorTypeResolution

	// 输入相关错误
	ErrorTypeInput
	ErrorTypeValidation

	// 系统相关错误
	ErrorTypeSystem
	ErrorTypeConfig
	ErrorTypeCache

	// 外部服务错误
	ErrorTypeExternalAPI
	ErrorTypeEtherscan
	ErrorTypeKafka
)

// ErrorSeverity 错误严重级别
type ErrorSeverity int

const (
	SeverityLow ErrorSeverity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// InspectorError 自定义错误类型
type InspectorError struct {
	Type        ErrorType              `json:"type"`
	Severity    ErrorSeverity          `json:"severity"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Cause       error                  `json:"cause,omitempty"`
	Retryable   bool                   `json:"retryable"`
	Component   string                 `json:"component"`
	Address     *string                `json:"address,omitempty"`
	BlockNumber *uint64                `json:"block_number,omitempty"`
}

// Error 实现error接口
func (e *InspectorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *InspectorError) Unwrap() error {
	return e.Cause
}

// IsRetryable 判断是否可重试
func (e *InspectorError) IsRetryable() bool {
	return e.Retryable
}

// clone 复制错误实例，Context做深拷贝
//
// 预定义的哨兵错误会被多个请求并发使用，构造器必须在副本上
// 追加信息，不能修改接收者本身。
func (e *InspectorError) clone() *InspectorError {
	copied := *e
	if e.Context != nil {
		copied.Context = make(map[string]interface{}, len(e.Context)+1)
		for k, v := range e.Context {
			copied.Context[k] = v
		}
	}
	return &copied
}

// WithContext 在错误副本上添加上下文信息
func (e *InspectorError) WithContext(key string, value interface{}) *InspectorError {
	copied := e.clone()
	if copied.Context == nil {
		copied.Context = make(map[string]interface{})
	}
	copied.Context[key] = value
	return copied
}

// WithAddress 在错误副本上添加合约地址
func (e *InspectorError) WithAddress(address string) *InspectorError {
	copied := e.clone()
	copied.Address = &address
	return copied
}

// WithBlockNumber 在错误副本上添加区块号
func (e *InspectorError) WithBlockNumber(blockNumber uint64) *InspectorError {
	copied := e.clone()
	copied.BlockNumber = &blockNumber
	return copied
}

// NewInspectorError 创建新的错误
func NewInspectorError(errorType ErrorType, severity ErrorSeverity, code, message string) *InspectorError {
	return &InspectorError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(errorType),
	}
}

// WrapError 包装现有错误
func WrapError(err error, errorType ErrorType, severity ErrorSeverity, code, message string) *InspectorError {
	return &InspectorError{
		Type:      errorType,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Retryable: determineRetryable(errorType),
	}
}

// determineRetryable 根据错误类型判断是否可重试
//
// revert和解码错误对单次调用是终态，输入错误需要调用方修正，
// 两者都不重试；只有瞬时性的网络类错误才允许退避重试。
func determineRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeConnection, ErrorTypeTimeout:
		return true
	case ErrorTypeRateLimit:
		return true
	case ErrorTypeExternalAPI, ErrorTypeEtherscan:
		return true
	case ErrorTypeKafka:
		return true
	default:
		return false
	}
}

// 预定义错误
var (
	// 网络错误
	ErrNetworkTimeout = NewInspectorError(
		ErrorTypeTimeout,
		SeverityMedium,
		"NETWORK_TIMEOUT",
		"网络请求超时",
	)

	ErrConnectionFailed = NewInspectorError(
		ErrorTypeConnection,
		SeverityHigh,
		"CONNECTION_FAILED",
		"连接失败",
	)

	ErrRateLimitExceeded = NewInspectorError(
		ErrorTypeRateLimit,
		SeverityMedium,
		"RATE_LIMIT_EXCEEDED",
		"请求频率超限",
	)

	// 链上调用错误
	ErrCallReverted = NewInspectorError(
		ErrorTypeRevert,
		SeverityLow,
		"CALL_REVERTED",
		"合约调用被回滚",
	)

	ErrDecodeFailed = NewInspectorError(
		ErrorTypeDecode,
		SeverityLow,
		"DECODE_FAILED",
		"返回值解码失败",
	)

	ErrCodeUnavailable = NewInspectorError(
		ErrorTypeResolution,
		SeverityHigh,
		"CODE_UNAVAILABLE",
		"无法获取目标合约字节码",
	)

	// 输入错误
	ErrInvalidAddress = NewInspectorError(
		ErrorTypeInput,
		SeverityMedium,
		"INVALID_ADDRESS",
		"无效的合约地址",
	)

	ErrBlockNotMined = NewInspectorError(
		ErrorTypeInput,
		SeverityMedium,
		"BLOCK_NOT_MINED",
		"目标区块尚未产出",
	)

	// 系统错误
	ErrConfigInvalid = NewInspectorError(
		ErrorTypeConfig,
		SeverityCritical,
		"CONFIG_INVALID",
		"配置无效",
	)

	ErrCacheFailed = NewInspectorError(
		ErrorTypeCache,
		SeverityLow,
		"CACHE_FAILED",
		"快照缓存操作失败",
	)

	// 外部服务错误
	ErrEtherscanAPIFailed = NewInspectorError(
		ErrorTypeEtherscan,
		SeverityLow,
		"ETHERSCAN_API_FAILED",
		"Etherscan API调用失败",
	)

	ErrKafkaProduceFailed = NewInspectorError(
		ErrorTypeKafka,
		SeverityHigh,
		"KAFKA_PRODUCE_FAILED",
		"Kafka消息发送失败",
	)
)

// 错误类型字符串映射
var errorTypeNames = map[ErrorType]string{
	ErrorTypeNetwork:     "Network",
	ErrorTypeConnection:  "Connection",
	ErrorTypeTimeout:     "Timeout",
	ErrorTypeRateLimit:   "RateLimit",
	ErrorTypeRevert:      "Revert",
	ErrorTypeDecode:      "Decode",
	ErrorTypeResolution:  "Resolution",
	ErrorTypeInput:       "Input",
	ErrorTypeValidation:  "Validation",
	ErrorTypeSystem:      "System",
	ErrorTypeConfig:      "Config",
	ErrorTypeCache:       "Cache",
	ErrorTypeExternalAPI: "ExternalAPI",
	ErrorTypeEtherscan:   "Etherscan",
	ErrorTypeKafka:       "Kafka",
}

// String 返回错误类型的字符串表示
func (et ErrorType) String() string {
	if name, exists := errorTypeNames[et]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", et)
}

// 严重级别字符串映射
var severityNames = map[ErrorSeverity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (es ErrorSeverity) String() string {
	if name, exists := severityNames[es]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", es)
}
