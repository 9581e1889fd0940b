package errors

import (
	"sync"
	"time"
)

// ErrorStats 错误统计
type ErrorStats struct {
	mu                sync.RWMutex
	TotalErrors       int                   `json:"total_errors"`
	ErrorsByType      map[ErrorType]int     `json:"errors_by_type"`
	ErrorsBySeverity  map[ErrorSeverity]int `json:"errors_by_severity"`
	ErrorsByComponent map[string]int        `json:"errors_by_component"`
	RecentErrors      []*InspectorError     `json:"recent_errors"`
	LastError         *InspectorError       `json:"last_error"`
	LastErrorTime     time.Time             `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByType:      make(map[ErrorType]int),
		ErrorsBySeverity:  make(map[ErrorSeverity]int),
		ErrorsByComponent: make(map[string]int),
		RecentErrors:      make([]*InspectorError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *InspectorError) {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.TotalErrors++
	es.ErrorsByType[err.Type]++
	es.ErrorsBySeverity[err.Severity]++
	if err.Component != "" {
		es.ErrorsByComponent[err.Component]++
	}

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	// 保留最近100个错误
	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > 100 {
		es.RecentErrors = es.RecentErrors[1:]
	}
}

// Snapshot 返回当前统计的浅拷贝
func (es *ErrorStats) Snapshot() map[string]interface{} {
	es.mu.RLock()
	defer es.mu.RUnlock()

	byType := make(map[string]int, len(es.ErrorsByType))
	for t, c := range es.ErrorsByType {
		byType[t.String()] = c
	}

	return map[string]interface{}{
		"total_errors":    es.TotalErrors,
		"errors_by_type":  byType,
		"last_error_time": es.LastErrorTime,
	}
}
