package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptySeries 在未初始化（空）序列上执行随机游走
var ErrEmptySeries = errors.New("empty series: window must be seeded before stepping")

// ValidationError 输入字段缺失或非法（设备或调用方造成，不重试）
type ValidationError struct {
	Fields  []string          // 按字母序
	Reasons map[string]string // field -> reason
}

// NewValidationError 由 field -> reason 构造，reasons 为空时返回 nil
func NewValidationError(reasons map[string]string) *ValidationError {
	if len(reasons) == 0 {
		return nil
	}
	fields := make([]string, 0, len(reasons))
	for f := range reasons {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return &ValidationError{Fields: fields, Reasons: reasons}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Reasons[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has 是否包含指定字段
func (e *ValidationError) Has(field string) bool {
	_, ok := e.Reasons[field]
	return ok
}

// TransportError 存储或设备 I/O 失败，由调用方决定是否重试
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
