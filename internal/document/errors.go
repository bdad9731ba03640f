package document

import "fmt"

// ParseReason 文档解析失败原因代码
type ParseReason string

const (
	// ReasonUnsupported 不支持的文档格式
	ReasonUnsupported ParseReason = "unsupported_format"
	// ReasonCorrupt 文件损坏或无法读取
	ReasonCorrupt ParseReason = "corrupt_file"
	// ReasonEncrypted 文件被加密，无法提取内容
	ReasonEncrypted ParseReason = "encrypted_file"
	// ReasonEmpty 文件中没有可提取的文本内容
	ReasonEmpty ParseReason = "empty_content"
)

// ParseError 文档解析错误类型
// 解析器不向上层抛出底层库的原始错误，统一包装为此类型
type ParseError struct {
	Reason  ParseReason // 失败原因代码
	Source  string      // 源文件名
	Message string      // 错误详情
}

// Error 实现error接口
func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("document parse error (%s): %s: %s", e.Reason, e.Source, e.Message)
	}
	return fmt.Sprintf("document parse error (%s): %s", e.Reason, e.Message)
}

// NewParseError 创建新的文档解析错误
func NewParseError(reason ParseReason, source, message string) *ParseError {
	return &ParseError{
		Reason:  reason,
		Source:  source,
		Message: message,
	}
}

// IsParseError 判断错误是否为文档解析错误
func IsParseError(err error) (*ParseError, bool) {
	pe, ok := err.(*ParseError)
	return pe, ok
}
