package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/testcase-gen-system/internal/models"
)

// ConflictError 输出路径冲突错误
// 目标路径已存在且未显式允许覆盖时返回
type ConflictError struct {
	Path string // 冲突的目标路径
}

// Error 实现error接口
func (e *ConflictError) Error() string {
	return fmt.Sprintf("output conflict: file already exists at %s (use overwrite to replace)", e.Path)
}

// IsConflictError 判断错误是否为输出冲突错误
func IsConflictError(err error) (*ConflictError, bool) {
	ce, ok := err.(*ConflictError)
	return ce, ok
}

// Writer 测试用例产物写出接口
type Writer interface {
	// Write 将测试用例写出到目标路径
	Write(path string, cases []models.TestCase) error

	// Format 返回产物格式名称
	Format() string
}

// NewWriter 根据目标路径的扩展名创建写出器
// 支持的格式是一个封闭集合：.json和.csv
func NewWriter(path string, overwrite bool) (Writer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return &JSONWriter{overwrite: overwrite}, nil
	case ".csv":
		return &CSVWriter{overwrite: overwrite}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (only .json and .csv are supported)", filepath.Ext(path))
	}
}

// createOutputFile 创建输出文件
// 不允许覆盖时用O_EXCL原子地检测冲突，避免检查与创建之间的竞争
func createOutputFile(path string, overwrite bool) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, &ConflictError{Path: path}
		}
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, nil
}

// DefaultArtifactName 根据源文档名生成默认的产物文件名
// 形如 spec.pdf -> spec_test_cases.json
func DefaultArtifactName(sourceName, format string) string {
	stem := strings.TrimSuffix(filepath.Base(sourceName), filepath.Ext(sourceName))
	return fmt.Sprintf("%s_test_cases.%s", stem, format)
}
