package output

import (
	"encoding/json"
	"fmt"

	"github.com/fyerfyer/testcase-gen-system/internal/models"
)

// JSONWriter JSON格式的测试用例写出器
type JSONWriter struct {
	overwrite bool
}

// Format 返回产物格式名称
func (w *JSONWriter) Format() string {
	return "json"
}

// Write 将测试用例以JSON数组形式写出
func (w *JSONWriter) Write(path string, cases []models.TestCase) error {
	file, err := createOutputFile(path, w.overwrite)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cases); err != nil {
		return fmt.Errorf("failed to encode test cases: %w", err)
	}
	return nil
}
