package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fyerfyer/testcase-gen-system/internal/models"
)

// csvHeader 产物表头，列顺序固定
var csvHeader = []string{"ID", "Title", "Description", "Preconditions", "Steps", "Expected Result", "Chunk", "Source"}

// CSVWriter CSV格式的测试用例写出器
type CSVWriter struct {
	overwrite bool
}

// Format 返回产物格式名称
func (w *CSVWriter) Format() string {
	return "csv"
}

// Write 将测试用例以表格形式写出
// 步骤列保存为JSON数组，单元格内容可无损解析回有序步骤
func (w *CSVWriter) Write(path string, cases []models.TestCase) error {
	file, err := createOutputFile(path, w.overwrite)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, tc := range cases {
		steps, err := json.Marshal(tc.Steps)
		if err != nil {
			return fmt.Errorf("failed to encode steps: %w", err)
		}

		record := []string{
			tc.ID,
			tc.Title,
			tc.Description,
			tc.Preconditions,
			string(steps),
			tc.ExpectedResult,
			strconv.Itoa(tc.ChunkIndex),
			tc.SourceLabel,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
