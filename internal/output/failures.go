package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/testcase-gen-system/internal/models"
)

// FailureReport 分块失败报告
// 与产物并列写出，记录未能生成用例的分块及原因
type FailureReport struct {
	RunID       string                `json:"run_id"`       // 任务ID
	Document    string                `json:"document"`     // 源文档
	GeneratedAt time.Time             `json:"generated_at"` // 报告生成时间
	Failures    []models.ChunkFailure `json:"failures"`     // 失败分块列表
}

// FailureReportPath 根据产物路径派生失败报告路径
// 形如 spec_test_cases.json -> spec_test_cases.failures.json
func FailureReportPath(artifactPath string) string {
	if idx := strings.LastIndex(artifactPath, "."); idx > 0 {
		artifactPath = artifactPath[:idx]
	}
	return artifactPath + ".failures.json"
}

// WriteFailureReport 写出失败报告
// 失败报告与产物共享覆盖策略
func WriteFailureReport(path string, report *FailureReport, overwrite bool) error {
	file, err := createOutputFile(path, overwrite)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode failure report: %w", err)
	}
	return nil
}
