package generator

import (
	"fmt"
	"strings"
)

// Summary 一次生成任务的汇总信息
// 供CLI输出和日志使用的扁平视图
type Summary struct {
	RunID             string // 任务ID
	Status            string // 最终状态
	ChunkCount        int    // 分块总数
	SuccessCount      int    // 成功处理的分块数
	FailureCount      int    // 失败的分块数
	TestCaseCount     int    // 合并去重后的测试用例数
	OutputPath        string // 产物路径
	FailureReportPath string // 失败报告路径（有失败时）
}

// Summarize 从任务结果构建汇总信息
func Summarize(result *RunResult) Summary {
	return Summary{
		RunID:             result.RunID,
		Status:            string(result.Status),
		ChunkCount:        result.ChunkCount,
		SuccessCount:      result.ChunkCount - len(result.Failures),
		FailureCount:      len(result.Failures),
		TestCaseCount:     len(result.TestCases),
		OutputPath:        result.OutputPath,
		FailureReportPath: result.FailureReportPath,
	}
}

// String 返回单行文本形式的汇总
func (s Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s: %s, %d/%d chunks succeeded, %d test cases -> %s",
		s.RunID, s.Status, s.SuccessCount, s.ChunkCount, s.TestCaseCount, s.OutputPath)
	if s.FailureReportPath != "" {
		fmt.Fprintf(&sb, " (failures: %s)", s.FailureReportPath)
	}
	return sb.String()
}
