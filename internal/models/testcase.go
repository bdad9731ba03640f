package models

import "fmt"

// TestCase 测试用例结构
// 大模型从规格文档中生成的单条测试用例
type TestCase struct {
	ID             string   `json:"id"`                     // 用例唯一ID（文档ID+序号）
	Title          string   `json:"title"`                  // 用例标题
	Description    string   `json:"description"`            // 用例描述（可选）
	Preconditions  string   `json:"preconditions"`          // 前置条件
	Steps          []string `json:"steps"`                  // 有序执行步骤
	ExpectedResult string   `json:"expected_result"`        // 预期结果
	ChunkIndex     int      `json:"chunk_index"`            // 来源分块索引（可追溯性）
	SourceLabel    string   `json:"source_label,omitempty"` // 来源文档/章节标签
}

// DedupKey 返回去重键
// 标题与预期结果相同的用例视为重叠导致的重复
func (tc *TestCase) DedupKey() string {
	return tc.Title + "\x00" + tc.ExpectedResult
}

// AssignID 根据文档ID和序号生成用例ID
func (tc *TestCase) AssignID(documentID string, seq int) {
	tc.ID = fmt.Sprintf("%s-TC%03d", documentID, seq)
}

// FailureReason 分块失败原因代码
type FailureReason string

const (
	// ReasonModelError 模型调用失败（重试耗尽）
	ReasonModelError FailureReason = "model_error"
	// ReasonSchemaError 模型输出不符合模式（补发提示后仍失败）
	ReasonSchemaError FailureReason = "schema_error"
	// ReasonCancelled 任务被取消，分块未处理
	ReasonCancelled FailureReason = "cancelled"
)

// ChunkFailure 分块级失败记录
// 记录在GenerationRun中，不会中止整个任务
type ChunkFailure struct {
	ChunkIndex int           `json:"chunk_index"` // 失败的分块索引
	Reason     FailureReason `json:"reason"`      // 失败原因代码
	Message    string        `json:"message"`     // 失败详情
	Attempts   int           `json:"attempts"`    // 已尝试次数
}
