package model

import (
	"time"

	"github.com/fyerfyer/testcase-gen-system/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentUploadResponse 文档上传响应
type DocumentUploadResponse struct {
	FileID   string `json:"file_id"`  // 文件ID
	FileName string `json:"filename"` // 文件名
	Size     int64  `json:"size"`     // 文件大小(字节)
}

// DocumentInfo 文档信息
type DocumentInfo struct {
	FileID     string    `json:"file_id"`     // 文件ID
	FileName   string    `json:"filename"`    // 文件名
	Size       int64     `json:"size"`        // 文件大小(字节)
	MimeType   string    `json:"mime_type"`   // MIME类型
	UploadedAt time.Time `json:"uploaded_at"` // 上传时间
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int            `json:"total"`     // 总数量
	Documents []DocumentInfo `json:"documents"` // 文档列表
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	FileID  string `json:"file_id"` // 文件ID
}

// RunStartResponse 启动生成任务响应
type RunStartResponse struct {
	RunID         string `json:"run_id"`                    // 生成任务ID
	Status        string `json:"status"`                    // 任务状态
	TaskID        string `json:"task_id,omitempty"`         // 队列任务ID（异步模式）
	TestCaseCount int    `json:"test_case_count,omitempty"` // 生成的用例数量（同步模式）
	FailureCount  int    `json:"failure_count,omitempty"`   // 失败分块数（同步模式）
	OutputPath    string `json:"output_path,omitempty"`     // 产物路径（同步模式）
}

// RunStatusResponse 生成任务状态查询响应
type RunStatusResponse struct {
	RunID         string     `json:"run_id"`                 // 生成任务ID
	DocumentID    string     `json:"document_id"`            // 源文档ID
	FileName      string     `json:"filename"`               // 源文档文件名
	Status        string     `json:"status"`                 // 任务状态
	Progress      int        `json:"progress"`               // 处理进度（0-100）
	ModelName     string     `json:"model_name,omitempty"`   // 使用的模型
	ChunkCount    int        `json:"chunk_count"`            // 分块总数
	TestCaseCount int        `json:"test_case_count"`        // 生成的用例数量
	FailureCount  int        `json:"failure_count"`          // 失败分块数
	OutputPath    string     `json:"output_path,omitempty"`  // 产物路径
	Error         string     `json:"error,omitempty"`        // 错误信息（如果有）
	StartedAt     time.Time  `json:"started_at"`             // 开始时间
	CompletedAt   *time.Time `json:"completed_at,omitempty"` // 完成时间
}

// NewRunStatusResponse 从任务记录构建状态响应
func NewRunStatusResponse(run *models.GenerationRun) *RunStatusResponse {
	return &RunStatusResponse{
		RunID:         run.ID,
		DocumentID:    run.DocumentID,
		FileName:      run.FileName,
		Status:        string(run.Status),
		Progress:      run.Progress,
		ModelName:     run.ModelName,
		ChunkCount:    run.ChunkCount,
		TestCaseCount: run.TestCaseCount,
		FailureCount:  run.FailedCount,
		OutputPath:    run.OutputPath,
		Error:         run.Error,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
	}
}

// RunListResponse 生成任务列表响应
type RunListResponse struct {
	Total    int64               `json:"total"`     // 总记录数
	Page     int                 `json:"page"`      // 当前页码
	PageSize int                 `json:"page_size"` // 每页大小
	Runs     []RunStatusResponse `json:"runs"`      // 任务列表
}

// RunDeleteResponse 生成任务删除响应
type RunDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	RunID   string `json:"run_id"`  // 生成任务ID
}
