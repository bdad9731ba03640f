package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStatus 生成任务状态类型
type RunStatus string

const (
	// RunStatusPending 任务已创建，等待处理
	RunStatusPending RunStatus = "pending"
	// RunStatusLoaded 文档文本提取完成
	RunStatusLoaded RunStatus = "loaded"
	// RunStatusChunked 文本分块完成
	RunStatusChunked RunStatus = "chunked"
	// RunStatusGenerating 正在逐块调用模型生成
	RunStatusGenerating RunStatus = "generating"
	// RunStatusMerging 正在合并去重各分块结果
	RunStatusMerging RunStatus = "merging"
	// RunStatusWritten 产物已写出（终态，允许带有部分分块失败）
	RunStatusWritten RunStatus = "written"
	// RunStatusFailed 任务失败（终态）
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal 判断是否为终态
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusWritten || s == RunStatusFailed
}

// GenerationRun 生成任务数据模型
// 记录一次文档到测试用例的完整生成过程
type GenerationRun struct {
	ID            string         `gorm:"primaryKey"`         // 任务ID，主键
	DocumentID    string         `gorm:"not null;index"`     // 源文档ID
	FileName      string         `gorm:"not null"`           // 源文档文件名
	Status        RunStatus      `gorm:"not null;index"`     // 任务状态
	ModelName     string         `gorm:"size:50"`            // 使用的模型名称
	OutputPath    string         `gorm:"type:text"`          // 产物输出路径
	ChunkCount    int            `gorm:"not null;default:0"` // 分块总数
	SuccessCount  int            `gorm:"not null;default:0"` // 成功分块数
	FailedCount   int            `gorm:"not null;default:0"` // 失败分块数
	TestCaseCount int            `gorm:"not null;default:0"` // 最终用例数量
	Failures      datatypes.JSON `gorm:"type:json"`          // 分块失败列表，JSON格式
	Error         string         `gorm:"type:text"`          // 任务级错误信息
	Progress      int            `gorm:"not null;default:0"` // 处理进度（0-100）
	StartedAt     time.Time      `gorm:"not null;index"`     // 开始时间
	CompletedAt   *time.Time     `gorm:"index"`              // 结束时间
	UpdatedAt     time.Time      `gorm:"not null"`           // 更新时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (r *GenerationRun) BeforeCreate(tx *gorm.DB) (err error) {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	r.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (r *GenerationRun) BeforeUpdate(tx *gorm.DB) (err error) {
	r.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (GenerationRun) TableName() string {
	return "generation_runs"
}

// TestCaseRecord 测试用例数据模型
// 用于在数据库中持久化生成的测试用例
type TestCaseRecord struct {
	ID             uint           `gorm:"primaryKey;autoIncrement"`                // 主键ID
	RunID          string         `gorm:"not null;index;uniqueIndex:idx_run_case"` // 所属任务ID
	CaseID         string         `gorm:"not null;uniqueIndex:idx_run_case"`       // 任务内用例唯一ID
	Title          string         `gorm:"type:text;not null"`                      // 用例标题
	Description    string         `gorm:"type:text"`                               // 用例描述
	Preconditions  string         `gorm:"type:text"`                               // 前置条件
	Steps          datatypes.JSON `gorm:"type:json;not null"`                      // 有序步骤，JSON数组
	ExpectedResult string         `gorm:"type:text;not null"`                      // 预期结果
	ChunkIndex     int            `gorm:"not null"`                                // 来源分块索引
	SourceLabel    string         `gorm:"size:255"`                                // 来源标签
	CreatedAt      time.Time      `gorm:"not null"`                                // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (t *TestCaseRecord) BeforeCreate(tx *gorm.DB) (err error) {
	t.CreatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (TestCaseRecord) TableName() string {
	return "test_cases"
}
