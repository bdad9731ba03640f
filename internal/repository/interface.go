package repository

import "github.com/fyerfyer/testcase-gen-system/internal/models"

// RunRepository 生成任务仓储接口
// 负责生成任务及其测试用例的存储和检索
type RunRepository interface {
	// Create 创建生成任务记录
	Create(run *models.GenerationRun) error

	// Update 更新生成任务记录
	Update(run *models.GenerationRun) error

	// GetByID 根据ID获取生成任务
	GetByID(id string) (*models.GenerationRun, error)

	// List 列出生成任务，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.GenerationRun, int64, error)

	// Delete 删除生成任务及其测试用例
	Delete(id string) error

	// UpdateStatus 更新任务状态
	UpdateStatus(id string, status models.RunStatus, errorMsg string) error

	// UpdateProgress 更新任务处理进度
	UpdateProgress(id string, progress int) error

	// SaveTestCases 批量保存任务的测试用例
	SaveTestCases(runID string, cases []*models.TestCaseRecord) error

	// GetTestCases 获取任务的所有测试用例
	GetTestCases(runID string) ([]*models.TestCaseRecord, error)

	// CountTestCases 统计任务的测试用例数量
	CountTestCases(runID string) (int, error)
}
