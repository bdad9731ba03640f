package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/testcase-gen-system/internal/database"
	"github.com/fyerfyer/testcase-gen-system/internal/models"
	"gorm.io/gorm"
)

// runRepository 生成任务仓储实现
type runRepository struct {
	db *gorm.DB // 数据库连接
}

// NewRunRepository 创建生成任务仓储实例
func NewRunRepository() RunRepository {
	return &runRepository{
		db: database.MustDB(),
	}
}

// NewRunRepositoryWithDB 使用指定的数据库连接创建生成任务仓储实例
func NewRunRepositoryWithDB(db *gorm.DB) RunRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &runRepository{
		db: db,
	}
}

// Create 创建生成任务记录
func (r *runRepository) Create(run *models.GenerationRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}

	return r.db.Create(run).Error
}

// Update 更新生成任务记录
func (r *runRepository) Update(run *models.GenerationRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}

	return r.db.Save(run).Error
}

// GetByID 根据ID获取生成任务
func (r *runRepository) GetByID(id string) (*models.GenerationRun, error) {
	var run models.GenerationRun
	err := r.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// List 列出生成任务，支持分页和筛选
func (r *runRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.GenerationRun, int64, error) {
	var runs []*models.GenerationRun
	var total int64

	query := r.db.Model(&models.GenerationRun{})

	// 应用筛选条件
	if filters != nil {
		// 状态过滤
		if status, ok := filters["status"]; ok {
			switch s := status.(type) {
			case models.RunStatus:
				query = query.Where("status = ?", string(s))
			case string:
				if s != "" {
					query = query.Where("status = ?", s)
				}
			}
		}

		// 文档过滤
		if docID, ok := filters["document_id"].(string); ok && docID != "" {
			query = query.Where("document_id = ?", docID)
		}

		// 文件名过滤
		if fileName, ok := filters["file_name"].(string); ok && fileName != "" {
			query = query.Where("file_name LIKE ?", "%"+fileName+"%")
		}

		// 时间范围过滤
		if startTime, ok := filters["start_time"].(string); ok && startTime != "" {
			query = query.Where("started_at >= ?", startTime)
		}
		if endTime, ok := filters["end_time"].(string); ok && endTime != "" {
			query = query.Where("started_at <= ?", endTime)
		}
	}

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 应用排序、分页并执行查询
	err := query.Order("started_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

// Delete 删除生成任务及其测试用例
func (r *runRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		// 1. 删除任务的测试用例
		if err := tx.Where("run_id = ?", id).Delete(&models.TestCaseRecord{}).Error; err != nil {
			return err
		}

		// 2. 删除任务记录
		return tx.Where("id = ?", id).Delete(&models.GenerationRun{}).Error
	})
}

// UpdateStatus 更新任务状态
func (r *runRepository) UpdateStatus(id string, status models.RunStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}

	if errorMsg != "" {
		updates["error"] = errorMsg
	}

	// 终态时记录完成时间
	if status.IsTerminal() {
		now := time.Now()
		updates["completed_at"] = &now
	}

	return r.db.Model(&models.GenerationRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateProgress 更新任务处理进度
func (r *runRepository) UpdateProgress(id string, progress int) error {
	// 确保进度在0-100范围内
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	return r.db.Model(&models.GenerationRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":   progress,
			"updated_at": time.Now(),
		}).Error
}

// SaveTestCases 批量保存任务的测试用例
func (r *runRepository) SaveTestCases(runID string, cases []*models.TestCaseRecord) error {
	if len(cases) == 0 {
		return nil
	}

	for _, c := range cases {
		if c.RunID == "" {
			c.RunID = runID
		}
	}

	// 使用事务批量插入
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(cases, 100).Error
	})
}

// GetTestCases 获取任务的所有测试用例
func (r *runRepository) GetTestCases(runID string) ([]*models.TestCaseRecord, error) {
	var cases []*models.TestCaseRecord
	err := r.db.Where("run_id = ?", runID).
		Order("id ASC").
		Find(&cases).Error
	return cases, err
}

// CountTestCases 统计任务的测试用例数量
func (r *runRepository) CountTestCases(runID string) (int, error) {
	var count int64
	err := r.db.Model(&models.TestCaseRecord{}).
		Where("run_id = ?", runID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count test cases: %w", err)
	}
	return int(count), nil
}
