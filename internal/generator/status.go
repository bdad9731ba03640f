package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fyerfyer/testcase-gen-system/internal/models"
	"github.com/fyerfyer/testcase-gen-system/internal/repository"
	"github.com/sirupsen/logrus"
)

// RunStatusManager 生成任务状态管理器
// 负责管理任务生命周期状态：
// pending -> loaded -> chunked -> generating -> merging -> written|failed
type RunStatusManager struct {
	repo   repository.RunRepository // 任务仓储接口
	logger *logrus.Logger           // 日志记录器
	mu     sync.Mutex               // 互斥锁，保证状态转换的原子性
}

// NewRunStatusManager 创建任务状态管理器
func NewRunStatusManager(repo repository.RunRepository, logger *logrus.Logger) *RunStatusManager {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &RunStatusManager{
		repo:   repo,
		logger: logger,
	}
}

// validTransitions 合法的状态转换表
var validTransitions = map[models.RunStatus][]models.RunStatus{
	models.RunStatusPending: {
		models.RunStatusLoaded,
		models.RunStatusFailed, // 解析失败时直接终止
	},
	models.RunStatusChunked: {
		models.RunStatusGenerating,
		models.RunStatusFailed,
	},
	models.RunStatusLoaded: {
		models.RunStatusChunked,
		models.RunStatusFailed, // 空文档直接终止
	},
	models.RunStatusGenerating: {
		models.RunStatusMerging,
		models.RunStatusFailed, // 所有分块失败时终止
	},
	models.RunStatusMerging: {
		models.RunStatusWritten,
		models.RunStatusFailed, // 写出冲突时终止
	},
	// 终态
	models.RunStatusWritten: {},
	models.RunStatusFailed:  {},
}

// ValidateStateTransition 验证状态转换的有效性
func ValidateStateTransition(from, to models.RunStatus) error {
	for _, validTo := range validTransitions[from] {
		if validTo == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", models.ErrInvalidRunStatus, from, to)
}

// CreateRun 创建一个待处理的生成任务记录
func (m *RunStatusManager) CreateRun(ctx context.Context, runID, documentID, fileName, modelName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"filename": fileName,
	}).Info("Creating generation run")

	run := &models.GenerationRun{
		ID:         runID,
		DocumentID: documentID,
		FileName:   fileName,
		ModelName:  modelName,
		Status:     models.RunStatusPending,
		StartedAt:  time.Now(),
	}
	return m.repo.Create(run)
}

// MarkAsLoaded 标记文档文本提取完成
func (m *RunStatusManager) MarkAsLoaded(ctx context.Context, runID string) error {
	return m.transition(runID, models.RunStatusLoaded, "")
}

// MarkAsChunked 标记文本分块完成并记录分块数
func (m *RunStatusManager) MarkAsChunked(ctx context.Context, runID string, chunkCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.repo.GetByID(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if err := ValidateStateTransition(run.Status, models.RunStatusChunked); err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"run_id":      runID,
		"chunk_count": chunkCount,
	}).Info("Marking run as chunked")

	run.Status = models.RunStatusChunked
	run.ChunkCount = chunkCount
	return m.repo.Update(run)
}

// MarkAsGenerating 标记任务进入逐块生成阶段
func (m *RunStatusManager) MarkAsGenerating(ctx context.Context, runID string) error {
	return m.transition(runID, models.RunStatusGenerating, "")
}

// MarkAsMerging 标记任务进入合并阶段
func (m *RunStatusManager) MarkAsMerging(ctx context.Context, runID string) error {
	return m.transition(runID, models.RunStatusMerging, "")
}

// MarkAsWritten 标记任务完成并记录产物信息
// 允许带有部分分块失败的成功完成
func (m *RunStatusManager) MarkAsWritten(ctx context.Context, runID, outputPath string, caseCount, successCount int, failures []models.ChunkFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.repo.GetByID(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if err := ValidateStateTransition(run.Status, models.RunStatusWritten); err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"run_id":      runID,
		"case_count":  caseCount,
		"failures":    len(failures),
		"output_path": outputPath,
	}).Info("Marking run as written")

	now := time.Now()
	run.Status = models.RunStatusWritten
	run.OutputPath = outputPath
	run.TestCaseCount = caseCount
	run.SuccessCount = successCount
	run.FailedCount = len(failures)
	run.Progress = 100
	run.CompletedAt = &now

	if len(failures) > 0 {
		data, err := json.Marshal(failures)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk failures: %w", err)
		}
		run.Failures = data
	}

	return m.repo.Update(run)
}

// MarkAsFailed 标记任务失败
func (m *RunStatusManager) MarkAsFailed(ctx context.Context, runID, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.repo.GetByID(runID); err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"error":  errorMsg,
	}).Error("Marking run as failed")

	return m.repo.UpdateStatus(runID, models.RunStatusFailed, errorMsg)
}

// UpdateProgress 更新任务处理进度
func (m *RunStatusManager) UpdateProgress(ctx context.Context, runID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.repo.GetByID(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	// 只有生成中的任务才更新进度
	if run.Status != models.RunStatusGenerating {
		return fmt.Errorf("cannot update progress: run %s is not generating", runID)
	}

	m.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"progress": progress,
	}).Debug("Updating run progress")

	return m.repo.UpdateProgress(runID, progress)
}

// GetRun 获取完整的任务对象
func (m *RunStatusManager) GetRun(ctx context.Context, runID string) (*models.GenerationRun, error) {
	return m.repo.GetByID(runID)
}

// GetStatus 获取任务当前状态
func (m *RunStatusManager) GetStatus(ctx context.Context, runID string) (models.RunStatus, error) {
	run, err := m.repo.GetByID(runID)
	if err != nil {
		return "", fmt.Errorf("failed to get run status: %w", err)
	}
	return run.Status, nil
}

// ListRuns 获取任务列表
func (m *RunStatusManager) ListRuns(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.GenerationRun, int64, error) {
	return m.repo.List(offset, limit, filters)
}

// transition 执行一次带校验的状态转换
func (m *RunStatusManager) transition(runID string, to models.RunStatus, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.repo.GetByID(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if err := ValidateStateTransition(run.Status, to); err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"from":   run.Status,
		"to":     to,
	}).Info("Run state transition")

	return m.repo.UpdateStatus(runID, to, errorMsg)
}
