package taskqueue

import (
	"context"
	"fmt"

	"github.com/fyerfyer/testcase-gen-system/internal/generator"
	"github.com/sirupsen/logrus"
)

// GenerationHandler 生成任务处理器
// 从队列消费生成任务并驱动流水线执行
type GenerationHandler struct {
	pipeline *generator.Pipeline // 生成流水线
	queue    Queue               // 任务队列，用于回写结果
	logger   *logrus.Logger      // 日志记录器
}

// NewGenerationHandler 创建生成任务处理器
func NewGenerationHandler(pipeline *generator.Pipeline, queue Queue, logger *logrus.Logger) *GenerationHandler {
	if logger == nil {
		logger = logrus.New()
	}

	return &GenerationHandler{
		pipeline: pipeline,
		queue:    queue,
		logger:   logger,
	}
}

// GetTaskTypes 返回此处理器支持的任务类型
func (h *GenerationHandler) GetTaskTypes() []TaskType {
	return []TaskType{TaskGenerateTestCases}
}

// ProcessTask 处理一个生成任务
// 流水线自身记录分块级失败，这里只关心任务级成败
func (h *GenerationHandler) ProcessTask(ctx context.Context, task *Task) error {
	var payload GenerationPayload
	if err := UnmarshalPayload(task.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.FilePath == "" {
		return fmt.Errorf("%w: missing file path", ErrInvalidPayload)
	}

	h.logger.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"run_id":   payload.RunID,
		"filename": payload.FileName,
	}).Info("Processing generation task")

	result, runErr := h.pipeline.Run(ctx, generator.GenerateInput{
		RunID:      payload.RunID,
		DocumentID: payload.DocumentID,
		FilePath:   payload.FilePath,
		FileName:   payload.FileName,
		OutputPath: payload.OutputPath,
		Overwrite:  payload.Overwrite,
	})

	genResult := GenerationResult{RunID: payload.RunID}
	if result != nil {
		genResult.Status = string(result.Status)
		genResult.TestCaseCount = len(result.TestCases)
		genResult.ChunkCount = result.ChunkCount
		genResult.FailureCount = len(result.Failures)
		genResult.OutputPath = result.OutputPath
		genResult.FailureReportPath = result.FailureReportPath
	}
	if runErr != nil {
		genResult.Error = runErr.Error()
	}

	// 先回写结果数据，状态由工作者统一收尾
	if err := h.queue.UpdateTaskStatus(ctx, task.ID, task.Status, genResult, ""); err != nil {
		h.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to store generation result")
	}

	return runErr
}
