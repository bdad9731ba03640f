package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fyerfyer/testcase-gen-system/api/middleware"
	"github.com/fyerfyer/testcase-gen-system/api/model"
	"github.com/fyerfyer/testcase-gen-system/internal/generator"
	"github.com/fyerfyer/testcase-gen-system/internal/models"
	"github.com/fyerfyer/testcase-gen-system/internal/output"
	"github.com/fyerfyer/testcase-gen-system/internal/repository"
	"github.com/fyerfyer/testcase-gen-system/pkg/storage"
	"github.com/fyerfyer/testcase-gen-system/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunHandler 处理生成任务相关的API请求
type RunHandler struct {
	pipeline    *generator.Pipeline         // 生成流水线，同步模式使用
	status      *generator.RunStatusManager // 任务状态管理器
	repo        repository.RunRepository    // 任务仓储
	queue       taskqueue.Queue             // 任务队列，异步模式使用，可为nil
	fileStorage storage.Storage             // 文档存储
	outputDir   string                      // 产物输出目录
	logger      *logrus.Logger              // 日志记录器
}

// NewRunHandler 创建生成任务处理器
// queue为nil时只支持同步模式
func NewRunHandler(
	pipeline *generator.Pipeline,
	status *generator.RunStatusManager,
	repo repository.RunRepository,
	queue taskqueue.Queue,
	fileStorage storage.Storage,
	outputDir string,
) *RunHandler {
	if outputDir == "" {
		outputDir = "outputs"
	}

	return &RunHandler{
		pipeline:    pipeline,
		status:      status,
		repo:        repo,
		queue:       queue,
		fileStorage: fileStorage,
		outputDir:   outputDir,
		logger:      middleware.GetLogger(),
	}
}

// StartRun 启动一次文档到测试用例的生成任务
// POST /api/runs
func (h *RunHandler) StartRun(c *gin.Context) {
	var req model.RunStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的请求参数"))
		return
	}

	info, err := h.fileStorage.Stat(req.DocumentID)
	if err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "文档不存在"))
		return
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = info.Name
	}

	format := req.Format
	if format == "" {
		format = "json"
	}
	outputPath := filepath.Join(h.outputDir, output.DefaultArtifactName(fileName, format))
	runID := uuid.New().String()

	if req.Async && h.queue != nil {
		h.startAsync(c, runID, req, info, fileName, outputPath)
		return
	}
	h.startSync(c, runID, req, fileName, outputPath)
}

// startSync 同步执行生成任务，请求阻塞到任务结束
func (h *RunHandler) startSync(c *gin.Context, runID string, req model.RunStartRequest, fileName, outputPath string) {
	reader, err := h.fileStorage.Get(req.DocumentID)
	if err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "文档不存在"))
		return
	}
	defer reader.Close()

	result, err := h.pipeline.Run(c.Request.Context(), generator.GenerateInput{
		RunID:      runID,
		DocumentID: req.DocumentID,
		Reader:     reader,
		FileName:   fileName,
		OutputPath: outputPath,
		Overwrite:  req.Overwrite,
	})
	if err != nil {
		if _, ok := output.IsConflictError(err); ok {
			middleware.HandleError(c, middleware.NewConflictError(err.Error()))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"run_id": runID,
			"error":  err.Error(),
		}).Error("Generation run failed")

		middleware.HandleError(c, middleware.NewBusinessError("生成任务失败", err.Error()))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.RunStartResponse{
		RunID:         result.RunID,
		Status:        string(result.Status),
		TestCaseCount: len(result.TestCases),
		FailureCount:  len(result.Failures),
		OutputPath:    result.OutputPath,
	}))
}

// startAsync 将生成任务入队后立即返回
func (h *RunHandler) startAsync(c *gin.Context, runID string, req model.RunStartRequest, info storage.FileInfo, fileName, outputPath string) {
	// 把文档落到本地暂存路径，工作进程从这里读取
	spoolPath, err := h.spoolDocument(req.DocumentID, info)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":       err.Error(),
			"document_id": req.DocumentID,
		}).Error("Failed to spool document for async run")

		middleware.HandleError(c, middleware.NewInternalError("准备文档失败"))
		return
	}

	taskID, err := h.queue.Enqueue(c.Request.Context(), taskqueue.TaskGenerateTestCases, runID, taskqueue.GenerationPayload{
		RunID:      runID,
		DocumentID: req.DocumentID,
		FilePath:   spoolPath,
		FileName:   fileName,
		OutputPath: outputPath,
		Format:     req.Format,
		Overwrite:  req.Overwrite,
	})
	if err != nil {
		h.logger.WithField("error", err.Error()).Error("Failed to enqueue generation task")
		middleware.HandleError(c, middleware.NewInternalError("任务入队失败"))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"run_id":  runID,
		"task_id": taskID,
	}).Info("Generation task enqueued")

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.RunStartResponse{
		RunID:  runID,
		Status: string(models.RunStatusPending),
		TaskID: taskID,
	}))
}

// spoolDocument 将存储中的文档复制到本地暂存目录
func (h *RunHandler) spoolDocument(documentID string, info storage.FileInfo) (string, error) {
	reader, err := h.fileStorage.Get(documentID)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	spoolDir := filepath.Join(os.TempDir(), "testcase-gen-spool")
	if err := os.MkdirAll(spoolDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create spool directory: %w", err)
	}

	spoolPath := filepath.Join(spoolDir, documentID+filepath.Ext(info.Name))
	file, err := os.Create(spoolPath)
	if err != nil {
		return "", fmt.Errorf("failed to create spool file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return "", fmt.Errorf("failed to copy document: %w", err)
	}
	return spoolPath, nil
}

// GetRunStatus 获取生成任务状态
// GET /api/runs/:id
func (h *RunHandler) GetRunStatus(c *gin.Context) {
	var req model.RunStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的任务ID"))
		return
	}

	run, err := h.status.GetRun(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "任务不存在"))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("获取任务状态失败"))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewRunStatusResponse(run)))
}

// ListRuns 获取生成任务列表
// GET /api/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	var req model.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的查询参数"))
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.DocumentID != "" {
		filters["document_id"] = req.DocumentID
	}
	if req.FileName != "" {
		filters["file_name"] = req.FileName
	}
	if req.StartTime != nil {
		filters["start_time"] = req.StartTime.Format(time.RFC3339)
	}
	if req.EndTime != nil {
		filters["end_time"] = req.EndTime.Format(time.RFC3339)
	}

	page := req.GetPage()
	pageSize := req.GetPageSize()
	runs, total, err := h.status.ListRuns(c.Request.Context(), (page-1)*pageSize, pageSize, filters)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("获取任务列表失败"))
		return
	}

	items := make([]model.RunStatusResponse, 0, len(runs))
	for _, run := range runs {
		items = append(items, *model.NewRunStatusResponse(run))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.RunListResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Runs:     items,
	}))
}

// DownloadArtifact 下载生成的测试用例产物
// GET /api/runs/:id/artifact
func (h *RunHandler) DownloadArtifact(c *gin.Context) {
	run, ok := h.loadWrittenRun(c)
	if !ok {
		return
	}

	c.FileAttachment(run.OutputPath, filepath.Base(run.OutputPath))
}

// DownloadFailureReport 下载失败报告
// GET /api/runs/:id/failures
func (h *RunHandler) DownloadFailureReport(c *gin.Context) {
	run, ok := h.loadWrittenRun(c)
	if !ok {
		return
	}

	reportPath := output.FailureReportPath(run.OutputPath)
	if _, err := os.Stat(reportPath); err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "该任务没有失败报告"))
		return
	}

	c.FileAttachment(reportPath, filepath.Base(reportPath))
}

// loadWrittenRun 加载已完成的生成任务，未完成或不存在时写出错误响应
func (h *RunHandler) loadWrittenRun(c *gin.Context) (*models.GenerationRun, bool) {
	var req model.RunStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的任务ID"))
		return nil, false
	}

	run, err := h.status.GetRun(c.Request.Context(), req.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "任务不存在"))
		return nil, false
	}

	if run.Status != models.RunStatusWritten || run.OutputPath == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "任务尚未产出结果"))
		return nil, false
	}
	return run, true
}

// DeleteRun 删除生成任务及其用例记录
// DELETE /api/runs/:id
func (h *RunHandler) DeleteRun(c *gin.Context) {
	var req model.RunDeleteRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的任务ID"))
		return
	}

	if _, err := h.repo.GetByID(req.ID); err != nil {
		if errors.Is(err, models.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "任务不存在"))
			return
		}
		middleware.HandleError(c, middleware.NewInternalError("获取任务失败"))
		return
	}

	if err := h.repo.Delete(req.ID); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":  err.Error(),
			"run_id": req.ID,
		}).Error("Failed to delete run")

		middleware.HandleError(c, middleware.NewInternalError("删除任务失败"))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.RunDeleteResponse{
		Success: true,
		RunID:   req.ID,
	}))
}
