package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fyerfyer/testcase-gen-system/internal/cache"
	"github.com/fyerfyer/testcase-gen-system/internal/document"
	"github.com/fyerfyer/testcase-gen-system/internal/llm"
	"github.com/fyerfyer/testcase-gen-system/internal/models"
	"github.com/fyerfyer/testcase-gen-system/internal/output"
	"github.com/fyerfyer/testcase-gen-system/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config 流水线配置
type Config struct {
	Concurrency   int           // 并发处理的分块数
	RepromptLimit int           // 模式校验失败后的补发提示次数
	RunTimeout    time.Duration // 整个任务的超时时间，0表示不限制
	CacheTTL      time.Duration // 模型响应缓存过期时间
}

// DefaultPipelineConfig 返回默认流水线配置
func DefaultPipelineConfig() Config {
	return Config{
		Concurrency:   4,
		RepromptLimit: 1,
		CacheTTL:      24 * time.Hour,
	}
}

// Pipeline 文档到测试用例的生成流水线
// 解析 -> 分块 -> 逐块生成 -> 合并去重 -> 写出产物
type Pipeline struct {
	caller    *llm.Caller
	splitter  document.Splitter
	builder   *PromptBuilder
	validator *ResponseValidator
	merger    *Merger
	status    *RunStatusManager        // 可选，任务状态持久化
	repo      repository.RunRepository // 可选，测试用例持久化
	cache     cache.Cache              // 可选，模型响应缓存
	logger    *logrus.Logger
	cfg       Config
}

// PipelineOption 流水线配置选项
type PipelineOption func(*Pipeline)

// WithStatusManager 设置任务状态管理器
func WithStatusManager(status *RunStatusManager) PipelineOption {
	return func(p *Pipeline) {
		p.status = status
	}
}

// WithRepository 设置测试用例持久化仓储
func WithRepository(repo repository.RunRepository) PipelineOption {
	return func(p *Pipeline) {
		p.repo = repo
	}
}

// WithResponseCache 设置模型响应缓存
func WithResponseCache(c cache.Cache) PipelineOption {
	return func(p *Pipeline) {
		p.cache = c
	}
}

// WithPipelineLogger 设置日志记录器
func WithPipelineLogger(logger *logrus.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithPipelineConfig 设置流水线配置
func WithPipelineConfig(cfg Config) PipelineOption {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// NewPipeline 创建新的生成流水线
func NewPipeline(caller *llm.Caller, splitter document.Splitter, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		caller:    caller,
		splitter:  splitter,
		builder:   NewPromptBuilder(),
		validator: NewResponseValidator(),
		merger:    NewMerger(),
		cfg:       DefaultPipelineConfig(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logrus.New()
	}

	// 并发度限制在合理区间内，避免触发接口限流
	if p.cfg.Concurrency < 1 {
		p.cfg.Concurrency = 1
	}
	if p.cfg.Concurrency > 8 {
		p.cfg.Concurrency = 8
	}
	if p.cfg.RepromptLimit < 0 {
		p.cfg.RepromptLimit = 0
	}

	return p
}

// GenerateInput 一次生成任务的输入
type GenerateInput struct {
	RunID      string    // 任务ID，为空时自动生成
	DocumentID string    // 文档ID，为空时根据文件名派生
	FilePath   string    // 文档路径
	Reader     io.Reader // 文档内容流，与FilePath二选一
	FileName   string    // 文件名，使用Reader时必填
	ExtraFiles []string  // 追加文档路径，与主文档合并为同一次任务
	OutputPath string    // 产物路径，为空时根据文件名派生
	Overwrite  bool      // 是否允许覆盖已存在的产物
}

// RunResult 一次生成任务的结果
type RunResult struct {
	RunID             string                // 任务ID
	Status            models.RunStatus      // 最终状态
	TestCases         []models.TestCase     // 合并后的测试用例
	Failures          []models.ChunkFailure // 分块失败列表
	ChunkCount        int                   // 分块总数
	OutputPath        string                // 产物路径
	FailureReportPath string                // 失败报告路径（有失败时）
}

// chunkOutcome 单个分块的处理结果
type chunkOutcome struct {
	cases   []models.TestCase
	failure *models.ChunkFailure
}

// Run 执行一次完整的生成任务
// 部分分块失败不会中止任务；只有文档无内容或所有分块失败时任务才失败
func (p *Pipeline) Run(ctx context.Context, input GenerateInput) (*RunResult, error) {
	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	runID := input.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	fileName := input.FileName
	if fileName == "" {
		fileName = filepath.Base(input.FilePath)
	}

	documentID := input.DocumentID
	if documentID == "" {
		documentID = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	outputPath := input.OutputPath
	if outputPath == "" {
		outputPath = output.DefaultArtifactName(fileName, "json")
	}

	result := &RunResult{
		RunID:      runID,
		OutputPath: outputPath,
	}

	log := p.logger.WithFields(logrus.Fields{
		"run_id":   runID,
		"filename": fileName,
	})

	if p.status != nil {
		if err := p.status.CreateRun(ctx, runID, documentID, fileName, p.caller.Client().Name()); err != nil {
			return nil, fmt.Errorf("failed to create run record: %w", err)
		}
	}

	// 阶段一：文档解析
	text, err := p.loadDocument(input, fileName)
	if err != nil {
		return p.fail(ctx, result, fmt.Errorf("document parse error: %w", err))
	}
	p.markLoaded(ctx, runID)

	// 阶段二：文本分块
	chunks, err := p.splitter.Split(text)
	if err != nil {
		return p.fail(ctx, result, fmt.Errorf("failed to split document: %w", err))
	}
	if len(chunks) == 0 {
		// 空文档直接短路，不发起任何模型调用
		return p.fail(ctx, result, models.ErrNoContent)
	}
	result.ChunkCount = len(chunks)
	log.WithField("chunks", len(chunks)).Info("Document chunked")

	if p.status != nil {
		_ = p.status.MarkAsChunked(ctx, runID, len(chunks))
		_ = p.status.MarkAsGenerating(ctx, runID)
	}

	// 阶段三：并发逐块生成
	outcomes := p.generateChunks(ctx, runID, fileName, chunks)

	casesByChunk := make([][]models.TestCase, len(chunks))
	successCount := 0
	for i, outcome := range outcomes {
		if outcome.failure != nil {
			result.Failures = append(result.Failures, *outcome.failure)
			continue
		}
		casesByChunk[i] = outcome.cases
		successCount++
	}

	// 所有分块失败时任务整体失败
	if successCount == 0 {
		return p.fail(ctx, result, fmt.Errorf("all %d chunks failed generation", len(chunks)))
	}

	// 阶段四：合并去重
	if p.status != nil {
		_ = p.status.MarkAsMerging(ctx, runID)
	}
	result.TestCases = p.merger.Merge(documentID, casesByChunk)

	// 阶段五：写出产物
	writer, err := output.NewWriter(outputPath, input.Overwrite)
	if err != nil {
		return p.fail(ctx, result, err)
	}
	if err := writer.Write(outputPath, result.TestCases); err != nil {
		return p.fail(ctx, result, err)
	}

	// 有失败分块时在产物旁写出失败报告
	if len(result.Failures) > 0 {
		reportPath := output.FailureReportPath(outputPath)
		report := &output.FailureReport{
			RunID:       runID,
			Document:    fileName,
			GeneratedAt: time.Now(),
			Failures:    result.Failures,
		}
		if err := output.WriteFailureReport(reportPath, report, true); err != nil {
			log.WithError(err).Warn("Failed to write failure report")
		} else {
			result.FailureReportPath = reportPath
		}
	}

	p.persistTestCases(runID, result.TestCases)

	if p.status != nil {
		_ = p.status.MarkAsWritten(ctx, runID, outputPath, len(result.TestCases), successCount, result.Failures)
	}

	result.Status = models.RunStatusWritten
	log.WithFields(logrus.Fields{
		"cases":    len(result.TestCases),
		"failures": len(result.Failures),
	}).Info("Generation run completed")

	return result, nil
}

// loadDocument 解析输入文档为纯文本
// 存在追加文档时各文档文本带来源标签拼接，分块后仍可追溯来源
func (p *Pipeline) loadDocument(input GenerateInput, fileName string) (string, error) {
	parser, err := document.ParserFactory(fileName)
	if err != nil {
		return "", err
	}

	var text string
	if input.Reader != nil {
		text, err = parser.ParseReader(input.Reader, fileName)
	} else {
		text, err = parser.Parse(input.FilePath)
	}
	if err != nil {
		return "", err
	}

	if len(input.ExtraFiles) == 0 {
		return text, nil
	}

	var sb strings.Builder
	sb.WriteString(sourceLabel(fileName))
	sb.WriteString(text)
	for _, path := range input.ExtraFiles {
		extraParser, err := document.ParserFactory(path)
		if err != nil {
			return "", err
		}
		extraText, err := extraParser.Parse(path)
		if err != nil {
			return "", err
		}
		sb.WriteString("\n\n")
		sb.WriteString(sourceLabel(filepath.Base(path)))
		sb.WriteString(extraText)
	}
	return sb.String(), nil
}

// sourceLabel 多文档合并时标记段落来源的标签行
func sourceLabel(name string) string {
	return fmt.Sprintf("[SOURCE: %s]\n\n", name)
}

// generateChunks 并发处理所有分块
// 结果按分块索引落位，保证聚合顺序与原文顺序一致
func (p *Pipeline) generateChunks(ctx context.Context, runID, fileName string, chunks []document.Chunk) []chunkOutcome {
	outcomes := make([]chunkOutcome, len(chunks))
	jobs := make(chan int)
	var completed int
	var progressMu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = p.processChunk(ctx, fileName, chunks[idx])

				progressMu.Lock()
				completed++
				progress := completed * 100 / len(chunks)
				progressMu.Unlock()

				if p.status != nil {
					_ = p.status.UpdateProgress(ctx, runID, progress)
				}
			}
		}()
	}

	for i := range chunks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

// processChunk 处理单个分块：构造提示、调用模型、校验输出
// 模式校验失败时补发一次纠正提示
func (p *Pipeline) processChunk(ctx context.Context, fileName string, chunk document.Chunk) chunkOutcome {
	// 任务被取消时不再发起调用
	if ctx.Err() != nil {
		return chunkOutcome{failure: &models.ChunkFailure{
			ChunkIndex: chunk.Index,
			Reason:     models.ReasonCancelled,
			Message:    ctx.Err().Error(),
		}}
	}

	prompt := p.builder.BuildGeneration(chunk, fileName)

	// 命中缓存的响应直接复用，跳过模型调用
	if cases, ok := p.lookupCache(prompt, chunk, fileName); ok {
		return chunkOutcome{cases: cases}
	}

	callResult := p.caller.Generate(ctx, prompt, llm.WithGenerateSystem(SystemPrompt))
	if !callResult.Success {
		reason := models.ReasonModelError
		if ctx.Err() != nil {
			reason = models.ReasonCancelled
		}
		return chunkOutcome{failure: &models.ChunkFailure{
			ChunkIndex: chunk.Index,
			Reason:     reason,
			Message:    callResult.Err.Error(),
			Attempts:   callResult.Attempts,
		}}
	}

	raw := callResult.Response.Text
	cases, err := p.validator.Parse(raw)

	// 输出不符合模式时补发纠正提示，次数受限
	for reprompt := 0; err != nil && reprompt < p.cfg.RepromptLimit; reprompt++ {
		if _, ok := IsSchemaError(err); !ok {
			break
		}

		p.logger.WithFields(logrus.Fields{
			"chunk": chunk.Index,
			"error": err.Error(),
		}).Warn("Malformed model output, re-prompting")

		messages := p.builder.BuildReprompt(prompt, raw)
		callResult = p.caller.Chat(ctx, messages, llm.WithChatSystem(SystemPrompt))
		if !callResult.Success {
			return chunkOutcome{failure: &models.ChunkFailure{
				ChunkIndex: chunk.Index,
				Reason:     models.ReasonModelError,
				Message:    callResult.Err.Error(),
				Attempts:   callResult.Attempts,
			}}
		}
		raw = callResult.Response.Text
		cases, err = p.validator.Parse(raw)
	}

	if err != nil {
		return chunkOutcome{failure: &models.ChunkFailure{
			ChunkIndex: chunk.Index,
			Reason:     models.ReasonSchemaError,
			Message:    err.Error(),
			Attempts:   callResult.Attempts,
		}}
	}

	p.storeCache(prompt, raw)
	return chunkOutcome{cases: p.annotate(cases, chunk, fileName)}
}

// annotate 为用例补充可追溯性字段
func (p *Pipeline) annotate(cases []models.TestCase, chunk document.Chunk, fileName string) []models.TestCase {
	label := fileName
	if chunk.Section != "" {
		label = fileName + " / " + chunk.Section
	}
	for i := range cases {
		cases[i].ChunkIndex = chunk.Index
		cases[i].SourceLabel = label
	}
	return cases
}

// lookupCache 查询模型响应缓存
// 缓存内容解析失败时视为未命中，重新调用模型
func (p *Pipeline) lookupCache(prompt string, chunk document.Chunk, fileName string) ([]models.TestCase, bool) {
	if p.cache == nil {
		return nil, false
	}

	key := cache.ResponseKey(p.caller.Client().Name(), prompt)
	raw, found, err := p.cache.Get(key)
	if err != nil || !found {
		return nil, false
	}

	cases, err := p.validator.Parse(raw)
	if err != nil {
		return nil, false
	}

	p.logger.WithField("chunk", chunk.Index).Debug("Model response served from cache")
	return p.annotate(cases, chunk, fileName), true
}

// storeCache 缓存通过校验的模型响应
func (p *Pipeline) storeCache(prompt, raw string) {
	if p.cache == nil {
		return
	}

	key := cache.ResponseKey(p.caller.Client().Name(), prompt)
	if err := p.cache.Set(key, raw, p.cfg.CacheTTL); err != nil {
		p.logger.WithError(err).Debug("Failed to cache model response")
	}
}

// persistTestCases 将合并后的用例持久化到仓储
func (p *Pipeline) persistTestCases(runID string, cases []models.TestCase) {
	if p.repo == nil || len(cases) == 0 {
		return
	}

	records := make([]*models.TestCaseRecord, 0, len(cases))
	for _, tc := range cases {
		steps, err := json.Marshal(tc.Steps)
		if err != nil {
			continue
		}
		records = append(records, &models.TestCaseRecord{
			RunID:          runID,
			CaseID:         tc.ID,
			Title:          tc.Title,
			Description:    tc.Description,
			Preconditions:  tc.Preconditions,
			Steps:          steps,
			ExpectedResult: tc.ExpectedResult,
			ChunkIndex:     tc.ChunkIndex,
			SourceLabel:    tc.SourceLabel,
		})
	}

	if err := p.repo.SaveTestCases(runID, records); err != nil {
		p.logger.WithError(err).Warn("Failed to persist test cases")
	}
}

// markLoaded 标记解析完成
func (p *Pipeline) markLoaded(ctx context.Context, runID string) {
	if p.status != nil {
		_ = p.status.MarkAsLoaded(ctx, runID)
	}
}

// fail 将任务标记为失败并返回错误
func (p *Pipeline) fail(ctx context.Context, result *RunResult, err error) (*RunResult, error) {
	result.Status = models.RunStatusFailed

	p.logger.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"error":  err.Error(),
	}).Error("Generation run failed")

	if p.status != nil {
		_ = p.status.MarkAsFailed(ctx, result.RunID, err.Error())
	}
	return result, err
}
