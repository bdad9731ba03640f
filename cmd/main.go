package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fyerfyer/testcase-gen-system/api"
	"github.com/fyerfyer/testcase-gen-system/api/middleware"

	"github.com/fyerfyer/testcase-gen-system/api/handler"
	tcconfig "github.com/fyerfyer/testcase-gen-system/config"
	"github.com/fyerfyer/testcase-gen-system/internal/cache"
	"github.com/fyerfyer/testcase-gen-system/internal/database"
	"github.com/fyerfyer/testcase-gen-system/internal/document"
	"github.com/fyerfyer/testcase-gen-system/internal/generator"
	"github.com/fyerfyer/testcase-gen-system/internal/llm"
	"github.com/fyerfyer/testcase-gen-system/internal/output"
	"github.com/fyerfyer/testcase-gen-system/internal/repository"
	"github.com/fyerfyer/testcase-gen-system/pkg/storage"
	"github.com/fyerfyer/testcase-gen-system/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// 配置选项
type config struct {
	Port         int           // 服务端口
	Mode         string        // 运行模式 (debug/release)
	StoragePath  string        // 文件存储路径
	LLMProvider  string        // 大语言模型提供商
	LLMModel     string        // 大语言模型名称
	LLMAPIKey    string        // 大语言模型API密钥
	LLMTimeout   time.Duration // 单次模型调用超时
	LLMRetries   int           // 模型调用最大重试次数
	ChunkSize    int           // 分块token预算
	ChunkOverlap int           // 分块重叠token数
	Concurrency  int           // 流水线并发处理的分块数
	CacheType    string        // 缓存类型
	LogLevel     string        // 日志级别
	LogFile      string        // 日志文件路径，为空只输出到stdout
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时
	DataDir      string        // 数据目录路径
	OutputDir    string        // 产物输出目录
	ConfigFile   string        // 配置文件路径
	InputFile    string        // 一次性模式的输入文档路径
	OutputFile   string        // 一次性模式的产物路径
	Overwrite    bool          // 一次性模式是否允许覆盖已有产物
	// 任务队列相关配置
	QueueEnabled     bool          // 是否启用任务队列
	QueueType        string        // 任务队列类型
	RedisAddr        string        // Redis 地址
	RedisPassword    string        // Redis 密码
	RedisDB          int           // Redis 数据库编号
	QueueConcurrency int           // 任务队列处理并发数
	QueueRetryLimit  int           // 任务重试次数
	QueueRetryDelay  time.Duration // 任务重试延迟
}

func main() {
	// 加载.env文件(如果存在)，便于本地开发注入API密钥
	_ = godotenv.Load()

	// 解析命令行参数
	cfg := parseFlags()

	// 加载配置文件(如果指定)
	var appConfig *tcconfig.Config
	var err error
	if cfg.ConfigFile != "" {
		appConfig, err = tcconfig.Load(cfg.ConfigFile)
		if err != nil {
			log.Printf("Warning: Failed to load config file: %v, using command line args", err)
		} else {
			// 使用配置文件中的值更新相关设置
			updateConfigFromFile(&cfg, appConfig)
		}
	}

	// 设置Gin模式
	gin.SetMode(cfg.Mode)

	// 初始化日志
	logger := setupLogger(cfg)
	logger.Info("Starting Test Case Generation System...")

	// 初始化数据库
	if err := setupDatabase(cfg, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// 创建文件存储服务
	fileStorage, err := setupStorage(cfg, appConfig)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 创建大语言模型客户端
	llmClient, err := setupLLM(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// 创建带重试编排的模型调用器
	retryConfig := llm.DefaultRetryConfig()
	retryConfig.MaxAttempts = cfg.LLMRetries
	caller := llm.NewCaller(llmClient, retryConfig, logger)

	// 创建缓存服务
	cacheService, err := setupCache(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize cache: %v", err)
	}

	// 初始化任务队列（如果启用）
	var queue taskqueue.Queue
	var queueConfig *taskqueue.Config
	if cfg.QueueEnabled {
		queue, queueConfig, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		logger.Info("Task queue initialized successfully")
	}

	// 创建文档分块器
	splitter := document.NewTokenSplitter(
		document.WithMaxTokens(cfg.ChunkSize),
		document.WithOverlapTokens(cfg.ChunkOverlap),
	)

	// 初始化任务仓储与状态管理器
	repo := repository.NewRunRepository()
	statusManager := generator.NewRunStatusManager(repo, logger)

	// 初始化生成流水线
	pipelineConfig := generator.DefaultPipelineConfig()
	pipelineConfig.Concurrency = cfg.Concurrency
	pipeline := generator.NewPipeline(
		caller,
		splitter,
		generator.WithStatusManager(statusManager),
		generator.WithRepository(repo),
		generator.WithResponseCache(cacheService),
		generator.WithPipelineLogger(logger),
		generator.WithPipelineConfig(pipelineConfig),
	)

	// 一次性模式：处理单个文档后退出，不启动HTTP服务
	if cfg.InputFile != "" {
		if err := runOnce(pipeline, cfg, logger); err != nil {
			logger.Fatalf("Generation failed: %v", err)
		}
		return
	}

	// 如果启用了队列，启动任务工作者处理异步生成任务
	if queue != nil {
		worker, err := setupWorker(queue, queueConfig, pipeline, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task worker: %v", err)
		}
		go func() {
			if err := worker.Start(); err != nil {
				logger.Fatalf("Task worker stopped unexpectedly: %v", err)
			}
		}()
		defer worker.Stop()
		logger.Info("Generation task worker started")
	}

	// 初始化API处理器
	docHandler := handler.NewDocumentHandler(fileStorage)
	runHandler := handler.NewRunHandler(pipeline, statusManager, repo, queue, fileStorage, cfg.OutputDir)

	// 设置路由
	r := api.SetupRouter(docHandler, runHandler)

	// 启动HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		// 启动服务
		logger.Infof("Server is running on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// 创建带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() config {
	cfg := config{}

	// 服务配置
	flag.IntVar(&cfg.Port, "port", 8080, "Server port")
	flag.StringVar(&cfg.Mode, "mode", "debug", "Run mode (debug/release)")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Log file path (empty for stdout only)")
	flag.DurationVar(&cfg.ReadTimeout, "read-timeout", 30*time.Second, "Read timeout")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", 30*time.Second, "Write timeout")

	// 存储配置
	flag.StringVar(&cfg.StoragePath, "storage", "./data/uploads", "File storage path")

	// LLM配置
	flag.StringVar(&cfg.LLMProvider, "llm-provider", "anthropic", "LLM provider (anthropic/openai)")
	flag.StringVar(&cfg.LLMModel, "llm-model", llm.ModelClaudeSonnet4, "LLM model name")
	flag.StringVar(&cfg.LLMAPIKey, "llm-key", "", "LLM API key")
	flag.DurationVar(&cfg.LLMTimeout, "llm-timeout", 60*time.Second, "Timeout for a single LLM call")
	flag.IntVar(&cfg.LLMRetries, "llm-retries", 3, "Max attempts per LLM call")

	// 文档分块配置
	flag.IntVar(&cfg.ChunkSize, "chunk-size", 500, "Token budget per document chunk")
	flag.IntVar(&cfg.ChunkOverlap, "chunk-overlap", 50, "Overlap tokens between adjacent chunks")

	// 流水线配置
	flag.IntVar(&cfg.Concurrency, "concurrency", 4, "Number of chunks processed concurrently")

	// 缓存配置
	flag.StringVar(&cfg.CacheType, "cache", "memory", "Cache type (memory/redis)")

	// 数据目录配置
	flag.StringVar(&cfg.DataDir, "data-dir", "./data", "Data directory path")
	flag.StringVar(&cfg.OutputDir, "output-dir", "./data/outputs", "Artifact output directory")

	// 配置文件
	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to config file")

	// 一次性模式配置
	flag.StringVar(&cfg.InputFile, "input", "", "Process documents and exit, comma-separated paths (no HTTP server)")
	flag.StringVar(&cfg.OutputFile, "output", "", "Artifact path for one-shot mode")
	flag.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing artifact in one-shot mode")

	// 任务队列配置
	flag.BoolVar(&cfg.QueueEnabled, "queue", false, "Enable task queue")
	flag.StringVar(&cfg.QueueType, "queue-type", "redis", "Task queue type (redis)")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "Redis address for task queue")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database number")
	flag.IntVar(&cfg.QueueConcurrency, "queue-concurrency", 4, "Task queue concurrency")
	flag.IntVar(&cfg.QueueRetryLimit, "queue-retry", 2, "Max retry attempts for failed tasks")
	flag.DurationVar(&cfg.QueueRetryDelay, "queue-retry-delay", time.Minute, "Delay between retry attempts")

	// 从环境变量获取API密钥（优先级高于命令行参数），密钥不进入日志
	if key := os.Getenv("CLAUDE_API_KEY"); key != "" {
		cfg.LLMAPIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = key
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLMAPIKey = key
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.RedisAddr = redisAddr
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}

	flag.Parse()
	return cfg
}

// updateConfigFromFile 从配置文件更新命令行参数
func updateConfigFromFile(cfg *config, appConfig *tcconfig.Config) {
	// 只更新未在命令行上明确设置的参数

	// 服务配置
	if flag.Lookup("port").DefValue == fmt.Sprint(cfg.Port) && appConfig.Server.Port > 0 {
		cfg.Port = appConfig.Server.Port
	}

	// 存储配置
	if flag.Lookup("storage").DefValue == cfg.StoragePath && appConfig.Storage.Path != "" {
		cfg.StoragePath = appConfig.Storage.Path
	}

	// LLM配置
	if flag.Lookup("llm-provider").DefValue == cfg.LLMProvider && appConfig.LLM.Provider != "" {
		cfg.LLMProvider = appConfig.LLM.Provider
	}
	if flag.Lookup("llm-model").DefValue == cfg.LLMModel && appConfig.LLM.Model != "" {
		cfg.LLMModel = appConfig.LLM.Model
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = appConfig.LLM.APIKey
	}
	if appConfig.LLM.Timeout > 0 {
		cfg.LLMTimeout = time.Duration(appConfig.LLM.Timeout) * time.Second
	}
	if flag.Lookup("llm-retries").DefValue == fmt.Sprint(cfg.LLMRetries) && appConfig.LLM.MaxRetries > 0 {
		cfg.LLMRetries = appConfig.LLM.MaxRetries
	}

	// 文档分块配置
	if flag.Lookup("chunk-size").DefValue == fmt.Sprint(cfg.ChunkSize) && appConfig.Document.ChunkSize > 0 {
		cfg.ChunkSize = appConfig.Document.ChunkSize
	}
	if flag.Lookup("chunk-overlap").DefValue == fmt.Sprint(cfg.ChunkOverlap) && appConfig.Document.ChunkOverlap >= 0 {
		cfg.ChunkOverlap = appConfig.Document.ChunkOverlap
	}

	// 流水线配置
	if flag.Lookup("concurrency").DefValue == fmt.Sprint(cfg.Concurrency) && appConfig.Generation.Concurrency > 0 {
		cfg.Concurrency = appConfig.Generation.Concurrency
	}

	// 缓存配置
	if flag.Lookup("cache").DefValue == cfg.CacheType && appConfig.Cache.Type != "" {
		cfg.CacheType = appConfig.Cache.Type
	}

	// 产物输出配置
	if flag.Lookup("output-dir").DefValue == cfg.OutputDir && appConfig.Output.Dir != "" {
		cfg.OutputDir = appConfig.Output.Dir
	}

	// 任务队列配置
	if flag.Lookup("queue").DefValue == fmt.Sprint(cfg.QueueEnabled) {
		cfg.QueueEnabled = appConfig.Queue.Enable
	}
	if flag.Lookup("queue-type").DefValue == cfg.QueueType && appConfig.Queue.Type != "" {
		cfg.QueueType = appConfig.Queue.Type
	}
	if flag.Lookup("redis-addr").DefValue == cfg.RedisAddr && appConfig.Queue.RedisAddr != "" {
		cfg.RedisAddr = appConfig.Queue.RedisAddr
	}
	if flag.Lookup("redis-password").DefValue == cfg.RedisPassword {
		cfg.RedisPassword = appConfig.Queue.RedisPassword
	}
	if flag.Lookup("redis-db").DefValue == fmt.Sprint(cfg.RedisDB) {
		cfg.RedisDB = appConfig.Queue.RedisDB
	}
	if flag.Lookup("queue-concurrency").DefValue == fmt.Sprint(cfg.QueueConcurrency) && appConfig.Queue.Concurrency > 0 {
		cfg.QueueConcurrency = appConfig.Queue.Concurrency
	}
	if flag.Lookup("queue-retry").DefValue == fmt.Sprint(cfg.QueueRetryLimit) && appConfig.Queue.RetryLimit > 0 {
		cfg.QueueRetryLimit = appConfig.Queue.RetryLimit
	}
	if appConfig.Queue.RetryDelay > 0 {
		cfg.QueueRetryDelay = time.Duration(appConfig.Queue.RetryDelay) * time.Second
	}
}

// setupLogger 设置日志系统
func setupLogger(cfg config) *logrus.Logger {
	logger := middleware.GetLogger()

	// 设置日志级别
	switch cfg.LogLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	// 配置日志文件输出(带滚动)
	if cfg.LogFile != "" {
		middleware.SetupFileLogging(cfg.LogFile)
	}

	return logger
}

// setupStorage 设置文件存储服务
// 配置文件指定minio时使用对象存储，否则使用本地存储
func setupStorage(cfg config, appConfig *tcconfig.Config) (storage.Storage, error) {
	if appConfig != nil && appConfig.Storage.Type == "minio" {
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  appConfig.Storage.Endpoint,
			AccessKey: appConfig.Storage.AccessKey,
			SecretKey: appConfig.Storage.SecretKey,
			UseSSL:    appConfig.Storage.UseSSL,
			Bucket:    appConfig.Storage.Bucket,
		})
	}

	// 确保存储目录存在
	if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %v", err)
	}

	// 创建本地存储
	return storage.NewLocalStorage(storage.LocalConfig{
		Path: cfg.StoragePath,
	})
}

// setupLLM 设置大语言模型客户端
func setupLLM(cfg config) (llm.Client, error) {
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM API key is required, set CLAUDE_API_KEY or OPENAI_API_KEY")
	}

	return llm.NewClient(cfg.LLMProvider,
		llm.WithAPIKey(cfg.LLMAPIKey),
		llm.WithModel(cfg.LLMModel),
		llm.WithTimeout(cfg.LLMTimeout),
		llm.WithMaxTokens(4096),
		llm.WithTemperature(0.2),
	)
}

// setupCache 设置缓存服务
func setupCache(cfg config) (cache.Cache, error) {
	cacheConfig := cache.Config{
		Type:            cfg.CacheType,
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}

	// 如果配置了Redis，添加Redis配置
	if cfg.CacheType == "redis" {
		cacheConfig.RedisAddr = cfg.RedisAddr
		cacheConfig.RedisPassword = cfg.RedisPassword
		// Redis数据库编号默认为0
	}

	return cache.NewCache(cacheConfig)
}

// setupDatabase 设置数据库
func setupDatabase(cfg config, logger *logrus.Logger) error {
	dbPath := filepath.Join(cfg.DataDir, "testgen.db")

	// 确保数据目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %v", err)
	}

	// 初始化数据库
	dbConfig := &database.Config{
		Type: "sqlite",
		DSN:  dbPath,
	}

	return database.Setup(dbConfig, logger)
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg config, logger *logrus.Logger) (taskqueue.Queue, *taskqueue.Config, error) {
	// 根据配置创建任务队列
	queueConfig := taskqueue.DefaultConfig()
	queueConfig.RedisAddr = cfg.RedisAddr
	queueConfig.RedisPassword = cfg.RedisPassword
	queueConfig.RedisDB = cfg.RedisDB
	queueConfig.Concurrency = cfg.QueueConcurrency
	queueConfig.RetryLimit = cfg.QueueRetryLimit
	queueConfig.RetryDelay = cfg.QueueRetryDelay

	logger.WithFields(logrus.Fields{
		"type":        cfg.QueueType,
		"redis_addr":  cfg.RedisAddr,
		"concurrency": cfg.QueueConcurrency,
		"retry_limit": cfg.QueueRetryLimit,
	}).Info("Setting up task queue")

	queue, err := taskqueue.NewQueue(cfg.QueueType, queueConfig)
	if err != nil {
		return nil, nil, err
	}

	return queue, queueConfig, nil
}

// runOnce 以一次性模式处理文档
// -input接受逗号分隔的多个路径，多个文档合并为同一次任务
func runOnce(pipeline *generator.Pipeline, cfg config, logger *logrus.Logger) error {
	inputs := strings.Split(cfg.InputFile, ",")
	for i := range inputs {
		inputs[i] = strings.TrimSpace(inputs[i])
	}

	outputPath := cfg.OutputFile
	if outputPath == "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %v", err)
		}
		outputPath = filepath.Join(cfg.OutputDir, output.DefaultArtifactName(filepath.Base(inputs[0]), "json"))
	}

	result, err := pipeline.Run(context.Background(), generator.GenerateInput{
		FilePath:   inputs[0],
		ExtraFiles: inputs[1:],
		OutputPath: outputPath,
		Overwrite:  cfg.Overwrite,
	})
	if err != nil {
		return err
	}

	summary := generator.Summarize(result)
	logger.Info(summary.String())
	if summary.FailureReportPath != "" {
		logger.Warnf("Some chunks failed, see failure report: %s", summary.FailureReportPath)
	}
	return nil
}

// setupWorker 创建任务工作者并注册生成任务处理器
func setupWorker(queue taskqueue.Queue, queueConfig *taskqueue.Config, pipeline *generator.Pipeline, logger *logrus.Logger) (taskqueue.Worker, error) {
	redisQueue, ok := queue.(*taskqueue.RedisQueue)
	if !ok {
		return nil, fmt.Errorf("task worker requires a redis queue, got %T", queue)
	}

	worker := taskqueue.NewRedisWorker(redisQueue, queueConfig)

	genHandler := taskqueue.NewGenerationHandler(pipeline, queue, logger)
	for _, taskType := range genHandler.GetTaskTypes() {
		worker.RegisterHandler(taskType, genHandler)
	}

	return worker, nil
}
