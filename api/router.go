package api

import (
	"github.com/fyerfyer/testcase-gen-system/api/handler"
	"github.com/fyerfyer/testcase-gen-system/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	docHandler *handler.DocumentHandler,
	runHandler *handler.RunHandler,
) *gin.Engine {
	router := gin.New()

	// 应用全局中间件
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.SetTraceID())

	// 在调试模式下记录请求体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	api := router.Group("/api")
	{
		// 需求文档管理API
		docGroup := api.Group("/documents")
		{
			// 上传文档 - POST /api/documents
			docGroup.POST("", docHandler.UploadDocument)

			// 获取文档列表 - GET /api/documents
			docGroup.GET("", docHandler.ListDocuments)

			// 删除文档 - DELETE /api/documents/:id
			docGroup.DELETE("/:id", docHandler.DeleteDocument)
		}

		// 生成任务API
		runGroup := api.Group("/runs")
		{
			// 启动生成任务 - POST /api/runs
			runGroup.POST("", runHandler.StartRun)

			// 获取任务列表 - GET /api/runs
			runGroup.GET("", runHandler.ListRuns)

			// 获取任务状态 - GET /api/runs/:id
			runGroup.GET("/:id", runHandler.GetRunStatus)

			// 下载测试用例产物 - GET /api/runs/:id/artifact
			runGroup.GET("/:id/artifact", runHandler.DownloadArtifact)

			// 下载失败报告 - GET /api/runs/:id/failures
			runGroup.GET("/:id/failures", runHandler.DownloadFailureReport)

			// 删除任务 - DELETE /api/runs/:id
			runGroup.DELETE("/:id", runHandler.DeleteRun)
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
// 如果需要支持跨域请求，可以启用此中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
