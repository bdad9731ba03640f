package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyerfyer/testcase-gen-system/api/handler"
	"github.com/fyerfyer/testcase-gen-system/internal/document"
	"github.com/fyerfyer/testcase-gen-system/internal/generator"
	"github.com/fyerfyer/testcase-gen-system/internal/llm"
	"github.com/fyerfyer/testcase-gen-system/internal/models"
	"github.com/fyerfyer/testcase-gen-system/internal/repository"
	"github.com/fyerfyer/testcase-gen-system/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubClient 固定返回合法用例JSON的模拟客户端
type stubClient struct{}

func (c *stubClient) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return &llm.Response{Text: `[{"title": "login case", "steps": ["open page"], "expected_result": "dashboard shown"}]`}, nil
}

func (c *stubClient) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	return c.Generate(ctx, "")
}

func (c *stubClient) Name() string { return "stub-model" }

// setupTestRouter 搭建带内存依赖的完整路由
func setupTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api_test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.GenerationRun{}, &models.TestCaseRecord{}))

	repo := repository.NewRunRepositoryWithDB(db)
	status := generator.NewRunStatusManager(repo, nil)

	caller := llm.NewCaller(&stubClient{}, llm.RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1.0,
	}, nil)
	pipeline := generator.NewPipeline(
		caller,
		document.NewTokenSplitter(),
		generator.WithStatusManager(status),
		generator.WithRepository(repo),
	)

	fileStorage, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	docHandler := handler.NewDocumentHandler(fileStorage)
	runHandler := handler.NewRunHandler(pipeline, status, repo, nil, fileStorage, t.TempDir())

	return SetupRouter(docHandler, runHandler)
}

// uploadDocument 通过multipart请求上传一个文档，返回file_id
func uploadDocument(t *testing.T, router *gin.Engine, filename, content string) string {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, "上传应成功: %s", w.Body.String())

	var resp struct {
		Code int `json:"code"`
		Data struct {
			FileID string `json:"file_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.FileID)
	return resp.Data.FileID
}

func TestHealthCheck(t *testing.T) {
	router := setupTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	router := setupTestRouter(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", "data.xlsx")
	_, _ = part.Write([]byte("binary"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code, "不支持的文件类型应被拒绝")
}

func TestGenerationFlow(t *testing.T) {
	router := setupTestRouter(t)

	fileID := uploadDocument(t, router, "spec.txt",
		"The system shall lock accounts after five failed login attempts.")

	// 启动同步生成任务
	payload := fmt.Sprintf(`{"document_id": %q, "file_name": "spec.txt"}`, fileID)
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, "同步任务应成功: %s", w.Body.String())

	var startResp struct {
		Data struct {
			RunID         string `json:"run_id"`
			Status        string `json:"status"`
			TestCaseCount int    `json:"test_case_count"`
			OutputPath    string `json:"output_path"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &startResp))
	assert.Equal(t, "written", startResp.Data.Status)
	assert.Equal(t, 1, startResp.Data.TestCaseCount)
	runID := startResp.Data.RunID

	// 查询任务状态
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var statusResp struct {
		Data struct {
			Status   string `json:"status"`
			Progress int    `json:"progress"`
			FileName string `json:"filename"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statusResp))
	assert.Equal(t, "written", statusResp.Data.Status)
	assert.Equal(t, 100, statusResp.Data.Progress)
	assert.Equal(t, "spec.txt", statusResp.Data.FileName)

	// 下载产物
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/artifact", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "login case")

	// 无失败分块时失败报告应为404
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/failures", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 任务列表应包含该任务
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs?status=written", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), runID)

	// 删除任务
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/runs/"+runID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/"+runID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "删除后的任务不应再能查询到")
}

func TestStartRunMissingDocument(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs",
		bytes.NewBufferString(`{"document_id": "no-such-doc"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartRunOutputConflict(t *testing.T) {
	router := setupTestRouter(t)

	fileID := uploadDocument(t, router, "spec.txt", "Some requirement text for conflict test.")
	payload := fmt.Sprintf(`{"document_id": %q, "file_name": "spec.txt"}`, fileID)

	// 第一次运行写出产物
	req := httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// 未允许覆盖的第二次运行应冲突
	req = httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code, "未允许覆盖时重复产物路径应返回409")

	// 显式覆盖后成功
	overwrite := fmt.Sprintf(`{"document_id": %q, "file_name": "spec.txt", "overwrite": true}`, fileID)
	req = httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewBufferString(overwrite))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDocumentListAndDelete(t *testing.T) {
	router := setupTestRouter(t)

	fileID := uploadDocument(t, router, "spec.md", "# Requirements\n\nSome content.")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), fileID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/documents/"+fileID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/documents/"+fileID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "重复删除应返回404")
}

func TestTraceIDPropagation(t *testing.T) {
	router := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "trace-123", w.Header().Get("X-Trace-ID"), "请求携带的追踪ID应原样返回")
}
