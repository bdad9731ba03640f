package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/testcase-gen-system/api/middleware"
	"github.com/fyerfyer/testcase-gen-system/api/model"
	"github.com/fyerfyer/testcase-gen-system/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DocumentHandler 处理需求文档相关的API请求
type DocumentHandler struct {
	fileStorage storage.Storage // 文件存储服务
	logger      *logrus.Logger  // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(fileStorage storage.Storage) *DocumentHandler {
	return &DocumentHandler{
		fileStorage: fileStorage,
		logger:      middleware.GetLogger(),
	}
}

// UploadDocument 处理文档上传请求
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithField("error", err.Error()).Warn("Invalid document upload request")

		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	filename := req.File.Filename
	if !isValidFileType(filepath.Ext(filename)) {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"不支持的文件类型，仅支持 .pdf, .docx, .md, .markdown, .txt",
		))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": filename,
		}).Error("Failed to open uploaded file")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"无法打开上传的文件",
		))
		return
	}
	defer file.Close()

	fileInfo, err := h.fileStorage.Save(file, filename)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": filename,
		}).Error("Failed to save file")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"保存文件失败",
		))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"file_id":  fileInfo.ID,
		"filename": fileInfo.Name,
		"size":     fileInfo.Size,
	}).Info("File uploaded successfully")

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentUploadResponse{
		FileID:   fileInfo.ID,
		FileName: filename,
		Size:     fileInfo.Size,
	}))
}

// ListDocuments 获取已上传文档列表
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	files, err := h.fileStorage.List()
	if err != nil {
		h.logger.WithField("error", err.Error()).Error("Failed to list documents")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取文档列表失败",
		))
		return
	}

	docs := make([]model.DocumentInfo, 0, len(files))
	for _, f := range files {
		docs = append(docs, model.DocumentInfo{
			FileID:     f.ID,
			FileName:   f.Name,
			Size:       f.Size,
			MimeType:   f.MimeType,
			UploadedAt: f.UploadedAt,
		})
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentListResponse{
		Total:     len(docs),
		Documents: docs,
	}))
}

// DeleteDocument 删除文档
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var req model.DocumentDeleteRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	exists, err := h.fileStorage.Exists(req.ID)
	if err == nil && !exists {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "文档不存在"))
		return
	}

	if err := h.fileStorage.Delete(req.ID); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": req.ID,
		}).Error("Failed to delete document")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"删除文档失败",
		))
		return
	}

	h.logger.WithField("file_id", req.ID).Info("Document deleted successfully")

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentDeleteResponse{
		Success: true,
		FileID:  req.ID,
	}))
}

// isValidFileType 检查文件类型是否受支持
func isValidFileType(ext string) bool {
	validTypes := map[string]bool{
		".pdf":      true,
		".docx":     true,
		".md":       true,
		".markdown": true,
		".txt":      true,
	}
	return validTypes[strings.ToLower(ext)]
}
