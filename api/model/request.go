package model

import (
	"mime/multipart"
	"time"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// DocumentUploadRequest 需求文档上传请求
type DocumentUploadRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"` // 文件对象
}

// DocumentDeleteRequest 文档删除请求
type DocumentDeleteRequest struct {
	ID string `uri:"id" binding:"required"` // 文档ID
}

// RunStartRequest 启动生成任务请求
type RunStartRequest struct {
	DocumentID string `json:"document_id" binding:"required"`            // 已上传文档的ID
	FileName   string `json:"file_name" binding:"omitempty"`             // 可选的展示文件名，覆盖存储层的内部名称
	Format     string `json:"format" binding:"omitempty,oneof=json csv"` // 产物格式，默认json
	Overwrite  bool   `json:"overwrite"`                                 // 是否允许覆盖已有产物
	Async      bool   `json:"async"`                                     // 是否异步执行
}

// RunStatusRequest 生成任务状态查询请求
type RunStatusRequest struct {
	ID string `uri:"id" binding:"required"` // 生成任务ID
}

// RunListRequest 生成任务列表请求
type RunListRequest struct {
	PaginationRequest
	Status     string     `form:"status" json:"status" binding:"omitempty"`           // 按状态过滤
	DocumentID string     `form:"document_id" json:"document_id" binding:"omitempty"` // 按文档ID过滤
	FileName   string     `form:"file_name" json:"file_name" binding:"omitempty"`     // 按文件名过滤
	StartTime  *time.Time `form:"start_time" json:"start_time" binding:"omitempty"`   // 开始时间
	EndTime    *time.Time `form:"end_time" json:"end_time" binding:"omitempty"`       // 结束时间
}

// RunDeleteRequest 生成任务删除请求
type RunDeleteRequest struct {
	ID string `uri:"id" binding:"required"` // 生成任务ID
}
