package models

import "errors"

var (
	// ErrRunNotFound 生成任务不存在错误
	ErrRunNotFound = errors.New("generation run not found")

	// ErrInvalidRunStatus 无效的任务状态错误
	ErrInvalidRunStatus = errors.New("invalid run status")

	// ErrNoContent 文档没有可用文本内容错误
	ErrNoContent = errors.New("document contains no extractable text")

	// ErrRunCancelled 任务被取消错误
	ErrRunCancelled = errors.New("generation run cancelled")
)
