package storage

import (
	"io"
	"time"
)

// FileInfo 存储文件的元数据
type FileInfo struct {
	ID         string    // 文件唯一标识符
	Name       string    // 原始文件名
	Size       int64     // 文件大小(字节)
	MimeType   string    // 文件MIME类型
	Path       string    // 内部存储路径(实现相关)
	UploadedAt time.Time // 上传时间
}

// Storage 文档存储接口
// 保存待处理的源文档与生成的产物文件，可以有不同实现(本地文件系统、MinIO等)
type Storage interface {
	// Save 保存文件并返回文件信息
	Save(reader io.Reader, filename string) (FileInfo, error)

	// Get 获取文件内容
	Get(id string) (io.ReadCloser, error)

	// Stat 获取文件元数据
	Stat(id string) (FileInfo, error)

	// Delete 删除文件
	Delete(id string) error

	// List 列出所有文件
	List() ([]FileInfo, error)

	// Exists 检查文件是否存在
	Exists(id string) (bool, error)
}
