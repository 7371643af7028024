package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound 存储中不存在指定文件
var ErrNotFound = errors.New("file not found")

// Provider 存储提供者接口
// 所有后端（local / minio / webdav）都实现此接口，由 ArtifactWriter 统一调用
type Provider interface {
	// SaveWithContext 保存文件到存储
	SaveWithContext(ctx context.Context, identifier string, file io.Reader) error

	// GetWithContext 从存储获取文件
	GetWithContext(ctx context.Context, identifier string) (io.ReadSeeker, error)

	// DeleteWithContext 从存储删除文件
	DeleteWithContext(ctx context.Context, identifier string) error

	// Exists 检查文件是否存在
	Exists(ctx context.Context, identifier string) (bool, error)

	// Health 检查存储健康状态
	Health(ctx context.Context) error

	// Name 返回存储名称
	Name() string
}
