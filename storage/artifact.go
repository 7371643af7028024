package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
)

// ArtifactError 写入图片文件失败
type ArtifactError struct {
	Name string
	Err  error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact %s: %v", e.Name, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// ArtifactName 生成文件名：<创建时间毫秒>_<记录ID><扩展名>
// 时间戳在前保证按时间排序，ID 保证同一毫秒内不冲突
func ArtifactName(createdAt time.Time, id uint, ext string) string {
	return strconv.FormatInt(createdAt.UnixMilli(), 10) + "_" + strconv.FormatUint(uint64(id), 10) + ext
}

// ParseArtifactName 解析 ArtifactName 生成的文件名，返回记录 ID
func ParseArtifactName(name string) (id uint, ok bool) {
	base := path.Base(name)
	base = strings.TrimSuffix(base, path.Ext(base))

	ms, idPart, found := strings.Cut(base, "_")
	if !found {
		return 0, false
	}
	if _, err := strconv.ParseInt(ms, 10, 64); err != nil {
		return 0, false
	}
	n, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// ArtifactWriter 将已提交记录的图片字节写入存储
type ArtifactWriter struct {
	provider Provider
}

// NewArtifactWriter 创建 ArtifactWriter
func NewArtifactWriter(provider Provider) *ArtifactWriter {
	return &ArtifactWriter{provider: provider}
}

// Provider 返回底层存储
func (w *ArtifactWriter) Provider() Provider {
	return w.provider
}

// Persist 写入文件并返回文件名
func (w *ArtifactWriter) Persist(ctx context.Context, data []byte, createdAt time.Time, id uint, ext string) (string, error) {
	name := ArtifactName(createdAt, id, ext)
	if err := w.provider.SaveWithContext(ctx, name, bytes.NewReader(data)); err != nil {
		return "", &ArtifactError{Name: name, Err: err}
	}
	return name, nil
}

// Open 打开已写入的文件，返回值实现 io.Closer 时由调用方关闭
func (w *ArtifactWriter) Open(ctx context.Context, name string) (io.ReadSeeker, error) {
	r, err := w.provider.GetWithContext(ctx, name)
	if err != nil {
		return nil, &ArtifactError{Name: name, Err: err}
	}
	return r, nil
}

// Remove 删除文件
func (w *ArtifactWriter) Remove(ctx context.Context, name string) error {
	if err := w.provider.DeleteWithContext(ctx, name); err != nil {
		return &ArtifactError{Name: name, Err: err}
	}
	return nil
}
