package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocalStorage_LazyDirectory 根目录在第一次写入时创建
func TestLocalStorage_LazyDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads", "nested")
	storage, err := NewLocalStorage(root)
	require.NoError(t, err)

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err), "directory should not exist before first write")

	require.NoError(t, storage.SaveWithContext(context.Background(), "a.jpeg", strings.NewReader("x")))

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

// TestLocalStorage_ConcurrentFirstWrite 并发首次写入只创建一次目录且全部成功
func TestLocalStorage_ConcurrentFirstWrite(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	storage, err := NewLocalStorage(root)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := ArtifactName(fixedTime, uint(i+1), ".jpeg")
			errs <- storage.SaveWithContext(context.Background(), name, strings.NewReader("content"))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

// TestLocalStorage_ExistingDirectory 目录已存在时正常写入
func TestLocalStorage_ExistingDirectory(t *testing.T) {
	root := t.TempDir()
	storage, err := NewLocalStorage(root)
	require.NoError(t, err)

	require.NoError(t, storage.SaveWithContext(context.Background(), "one.jpeg", strings.NewReader("1")))
	require.NoError(t, storage.SaveWithContext(context.Background(), "two.jpeg", strings.NewReader("2")))

	data, err := os.ReadFile(filepath.Join(root, "two.jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
}

// TestLocalStorage_RoundTrip 写入、读取、删除
func TestLocalStorage_RoundTrip(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.SaveWithContext(ctx, "sub/dir/file.jpeg", strings.NewReader("payload")))

	exists, err := storage.Exists(ctx, "sub/dir/file.jpeg")
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := storage.GetWithContext(ctx, "sub/dir/file.jpeg")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	_ = r.(io.Closer).Close()

	require.NoError(t, storage.DeleteWithContext(ctx, "sub/dir/file.jpeg"))
	exists, err = storage.Exists(ctx, "sub/dir/file.jpeg")
	require.NoError(t, err)
	assert.False(t, exists)

	// 重复删除不报错
	assert.NoError(t, storage.DeleteWithContext(ctx, "sub/dir/file.jpeg"))

	_, err = storage.GetWithContext(ctx, "sub/dir/file.jpeg")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestLocalStorage_PathTraversal_Prevention 测试路径遍历防护
func TestLocalStorage_PathTraversal_Prevention(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	traversalAttempts := []string{
		"../../../etc/passwd",
		"..\\..\\..\\windows\\system32\\config\\sam",
		"../../.env",
		"..",
		".",
		"",
		"folder/../../../etc/passwd",
		"/absolute/path",
		"file\x00.txt",
		"file\n.txt",
		"file;rm -rf",
		"dir/",
	}

	for _, attempt := range traversalAttempts {
		t.Run("path_"+strings.ReplaceAll(attempt, "\x00", "NULL"), func(t *testing.T) {
			err := storage.SaveWithContext(ctx, attempt, strings.NewReader("evil"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid")

			_, err = storage.GetWithContext(ctx, attempt)
			assert.Error(t, err)

			assert.Error(t, storage.DeleteWithContext(ctx, attempt))
		})
	}
}

// TestLocalStorage_CanceledContext 已取消的 ctx 不写入
func TestLocalStorage_CanceledContext(t *testing.T) {
	root := t.TempDir()
	storage, err := NewLocalStorage(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = storage.SaveWithContext(ctx, "a.jpeg", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(filepath.Join(root, "a.jpeg"))
	assert.True(t, os.IsNotExist(statErr))
}

// TestLocalStorage_UnwritableRoot 根目录无法创建时返回错误，Health 同样失败
func TestLocalStorage_UnwritableRoot(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0600))

	storage, err := NewLocalStorage(filepath.Join(blocker, "uploads"))
	require.NoError(t, err)

	err = storage.SaveWithContext(context.Background(), "a.jpeg", strings.NewReader("x"))
	assert.Error(t, err)
	assert.Error(t, storage.Health(context.Background()))
}

func TestNewLocalStorage_EmptyPath(t *testing.T) {
	_, err := NewLocalStorage("  ")
	assert.Error(t, err)
}

// TestIsValidStoragePath 测试路径校验函数
func TestIsValidStoragePath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantValid bool
	}{
		{"artifact", "1760000000000_42.jpeg", true},
		{"nested", "2024/01/15/a.jpeg", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"absolute_unix", "/etc/passwd", false},
		{"absolute_windows", "C:\\file.txt", false},
		{"traversal", "../file.txt", false},
		{"null_byte", "file\x00.txt", false},
		{"newline", "file\n.txt", false},
		{"space", "my file.jpeg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantValid, IsValidStoragePath(tt.path), "path: %q", tt.path)
		})
	}
}

// BenchmarkIsValidStoragePath 基准测试
func BenchmarkIsValidStoragePath(b *testing.B) {
	for i := 0; i < b.N; i++ {
		IsValidStoragePath("1760000000000_42.jpeg")
	}
}
