package storage

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/webdav"
)

// newWebDAVServer 启动内存 WebDAV 服务
func newWebDAVServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(&webdav.Handler{
		FileSystem: webdav.NewMemFS(),
		LockSystem: webdav.NewMemLS(),
	})
	t.Cleanup(srv.Close)
	return srv
}

func TestWebDAVStorageValidation(t *testing.T) {
	_, err := NewWebDAVStorage(WebDAVConfig{URL: ""})
	require.Error(t, err)
	assert.Equal(t, "webdav URL is required", err.Error())
}

func TestWebDAVStorage_RoundTrip(t *testing.T) {
	srv := newWebDAVServer(t)

	s, err := NewWebDAVStorage(WebDAVConfig{URL: srv.URL, RootPath: "/image-relay/"})
	require.NoError(t, err)
	assert.Equal(t, "webdav:"+srv.URL+"/image-relay", s.Name())
	require.NoError(t, s.Health(context.Background()))

	ctx := context.Background()
	name := ArtifactName(fixedTime, 3, ".jpeg")
	require.NoError(t, s.SaveWithContext(ctx, name, strings.NewReader("jpeg-bytes")))

	exists, err := s.Exists(ctx, name)
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := s.GetWithContext(ctx, name)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, s.DeleteWithContext(ctx, name))
	exists, err = s.Exists(ctx, name)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWebDAVStorage_NestedPath(t *testing.T) {
	srv := newWebDAVServer(t)

	s, err := NewWebDAVStorage(WebDAVConfig{URL: srv.URL, RootPath: "/data"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.SaveWithContext(ctx, "2025/10/09/a.jpeg", strings.NewReader("a")))

	exists, err := s.Exists(ctx, "2025/10/09/a.jpeg")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWebDAVStorage_ArtifactWriter(t *testing.T) {
	srv := newWebDAVServer(t)

	s, err := NewWebDAVStorage(WebDAVConfig{URL: srv.URL})
	require.NoError(t, err)

	name, err := NewArtifactWriter(s).Persist(context.Background(), []byte("img"), fixedTime, 9, ".jpeg")
	require.NoError(t, err)
	assert.Equal(t, "1760000000000_9.jpeg", name)
}

// TestWebDAVStorageFullPath 测试路径生成逻辑
func TestWebDAVStorageFullPath(t *testing.T) {
	tests := []struct {
		name        string
		rootPath    string
		storagePath string
		want        string
	}{
		{"empty root path", "", "1760000000000_1.jpeg", "/1760000000000_1.jpeg"},
		{"with root path", "/images", "1760000000000_1.jpeg", "/images/1760000000000_1.jpeg"},
		{"storage path with leading slash", "", "/test.jpeg", "/test.jpeg"},
		{"nested path", "/uploads", "2025/10/09/a.jpeg", "/uploads/2025/10/09/a.jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &WebDAVStorage{rootPath: tt.rootPath}
			assert.Equal(t, tt.want, s.fullPath(tt.storagePath))
		})
	}
}

// TestWebDAVStorageContextCancellation 测试上下文取消处理
func TestWebDAVStorageContextCancellation(t *testing.T) {
	s := &WebDAVStorage{baseURL: "https://example.com"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	t.Run("SaveWithContext", func(t *testing.T) {
		assert.ErrorIs(t, s.SaveWithContext(ctx, "test.jpeg", nil), context.Canceled)
	})
	t.Run("GetWithContext", func(t *testing.T) {
		_, err := s.GetWithContext(ctx, "test.jpeg")
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("DeleteWithContext", func(t *testing.T) {
		assert.ErrorIs(t, s.DeleteWithContext(ctx, "test.jpeg"), context.Canceled)
	})
	t.Run("Exists", func(t *testing.T) {
		_, err := s.Exists(ctx, "test.jpeg")
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("Health", func(t *testing.T) {
		assert.ErrorIs(t, s.Health(ctx), context.Canceled)
	})
}

func TestIsCollectionExistsError(t *testing.T) {
	assert.False(t, isCollectionExistsError(nil))
	assert.True(t, isCollectionExistsError(errors.New("405 Method Not Allowed")))
	assert.True(t, isCollectionExistsError(errors.New("MkCol /a: 409")))
	assert.False(t, isCollectionExistsError(errors.New("connection refused")))
}

// TestWebDAVStorageName 测试存储名称
func TestWebDAVStorageName(t *testing.T) {
	assert.Equal(t, "webdav", (&WebDAVStorage{}).Name())
}
