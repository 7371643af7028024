package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anoixa/image-relay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache(t *testing.T) *MemoryCache {
	t.Helper()
	c, err := NewMemoryCache(MemoryConfig{
		NumCounters: 1000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type imageMeta struct {
	ID          uint   `json:"id"`
	ContentType string `json:"content_type"`
	Artifact    string `json:"artifact"`
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := newTestMemoryCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", imageMeta{ID: 1, ContentType: "image/jpeg"}, time.Minute))

	var got imageMeta
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, imageMeta{ID: 1, ContentType: "image/jpeg"}, got)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k"))
	err = c.Get(ctx, "k", &got)
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryCache_Bytes(t *testing.T) {
	c := newTestMemoryCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "raw", []byte("abc"), 0))

	var got []byte
	require.NoError(t, c.Get(ctx, "raw", &got))
	assert.Equal(t, []byte("abc"), got)
}

func TestMemoryCache_Miss(t *testing.T) {
	c := newTestMemoryCache(t)

	var s string
	err := c.Get(context.Background(), "missing", &s)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "memory", c.Name())
}

func TestKeyBuilder(t *testing.T) {
	assert.Equal(t, "image_meta:42", ImageMeta.BuildID(uint(42)))
	assert.Equal(t, "server_ip", ServerIP.Build())
	assert.Equal(t, "a:b:c", NewKeyBuilder("a").Build("b", "c"))
}

func TestHelper_ImageMeta(t *testing.T) {
	h := NewHelper(newTestMemoryCache(t), 0)
	ctx := context.Background()

	var got imageMeta
	assert.True(t, IsCacheMiss(h.GetImageMeta(ctx, 7, &got)))

	require.NoError(t, h.CacheImageMeta(ctx, 7, imageMeta{ID: 7, Artifact: "1760000000000_7.jpeg"}))
	require.NoError(t, h.GetImageMeta(ctx, 7, &got))
	assert.Equal(t, "1760000000000_7.jpeg", got.Artifact)

	require.NoError(t, h.DeleteImageMeta(ctx, 7))
	assert.True(t, IsCacheMiss(h.GetImageMeta(ctx, 7, &got)))
}

func TestHelper_ServerIP(t *testing.T) {
	h := NewHelper(newTestMemoryCache(t), 0)

	var calls int32
	lookup := func() string {
		atomic.AddInt32(&calls, 1)
		return "192.168.1.20"
	}

	assert.Equal(t, "192.168.1.20", h.ServerIP(context.Background(), lookup))
	assert.Equal(t, "192.168.1.20", h.ServerIP(context.Background(), lookup))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHelper_NilProvider(t *testing.T) {
	h := NewHelper(nil, 0)

	assert.Equal(t, "localhost", h.ServerIP(context.Background(), func() string { return "localhost" }))
	assert.NoError(t, h.CacheImageMeta(context.Background(), 1, imageMeta{}))
	assert.True(t, IsCacheMiss(h.GetImageMeta(context.Background(), 1, &imageMeta{})))
}

func TestAddJitter(t *testing.T) {
	base := time.Minute
	for i := 0; i < 100; i++ {
		d := addJitter(base)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+base/10)
	}
	assert.Equal(t, time.Duration(0), addJitter(0))
}

func TestNewProvider(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		p, err := NewProvider(&config.Config{CacheType: "memory"})
		require.NoError(t, err)
		defer p.Close()
		assert.Equal(t, "memory", p.Name())
	})

	t.Run("redis unreachable falls back to memory", func(t *testing.T) {
		p, err := NewProvider(&config.Config{CacheType: "redis", CacheRedisAddr: "127.0.0.1:1"})
		require.NoError(t, err)
		defer p.Close()
		assert.Equal(t, "memory", p.Name())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewProvider(&config.Config{CacheType: "memcached"})
		assert.Error(t, err)
	})
}
