package cache

import (
	"context"
	"math/rand"
	"time"
)

const (
	// DefaultImageMetaExpiration 图片元数据缓存过期时间
	DefaultImageMetaExpiration = 10 * time.Minute

	// DefaultServerIPExpiration 服务器地址缓存过期时间，网卡变化后较快生效
	DefaultServerIPExpiration = 30 * time.Second
)

// addJitter 添加随机抖动（+0~10%），防止缓存雪崩
func addJitter(duration time.Duration) time.Duration {
	if duration < 10 {
		return duration
	}
	return duration + time.Duration(rand.Int63n(int64(duration)/10))
}

// Helper 缓存辅助工具
type Helper struct {
	provider     Provider
	imageMetaTTL time.Duration
}

// NewHelper 创建缓存辅助工具，ttl <= 0 时使用默认值
func NewHelper(provider Provider, imageMetaTTL time.Duration) *Helper {
	if imageMetaTTL <= 0 {
		imageMetaTTL = DefaultImageMetaExpiration
	}
	return &Helper{
		provider:     provider,
		imageMetaTTL: imageMetaTTL,
	}
}

// Provider 返回底层缓存
func (h *Helper) Provider() Provider {
	return h.provider
}

// CacheImageMeta 缓存图片元数据
func (h *Helper) CacheImageMeta(ctx context.Context, id uint, meta interface{}) error {
	if h.provider == nil {
		return nil
	}
	return h.provider.Set(ctx, ImageMeta.BuildID(id), meta, addJitter(h.imageMetaTTL))
}

// GetImageMeta 获取缓存的图片元数据
func (h *Helper) GetImageMeta(ctx context.Context, id uint, dest interface{}) error {
	if h.provider == nil {
		return ErrCacheMiss
	}
	return h.provider.Get(ctx, ImageMeta.BuildID(id), dest)
}

// DeleteImageMeta 删除缓存的图片元数据
func (h *Helper) DeleteImageMeta(ctx context.Context, id uint) error {
	if h.provider == nil {
		return nil
	}
	return h.provider.Delete(ctx, ImageMeta.BuildID(id))
}

// ServerIP 返回缓存的服务器地址，未命中时调用 lookup 并写回缓存
func (h *Helper) ServerIP(ctx context.Context, lookup func() string) string {
	key := ServerIP.Build()

	if h.provider != nil {
		var ip string
		if err := h.provider.Get(ctx, key, &ip); err == nil && ip != "" {
			return ip
		}
	}

	ip := lookup()
	if h.provider != nil {
		_ = h.provider.Set(ctx, key, ip, DefaultServerIPExpiration)
	}
	return ip
}
