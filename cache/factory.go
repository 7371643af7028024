package cache

import (
	"fmt"
	"log"

	"github.com/anoixa/image-relay/config"
)

// NewProvider 根据 cache_type 创建缓存提供者
// redis 不可用时回退到内存缓存，缓存只是加速层，不影响主流程
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.CacheType {
	case "redis":
		provider, err := NewRedisCache(RedisConfig{
			Address:  cfg.CacheRedisAddr,
			Password: cfg.CacheRedisPassword,
			DB:       cfg.CacheRedisDB,
		})
		if err == nil {
			log.Printf("[Cache] Using redis cache at %s", cfg.CacheRedisAddr)
			return provider, nil
		}
		log.Printf("[Cache] Failed to connect redis at %s, falling back to memory cache: %v", cfg.CacheRedisAddr, err)
	case "", "memory":
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.CacheType)
	}

	provider, err := NewMemoryCache(DefaultMemoryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	log.Println("[Cache] Using memory cache")
	return provider, nil
}
