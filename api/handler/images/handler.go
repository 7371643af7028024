package images

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/anoixa/image-relay/api/common"
	"github.com/anoixa/image-relay/cache"
	"github.com/anoixa/image-relay/database/models"
	"github.com/anoixa/image-relay/database/repo/images"
	"github.com/anoixa/image-relay/storage"
	"github.com/anoixa/image-relay/utils"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"
)

var metaFetchTimeout = 10 * time.Second

// Meta 缓存的图片元数据，不含图片字节
type Meta struct {
	ID          uint      `json:"id"`
	ContentType string    `json:"content_type"`
	Checksum    string    `json:"checksum"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactName 对应的文件名
func (m *Meta) ArtifactName() string {
	return storage.ArtifactName(m.CreatedAt, m.ID, utils.ExtensionForContentType(m.ContentType))
}

func newMeta(img *models.Image) *Meta {
	return &Meta{
		ID:          img.ID,
		ContentType: img.ContentType,
		Checksum:    img.Checksum,
		Size:        len(img.Data),
		CreatedAt:   img.CreatedAt,
	}
}

// Repository 图片查询
type Repository interface {
	GetByID(ctx context.Context, id uint) (*models.Image, error)
}

// Handler 图片文件访问
type Handler struct {
	repo        Repository
	artifacts   *storage.ArtifactWriter
	cacheHelper *cache.Helper
	group       singleflight.Group
}

// NewHandler 创建处理器
func NewHandler(repo Repository, artifacts *storage.ArtifactWriter, cacheHelper *cache.Helper) *Handler {
	return &Handler{
		repo:        repo,
		artifacts:   artifacts,
		cacheHelper: cacheHelper,
	}
}

// GetImage GET /images/:id 返回已提交记录对应的图片文件
func (h *Handler) GetImage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.RespondError(c, http.StatusBadRequest, "Invalid image id")
		return
	}

	meta, err := h.fetchMeta(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, images.ErrImageNotFound) {
			common.RespondError(c, http.StatusNotFound, "Image not found")
			return
		}
		log.Printf("[GetImage] Failed to fetch metadata for %d: %v", id, err)
		common.RespondError(c, http.StatusInternalServerError, "Error retrieving image")
		return
	}

	name := meta.ArtifactName()
	r, err := h.artifacts.Open(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			common.RespondError(c, http.StatusNotFound, "Image file not found")
			return
		}
		log.Printf("[GetImage] Failed to open %s: %v", name, err)
		common.RespondError(c, http.StatusInternalServerError, "Error retrieving image")
		return
	}
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}

	c.Header("Content-Type", meta.ContentType)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	if meta.Checksum != "" {
		c.Header("ETag", `"`+meta.Checksum+`"`)
	}
	http.ServeContent(c.Writer, c.Request, name, meta.CreatedAt, r)
}

// fetchMeta 查询元数据，优先读缓存，并发的相同查询只访问一次数据库
func (h *Handler) fetchMeta(ctx context.Context, id uint) (*Meta, error) {
	var meta Meta
	if h.cacheHelper != nil {
		if err := h.cacheHelper.GetImageMeta(ctx, id, &meta); err == nil {
			return &meta, nil
		}
	}

	v, err, _ := h.group.Do(strconv.FormatUint(uint64(id), 10), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metaFetchTimeout)
		defer cancel()

		img, err := h.repo.GetByID(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		m := newMeta(img)
		if h.cacheHelper != nil {
			if cacheErr := h.cacheHelper.CacheImageMeta(fetchCtx, id, m); cacheErr != nil {
				log.Printf("[GetImage] Failed to cache metadata for %d: %v", id, cacheErr)
			}
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Meta), nil
}
