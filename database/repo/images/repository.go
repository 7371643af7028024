package images

import (
	"context"
	"errors"
	"time"

	"github.com/anoixa/image-relay/database"
	"github.com/anoixa/image-relay/database/models"
	"github.com/anoixa/image-relay/database/repo/base"
	"gorm.io/gorm"
)

// ErrImageNotFound 记录不存在
var ErrImageNotFound = errors.New("image not found")

// Repository 图片仓库 - 持久化存储适配器
type Repository struct {
	base *base.Repository[models.Image]
	now  func() time.Time
}

// NewRepository 创建新的图片仓库
func NewRepository(db database.Provider) *Repository {
	return &Repository{
		base: base.NewRepository[models.Image](db),
		now:  time.Now,
	}
}

// WithClock 替换时钟（测试使用）
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Commit 持久化草稿记录
// ID 由数据库生成，CreatedAt 使用服务器当前时间覆盖草稿中的任何值
// CreatedAt 截断到毫秒，与事件格式和文件名一致，且不受数据库时间精度影响
func (r *Repository) Commit(ctx context.Context, draft *models.Image) (*models.Image, error) {
	if draft == nil {
		return nil, storeError("commit", errors.New("nil draft"))
	}

	record := *draft
	record.ID = 0
	record.CreatedAt = r.now().UTC().Truncate(time.Millisecond)
	if record.Comments == nil {
		record.Comments = []string{}
	}

	err := r.base.Transaction(ctx, func(tx *gorm.DB) error {
		return r.base.CreateWithTx(tx, &record)
	})
	if err != nil {
		return nil, storeError("commit", err)
	}
	if !record.IsCommitted() {
		return nil, storeError("commit", errors.New("store returned no id"))
	}
	return &record, nil
}

// Discard 删除已提交的记录（制品写入失败时回滚使用）
func (r *Repository) Discard(ctx context.Context, id uint) error {
	if _, err := r.base.HardDelete(ctx, id); err != nil {
		return storeError("discard", err)
	}
	return nil
}

// GetByID 通过ID获取图片
func (r *Repository) GetByID(ctx context.Context, id uint) (*models.Image, error) {
	image, err := r.base.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("get", err)
	}
	if image == nil {
		return nil, ErrImageNotFound
	}
	return image, nil
}

// Count 统计图片数量
func (r *Repository) Count(ctx context.Context) (int64, error) {
	count, err := r.base.Count(ctx)
	if err != nil {
		return 0, storeError("count", err)
	}
	return count, nil
}
