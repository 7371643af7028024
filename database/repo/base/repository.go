// Package base 提供通用的 Repository 基类
package base

import (
	"context"
	"errors"

	"github.com/anoixa/image-relay/database"
	"gorm.io/gorm"
)

// Repository 通用仓库基类
type Repository[T any] struct {
	db database.Provider
}

// NewRepository 创建新的通用仓库
func NewRepository[T any](db database.Provider) *Repository[T] {
	return &Repository[T]{db: db}
}

// Provider 返回底层数据库提供者
func (r *Repository[T]) Provider() database.Provider {
	return r.db
}

// CreateWithTx 在事务中创建记录
func (r *Repository[T]) CreateWithTx(tx *gorm.DB, entity *T) error {
	return tx.Create(entity).Error
}

// GetByID 通过 ID 获取记录，不存在时返回 (nil, nil)
func (r *Repository[T]) GetByID(ctx context.Context, id uint) (*T, error) {
	var entity T
	err := r.db.WithContext(ctx).First(&entity, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entity, nil
}

// HardDelete 物理删除记录，返回受影响行数
func (r *Repository[T]) HardDelete(ctx context.Context, id uint) (int64, error) {
	var entity T
	result := r.db.WithContext(ctx).Unscoped().Delete(&entity, id)
	return result.RowsAffected, result.Error
}

// Count 获取记录总数
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(new(T)).Count(&count).Error
	return count, err
}

// Transaction 执行带上下文的事务
func (r *Repository[T]) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.TransactionWithContext(ctx, fn)
}
