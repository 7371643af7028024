package models

import (
	"time"
)

// Image 图片记录
// ID 与 CreatedAt 只由存储层在提交时写入，客户端提交的值一律忽略
type Image struct {
	ID           uint      `gorm:"primaryKey"`
	Data         []byte    `gorm:"not null"`
	ContentType  string    `gorm:"size:64;not null"`
	Caption      string    `gorm:"type:text"`
	AuthorName   string    `gorm:"size:255"`
	AuthorAvatar string    `gorm:"type:text"`
	LikeCount    int       `gorm:"not null;default:0"`
	Comments     []string  `gorm:"serializer:json"`
	IsFavorite   bool      `gorm:"not null;default:false"`
	Checksum     string    `gorm:"size:64;index:idx_image_checksum"`
	CreatedAt    time.Time `gorm:"not null;index:idx_image_created_at"`
}

// TableName 表名
func (Image) TableName() string {
	return "images"
}

// IsCommitted 是否已由存储层分配 ID 与创建时间
func (i *Image) IsCommitted() bool {
	return i != nil && i.ID != 0 && !i.CreatedAt.IsZero()
}
