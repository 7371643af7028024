package feed

import (
	"encoding/base64"
	"time"

	"github.com/anoixa/image-relay/database/models"
	"github.com/anoixa/image-relay/internal/services/mirror"
)

// TimeLayout createdAt 输出格式，RFC 3339 精确到毫秒
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ImageEvent new_image 事件数据，由已提交记录生成
// comment 与 time 是 caption、createdAt 的别名，供早期客户端读取
type ImageEvent struct {
	ID         uint     `json:"id"`
	Image      string   `json:"image"`
	Caption    string   `json:"caption"`
	Comment    string   `json:"comment"`
	Avatar     string   `json:"avatar"`
	Name       string   `json:"name"`
	Likes      int      `json:"likes"`
	Comments   []string `json:"comments"`
	IsFavorite bool     `json:"isFavorite"`
	CreatedAt  string   `json:"createdAt"`
	Time       string   `json:"time"`
}

// FormatTime 格式化为 UTC 毫秒精度
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NewImageEvent 从已提交记录构建事件，createdAt 只取存储层的值
func NewImageEvent(record *models.Image) *ImageEvent {
	comments := record.Comments
	if comments == nil {
		comments = []string{}
	}
	createdAt := FormatTime(record.CreatedAt)
	return &ImageEvent{
		ID:         record.ID,
		Image:      base64.StdEncoding.EncodeToString(record.Data),
		Caption:    record.Caption,
		Comment:    record.Caption,
		Avatar:     record.AuthorAvatar,
		Name:       record.AuthorName,
		Likes:      record.LikeCount,
		Comments:   comments,
		IsFavorite: record.IsFavorite,
		CreatedAt:  createdAt,
		Time:       createdAt,
	}
}

func newMirrorEvent(record *models.Image, artifact string) mirror.Event {
	return mirror.Event{
		ID:           record.ID,
		Artifact:     artifact,
		ContentType:  record.ContentType,
		Size:         len(record.Data),
		Checksum:     record.Checksum,
		Caption:      record.Caption,
		AuthorName:   record.AuthorName,
		LikeCount:    record.LikeCount,
		CommentCount: len(record.Comments),
		IsFavorite:   record.IsFavorite,
		CreatedAt:    record.CreatedAt,
	}
}
