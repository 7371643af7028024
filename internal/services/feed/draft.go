package feed

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/zeebo/blake3"

	"github.com/anoixa/image-relay/database/models"
)

// payload save_image 的 data 字段
// createdAt/time 等客户端时间字段不在此列，解析时直接忽略
type payload struct {
	Image      string   `mapstructure:"image"`
	Caption    string   `mapstructure:"caption"`
	Comment    string   `mapstructure:"comment"`
	Avatar     string   `mapstructure:"avatar"`
	Name       string   `mapstructure:"name"`
	Likes      int      `mapstructure:"likes"`
	Comments   []string `mapstructure:"comments"`
	IsFavorite bool     `mapstructure:"isFavorite"`
}

// Draft 解析后的待提交记录，不含 ID 与创建时间
type Draft struct {
	Data         []byte
	Caption      string
	AuthorName   string
	AuthorAvatar string
	LikeCount    int
	Comments     []string
	IsFavorite   bool
}

// DecodeDraft 解析 save_image 数据
func DecodeDraft(data json.RawMessage) (*Draft, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("data must be a JSON object: %w", err)
	}
	if raw == nil {
		return nil, errors.New("missing data")
	}

	var p payload
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       strictIntHook,
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}

	if p.Likes < 0 {
		return nil, fmt.Errorf("likes must be >= 0, got %d", p.Likes)
	}

	img, err := DecodeBase64Image(p.Image)
	if err != nil {
		return nil, err
	}

	// 早期客户端只发送 comment 字段作为说明文字
	caption := p.Caption
	if caption == "" {
		caption = p.Comment
	}

	comments := p.Comments
	if comments == nil {
		comments = []string{}
	}

	return &Draft{
		Data:         img,
		Caption:      caption,
		AuthorName:   p.Name,
		AuthorAvatar: p.Avatar,
		LikeCount:    p.Likes,
		Comments:     comments,
		IsFavorite:   p.IsFavorite,
	}, nil
}

// maxExactInt float64 可精确表示的最大整数
const maxExactInt = 1 << 53

// strictIntHook 整数字段只接受整数值：拒绝小数和布尔值，字符串仍按弱类型解析
func strictIntHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() != reflect.Int {
		return data, nil
	}
	switch v := data.(type) {
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > maxExactInt {
			return nil, fmt.Errorf("expected an integer, got %v", v)
		}
	case bool:
		return nil, fmt.Errorf("expected an integer, got %t", v)
	}
	return data, nil
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodeBase64Image 解码 base64 图片，支持 data URI 前缀与 url-safe / 无填充变体
func DecodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return nil, errors.New("malformed data URI")
		}
		s = s[idx+1:]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)

	if s == "" {
		return nil, errors.New("image is required")
	}

	for _, enc := range base64Encodings {
		if data, err := enc.DecodeString(s); err == nil {
			if len(data) == 0 {
				break
			}
			return data, nil
		}
	}
	return nil, errors.New("image is not valid base64")
}

// Checksum 返回 BLAKE3-256 十六进制摘要
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Record 转换为待提交的模型
func (d *Draft) Record(contentType string) *models.Image {
	return &models.Image{
		Data:         d.Data,
		ContentType:  contentType,
		Caption:      d.Caption,
		AuthorName:   d.AuthorName,
		AuthorAvatar: d.AuthorAvatar,
		LikeCount:    d.LikeCount,
		Comments:     d.Comments,
		IsFavorite:   d.IsFavorite,
		Checksum:     Checksum(d.Data),
	}
}
