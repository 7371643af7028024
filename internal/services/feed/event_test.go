package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anoixa/image-relay/database/models"
)

func TestNewImageEvent_Wire(t *testing.T) {
	record := &models.Image{
		ID:           12,
		Data:         []byte{0xFF, 0xD8},
		Caption:      "harbour at dusk",
		AuthorName:   "kim",
		AuthorAvatar: "a.png",
		LikeCount:    3,
		IsFavorite:   true,
		CreatedAt:    time.Date(2025, 10, 9, 8, 53, 20, 123_000_000, time.FixedZone("CST", 8*3600)),
	}

	raw, err := json.Marshal(NewImageEvent(record))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"id": 12,
		"image": "/9g=",
		"caption": "harbour at dusk",
		"comment": "harbour at dusk",
		"avatar": "a.png",
		"name": "kim",
		"likes": 3,
		"comments": [],
		"isFavorite": true,
		"createdAt": "2025-10-09T00:53:20.123Z",
		"time": "2025-10-09T00:53:20.123Z"
	}`, string(raw))
}

// 早期客户端读取 comment / time 字段
func TestNewImageEvent_LegacyAliasesFollowRecord(t *testing.T) {
	evt := NewImageEvent(&models.Image{ID: 1, Caption: "", CreatedAt: time.Unix(0, 0)})

	assert.Equal(t, evt.Caption, evt.Comment)
	assert.Equal(t, evt.CreatedAt, evt.Time)
	assert.Equal(t, "1970-01-01T00:00:00.000Z", evt.Time)
}
