package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/anoixa/image-relay/database"
	"github.com/anoixa/image-relay/database/models"
	"github.com/anoixa/image-relay/database/repo/images"
	rt "github.com/anoixa/image-relay/internal/realtime"
	"github.com/anoixa/image-relay/internal/services/feed"
	"github.com/anoixa/image-relay/storage"
)

type testServer struct {
	url string
	hub *rt.Hub
	db  *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Image{}))

	local, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	hub := rt.NewHub()
	repo := images.NewRepository(database.NewGormProviderFromDB(db, "sqlite"))
	svc := feed.NewService(repo, storage.NewArtifactWriter(local), hub)

	ctx, cancel := context.WithCancel(context.Background())
	h := NewHandler(ctx, hub, svc, rt.ClientConfig{}, []string{"*"}, nil)

	router := gin.New()
	router.GET("/ws", h.Serve)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		hub.Close()
		srv.Close()
	})

	return &testServer{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", hub: hub, db: db}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func saveImage(t *testing.T, conn *websocket.Conn, data map[string]interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "save_image", "data": data}))
}

var jpeg = base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xE0})

func TestWebSocket_SaveImageBroadcast(t *testing.T) {
	s := newTestServer(t)
	c1, c2 := s.dial(t), s.dial(t)
	require.Eventually(t, func() bool { return s.hub.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	saveImage(t, c1, map[string]interface{}{
		"image":     jpeg,
		"caption":   "hi",
		"likes":     3,
		"createdAt": "1999-01-01T00:00:00.000Z",
	})

	var events []feed.ImageEvent
	for _, conn := range []*websocket.Conn{c1, c2} {
		env := readEvent(t, conn)
		require.Equal(t, "new_image", env.Event)
		var evt feed.ImageEvent
		require.NoError(t, json.Unmarshal(env.Data, &evt))
		events = append(events, evt)
	}

	assert.Equal(t, events[0], events[1])
	assert.Equal(t, "hi", events[0].Caption)
	assert.Equal(t, 3, events[0].Likes)
	assert.Equal(t, []string{}, events[0].Comments)
	assert.NotEqual(t, "1999-01-01T00:00:00.000Z", events[0].CreatedAt)

	var stored models.Image
	require.NoError(t, s.db.First(&stored, events[0].ID).Error)
	assert.Equal(t, "hi", stored.Caption)
	assert.Equal(t, 3, stored.LikeCount)
	assert.Equal(t, feed.FormatTime(stored.CreatedAt), events[0].CreatedAt)
}

func TestWebSocket_InvalidSubmission(t *testing.T) {
	s := newTestServer(t)
	c1, c2 := s.dial(t), s.dial(t)
	require.Eventually(t, func() bool { return s.hub.Len() == 2 }, 5*time.Second, 10*time.Millisecond)

	saveImage(t, c1, map[string]interface{}{"image": "***", "caption": "broken"})

	env := readEvent(t, c1)
	assert.Equal(t, "save_image_error", env.Event)
	assert.Contains(t, string(env.Data), `"step":"decoded"`)

	// c2 不应收到任何消息
	_ = c2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := c2.ReadMessage()
	assert.Error(t, err)

	var count int64
	require.NoError(t, s.db.Model(&models.Image{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWebSocket_UnknownEvent(t *testing.T) {
	s := newTestServer(t)
	c1 := s.dial(t)

	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte(`{"event":"like_image","data":{}}`)))
	env := readEvent(t, c1)
	assert.Equal(t, "error", env.Event)
	assert.Contains(t, string(env.Data), "unknown event")
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	s := newTestServer(t)
	c1 := s.dial(t)
	require.Eventually(t, func() bool { return s.hub.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c1.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return s.hub.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, originChecker(nil)(req("https://evil.example")))
	assert.True(t, originChecker([]string{"*"})(req("https://evil.example")))

	check := originChecker([]string{"https://app.example/"})
	assert.True(t, check(req("https://app.example")))
	assert.True(t, check(req("")))
	assert.False(t, check(req("https://evil.example")))
}
