package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	rt "github.com/anoixa/image-relay/internal/realtime"
	"github.com/anoixa/image-relay/utils"
)

// Dispatcher 处理入站消息
type Dispatcher interface {
	HandleMessage(ctx context.Context, c *rt.Client, raw []byte)
}

// Handler WebSocket 接入
type Handler struct {
	hub      *rt.Hub
	dispatch Dispatcher
	cfg      rt.ClientConfig
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	// ctx 服务关闭时取消，结束所有读循环
	ctx context.Context
}

// NewHandler 创建处理器，allowedOrigins 为空或包含 "*" 时不校验 Origin
func NewHandler(ctx context.Context, hub *rt.Hub, dispatch Dispatcher, cfg rt.ClientConfig, allowedOrigins []string, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{
		hub:      hub,
		dispatch: dispatch,
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 << 10,
			WriteBufferSize: 32 << 10,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// Serve GET /ws
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写入错误响应
		h.log.Debugw("websocket upgrade failed", "remote", c.ClientIP(), "error", err)
		return
	}

	client := rt.NewClient(conn, h.cfg, h.log)
	h.hub.Register(client)
	h.log.Infow("connection opened", "conn", client.ID(), "remote", c.ClientIP(), "connections", h.hub.Len())

	utils.SafeGo("ws-write-"+client.ID(), client.WriteLoop)

	// 读循环在请求 goroutine 中运行，同一连接的消息按到达顺序处理
	err = client.ReadLoop(h.ctx, h.dispatch.HandleMessage)

	h.hub.Unregister(client)
	_ = client.Close()

	if err != nil && !utils.IsClientDisconnect(err) {
		h.log.Warnw("connection closed with error", "conn", client.ID(), "error", err, "connections", h.hub.Len())
		return
	}
	h.log.Infow("connection closed", "conn", client.ID(), "connections", h.hub.Len())
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
