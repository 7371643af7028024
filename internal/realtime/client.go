package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientConfig WebSocket 连接参数
type ClientConfig struct {
	SendBuffer      int
	MaxMessageBytes int64
	PingInterval    time.Duration
	WriteTimeout    time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 10 << 20
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// pongWait 读超时，需大于 ping 间隔
func (c ClientConfig) pongWait() time.Duration {
	return c.PingInterval * 2
}

// MessageHandler 处理单条入站消息，同一连接上的消息按顺序调用
type MessageHandler func(ctx context.Context, c *Client, msg []byte)

// Client 一个 WebSocket 连接
// 写操作只在 WriteLoop 中进行，Deliver 只入队，不阻塞
type Client struct {
	id   string
	conn *websocket.Conn
	cfg  ClientConfig
	log  *zap.SugaredLogger

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewClient 包装已升级的 WebSocket 连接
func NewClient(conn *websocket.Conn, cfg ClientConfig, log *zap.SugaredLogger) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	id := uuid.NewString()

	return &Client{
		id:   id,
		conn: conn,
		cfg:  cfg,
		log:  log.With("conn", id),
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

// ID 连接标识
func (c *Client) ID() string {
	return c.id
}

// Deliver 消息入队
func (c *Client) Deliver(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Done 连接关闭时关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close 关闭连接，可重复调用
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	// WriteControl 可与其他写操作并发调用
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// ReadLoop 顺序读取并处理入站消息，直到连接断开或 ctx 结束
// 正常关闭返回 nil
func (c *Client) ReadLoop(ctx context.Context, handle MessageHandler) error {
	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	if c.cfg.PingInterval > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.pongWait()))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.cfg.pongWait()))
		})
	}

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		msgType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
				errors.Is(err, websocket.ErrCloseSent) || c.isClosed() {
				return nil
			}
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		handle(ctx, c, msg)
	}
}

// WriteLoop 发送队列中的消息并定期 ping，直到连接关闭
func (c *Client) WriteLoop() {
	var tick <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debugw("write failed, closing connection", "error", err)
				_ = c.Close()
				return
			}
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.log.Debugw("ping failed, closing connection", "error", err)
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
