package realtime

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/anoixa/image-relay/internal/metrics"
)

// Connection 可接收消息的连接
// Deliver 不得长时间阻塞，失败时返回错误即可
type Connection interface {
	ID() string
	Deliver(msg []byte) error
}

// BroadcastResult 一次广播的投递统计
type BroadcastResult struct {
	Recipients int
	Delivered  int
	Failed     int
}

// Hub 连接注册表，负责向所有在线连接广播
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Connection

	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// HubOption Hub 选项
type HubOption func(*Hub)

// WithHubLogger 设置日志
func WithHubLogger(log *zap.SugaredLogger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithHubMetrics 设置指标
func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// NewHub 创建 Hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		conns: make(map[string]Connection),
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 注册连接，同一 ID 重复注册只保留一份，返回是否新加入
func (h *Hub) Register(conn Connection) bool {
	id := conn.ID()

	h.mu.Lock()
	_, exists := h.conns[id]
	h.conns[id] = conn
	n := len(h.conns)
	h.mu.Unlock()

	if exists {
		return false
	}
	h.metrics.ConnectionOpened()
	h.log.Debugw("connection registered", "conn", id, "total", n)
	return true
}

// Unregister 注销连接，未注册时无操作，返回是否实际移除
func (h *Hub) Unregister(conn Connection) bool {
	id := conn.ID()

	h.mu.Lock()
	_, exists := h.conns[id]
	delete(h.conns, id)
	n := len(h.conns)
	h.mu.Unlock()

	if !exists {
		return false
	}
	h.metrics.ConnectionClosed()
	h.log.Debugw("connection unregistered", "conn", id, "total", n)
	return true
}

// Len 返回在线连接数
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// snapshot 复制当前连接集合，锁只在复制期间持有
func (h *Hub) snapshot() []Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

// BroadcastAll 编码一次并投递给所有在线连接（包括发送者）
func (h *Hub) BroadcastAll(env Envelope) (BroadcastResult, error) {
	msg, err := Encode(env)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("encode %s event: %w", env.Event, err)
	}
	return h.Broadcast(msg), nil
}

// Broadcast 将已编码消息投递给所有在线连接
// 单个连接失败或 panic 只记录日志，不影响其他连接
func (h *Hub) Broadcast(msg []byte) BroadcastResult {
	targets := h.snapshot()
	res := BroadcastResult{Recipients: len(targets)}

	for _, conn := range targets {
		if err := h.deliver(conn, msg); err != nil {
			res.Failed++
			h.log.Warnw("broadcast delivery failed", "conn", conn.ID(), "error", err)
			continue
		}
		res.Delivered++
	}

	h.metrics.Broadcast(res.Delivered, res.Failed)
	return res
}

// Emit 只向单个连接投递
func (h *Hub) Emit(conn Connection, env Envelope) error {
	msg, err := Encode(env)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", env.Event, err)
	}
	return h.deliver(conn, msg)
}

func (h *Hub) deliver(conn Connection, msg []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DeliveryError{ConnID: conn.ID(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := conn.Deliver(msg); err != nil {
		return &DeliveryError{ConnID: conn.ID(), Err: err}
	}
	return nil
}

// Close 关闭并移除所有连接
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]Connection)
	h.mu.Unlock()

	for id, conn := range conns {
		h.metrics.ConnectionClosed()
		if c, ok := conn.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				h.log.Debugw("close connection failed", "conn", id, "error", err)
			}
		}
	}
	if len(conns) > 0 {
		h.log.Infow("hub closed", "connections", len(conns))
	}
}
