package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrSendQueueFull 连接发送队列已满，消息被丢弃
	ErrSendQueueFull = errors.New("send queue full")

	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("connection closed")
)

// DeliveryError 单个连接投递失败，只记录，不向广播调用方传播
type DeliveryError struct {
	ConnID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.ConnID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
