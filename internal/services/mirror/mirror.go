package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event 镜像到外部事件流的已提交记录摘要，不含图片字节
type Event struct {
	ID           uint      `json:"id"`
	Artifact     string    `json:"artifact"`
	ContentType  string    `json:"content_type"`
	Size         int       `json:"size"`
	Checksum     string    `json:"checksum"`
	Caption      string    `json:"caption,omitempty"`
	AuthorName   string    `json:"name,omitempty"`
	LikeCount    int       `json:"likes"`
	CommentCount int       `json:"comment_count"`
	IsFavorite   bool      `json:"is_favorite"`
	CreatedAt    time.Time `json:"created_at"`
}

// Publisher 事件发布
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
	Name() string
}

// MessageWriter kafka.Writer 的最小接口
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 将事件写入 Kafka topic，以记录 ID 作为 key
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	log    *zap.SugaredLogger
}

// NewKafkaPublisher 创建 Kafka 发布者
func NewKafkaPublisher(brokers []string, topic string, log *zap.SugaredLogger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return NewKafkaPublisherWithWriter(w, topic, log), nil
}

// NewKafkaPublisherWithWriter 使用指定的 writer 创建发布者
func NewKafkaPublisherWithWriter(w MessageWriter, topic string, log *zap.SugaredLogger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &KafkaPublisher{writer: w, topic: topic, log: log}
}

// Publish 发送事件
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode mirror event %d: %w", evt.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(evt.ID), 10)),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("new_image")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish mirror event %d to %s: %w", evt.ID, p.topic, err)
	}
	return nil
}

// Close 关闭 writer，刷出缓冲中的消息
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Name 返回发布者名称
func (p *KafkaPublisher) Name() string {
	return "kafka:" + p.topic
}

// Noop 未配置镜像时使用
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
func (Noop) Name() string                         { return "noop" }

// New 根据配置创建发布者，brokers 为空时返回 Noop
func New(brokers []string, topic string, log *zap.SugaredLogger) (Publisher, error) {
	if len(brokers) == 0 {
		return Noop{}, nil
	}
	return NewKafkaPublisher(brokers, topic, log)
}
