package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anoixa/image-relay/database/models"
	"github.com/anoixa/image-relay/internal/metrics"
	"github.com/anoixa/image-relay/internal/realtime"
	"github.com/anoixa/image-relay/internal/services/mirror"
	"github.com/anoixa/image-relay/internal/worker"
	"github.com/anoixa/image-relay/utils"
	"github.com/anoixa/image-relay/utils/format"
)

const (
	// DefaultContentType 未配置时的图片类型
	DefaultContentType = "image/jpeg"

	discardTimeout = 5 * time.Second
	mirrorTimeout  = 10 * time.Second
)

// Store 持久化存储
type Store interface {
	Commit(ctx context.Context, draft *models.Image) (*models.Image, error)
	Discard(ctx context.Context, id uint) error
}

// Artifacts 图片文件写入
type Artifacts interface {
	Persist(ctx context.Context, data []byte, createdAt time.Time, id uint, ext string) (string, error)
}

// Broadcaster 事件分发
type Broadcaster interface {
	BroadcastAll(env realtime.Envelope) (realtime.BroadcastResult, error)
	Emit(conn realtime.Connection, env realtime.Envelope) error
}

// Submitter 异步任务提交
type Submitter interface {
	Submit(task worker.Task) bool
}

// Service 图片事件处理流水线
type Service struct {
	store       Store
	artifacts   Artifacts
	hub         Broadcaster
	contentType string

	mirror  mirror.Publisher
	pool    Submitter
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

// Option Service 选项
type Option func(*Service)

// WithContentType 设置图片 MIME 类型
func WithContentType(contentType string) Option {
	return func(s *Service) {
		if contentType != "" {
			s.contentType = contentType
		}
	}
}

// WithMirror 在广播后异步镜像事件
func WithMirror(pub mirror.Publisher, pool Submitter) Option {
	return func(s *Service) {
		s.mirror = pub
		s.pool = pool
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger 设置日志
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService 创建 Service
func NewService(store Store, artifacts Artifacts, hub Broadcaster, opts ...Option) *Service {
	s := &Service{
		store:       store,
		artifacts:   artifacts,
		hub:         hub,
		contentType: DefaultContentType,
		log:         zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveImage 解析、提交、写文件，然后向所有连接广播 new_image
// 提交成功之前不会广播；任何步骤失败只回应 source
func (s *Service) SaveImage(ctx context.Context, source realtime.Connection, data json.RawMessage) (*ImageEvent, error) {
	start := time.Now()
	connID := source.ID()

	draft, err := DecodeDraft(data)
	if err != nil {
		return nil, s.fail(source, StepDecoded, ErrDecode, err)
	}
	s.log.Debugw("save_image decoded", "conn", connID, "step", StepDecoded,
		"size", format.HumanReadableSize(int64(len(draft.Data))), "caption", utils.SanitizeLogField(draft.Caption))

	record, err := s.store.Commit(ctx, draft.Record(s.contentType))
	if err != nil {
		return nil, s.fail(source, StepCommitted, ErrStore, err)
	}
	s.log.Debugw("save_image committed", "conn", connID, "step", StepCommitted, "id", record.ID)

	ext := utils.ExtensionForContentType(record.ContentType)
	artifact, err := s.artifacts.Persist(ctx, record.Data, record.CreatedAt, record.ID, ext)
	if err != nil {
		s.discard(ctx, connID, record.ID)
		return nil, s.fail(source, StepPersisted, ErrArtifact, err)
	}

	evt := NewImageEvent(record)
	res, err := s.hub.BroadcastAll(realtime.Envelope{Event: realtime.EventNewImage, Data: evt})
	if err != nil {
		// 记录与文件已落盘，不回滚
		return nil, s.fail(source, StepBroadcast, ErrBroadcast, err)
	}

	s.metrics.ImageSaved(time.Since(start))
	s.log.Infow("image saved",
		"conn", connID,
		"step", StepDone,
		"id", record.ID,
		"artifact", artifact,
		"recipients", res.Recipients,
		"delivered", res.Delivered,
		"failed", res.Failed,
	)

	s.publishMirror(record, artifact)
	return evt, nil
}

// discard 回滚已提交的记录，调用方 ctx 取消时仍然执行
func (s *Service) discard(ctx context.Context, connID string, id uint) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discardTimeout)
	defer cancel()

	if err := s.store.Discard(dctx, id); err != nil {
		s.log.Errorw("discard record failed", "conn", connID, "id", id, "error", err)
		return
	}
	s.log.Debugw("record discarded", "conn", connID, "id", id)
}

func (s *Service) publishMirror(record *models.Image, artifact string) {
	if s.mirror == nil || s.pool == nil {
		return
	}

	evt := newMirrorEvent(record, artifact)
	ok := s.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()

		err := s.mirror.Publish(ctx, evt)
		s.metrics.MirrorPublished(err)
		if err != nil {
			s.log.Warnw("mirror publish failed", "id", evt.ID, "mirror", s.mirror.Name(), "error", err)
		}
	})
	if !ok {
		s.metrics.MirrorPublished(errors.New("queue full"))
		s.log.Warnw("mirror task dropped", "id", record.ID)
	}
}

// fail 记录失败并回应提交者
func (s *Service) fail(source realtime.Connection, step Step, kind, cause error) *StepError {
	stepErr := &StepError{Step: step, ConnID: source.ID(), Kind: kind, Err: cause}

	s.metrics.SaveFailed(string(step))
	s.log.Warnw("save_image failed", "conn", stepErr.ConnID, "step", step, "error", cause)

	ack := realtime.Envelope{
		Event: realtime.EventSaveImageError,
		Data:  realtime.ErrorPayload{Step: string(step), Message: stepErr.ClientMessage()},
	}
	if err := s.hub.Emit(source, ack); err != nil {
		s.log.Debugw("failure ack not delivered", "conn", stepErr.ConnID, "error", err)
	}
	return stepErr
}

// Dispatch 路由一条入站消息
func (s *Service) Dispatch(ctx context.Context, conn realtime.Connection, raw []byte) error {
	in, err := realtime.Decode(raw)
	if err != nil {
		s.reject(conn, fmt.Sprintf("malformed message: %v", err))
		return err
	}

	switch in.Event {
	case realtime.EventSaveImage:
		_, err := s.SaveImage(ctx, conn, in.Data)
		return err
	default:
		s.reject(conn, fmt.Sprintf("unknown event: %q", in.Event))
		return fmt.Errorf("unknown event %q", in.Event)
	}
}

// HandleMessage 适配 realtime.MessageHandler，错误已回应给客户端
func (s *Service) HandleMessage(ctx context.Context, c *realtime.Client, raw []byte) {
	_ = s.Dispatch(ctx, c, raw)
}

func (s *Service) reject(conn realtime.Connection, msg string) {
	s.log.Debugw("message rejected", "conn", conn.ID(), "reason", msg)
	env := realtime.Envelope{Event: realtime.EventError, Data: realtime.ErrorPayload{Message: msg}}
	if err := s.hub.Emit(conn, env); err != nil {
		s.log.Debugw("reject not delivered", "conn", conn.ID(), "error", err)
	}
}
