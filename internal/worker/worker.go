package worker

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task 异步任务
type Task func()

// Stats 协程池统计信息
type Stats struct {
	WorkerCount int
	QueueLen    int
	QueueCap    int
	Submitted   uint64
	Executed    uint64
	Failed      uint64
	Dropped     uint64
}

// Pool 协程池
// 队列有界，满时丢弃任务；Stop 会等待已入队任务执行完毕
type Pool struct {
	workers int
	queue   chan Task
	wg      sync.WaitGroup
	log     *zap.SugaredLogger

	mu      sync.RWMutex
	stopped bool

	submitted atomic.Uint64
	executed  atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Option 协程池选项
type Option func(*Pool)

// WithLogger 设置日志
func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPool 创建并启动协程池
func NewPool(workers, queueSize int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	p := &Pool{
		workers: workers,
		queue:   make(chan Task, queueSize),
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	p.log.Infow("worker pool started", "workers", p.workers, "queue", queueSize)
	return p
}

// Submit 提交任务（非阻塞，队列满或已停止时返回 false）
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return true
	default:
		p.dropped.Add(1)
		p.log.Warnw("worker pool queue is full, task dropped", "queue", cap(p.queue))
		return false
	}
}

// Stop 停止协程池，可重复调用
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Infow("worker pool stopped",
		"executed", p.executed.Load(),
		"failed", p.failed.Load(),
		"dropped", p.dropped.Load(),
	)
}

// GetStats 返回统计信息
func (p *Pool) GetStats() Stats {
	return Stats{
		WorkerCount: p.workers,
		QueueLen:    len(p.queue),
		QueueCap:    cap(p.queue),
		Submitted:   p.submitted.Load(),
		Executed:    p.executed.Load(),
		Failed:      p.failed.Load(),
		Dropped:     p.dropped.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for task := range p.queue {
		if task == nil {
			continue
		}
		p.execute(task)
	}
}

// execute 执行任务并捕获 panic
func (p *Pool) execute(task Task) {
	defer func() {
		p.executed.Add(1)
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.log.Errorw("panic recovered in worker task", "panic", r)
		}
	}()
	task()
}
