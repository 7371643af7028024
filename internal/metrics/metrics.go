package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anoixa/image-relay/internal/worker"
)

const namespace = "image_relay"

// Metrics 服务指标，所有方法对 nil 接收者安全
type Metrics struct {
	registry *prometheus.Registry

	imagesSaved     prometheus.Counter
	saveFailures    *prometheus.CounterVec
	saveDuration    prometheus.Histogram
	broadcasts      prometheus.Counter
	deliveries      *prometheus.CounterVec
	connections     prometheus.Gauge
	mirrorPublishes *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New 创建指标并注册到独立的 registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		imagesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_saved_total",
			Help:      "Images committed, persisted and broadcast.",
		}),
		saveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "save_failures_total",
			Help:      "save_image events that failed, by pipeline step.",
		}, []string{"step"}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "save_duration_seconds",
			Help:      "Time from receiving save_image to broadcast completion.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast fan-outs performed.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-connection deliveries, by result.",
		}, []string{"result"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Currently registered realtime connections.",
		}),
		mirrorPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_publishes_total",
			Help:      "Committed events mirrored to the event sink, by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.imagesSaved,
		m.saveFailures,
		m.saveDuration,
		m.broadcasts,
		m.deliveries,
		m.connections,
		m.mirrorPublishes,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry 返回 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TrackPool 导出协程池队列状态
func (m *Metrics) TrackPool(pool *worker.Pool) {
	if m == nil || pool == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_length",
			Help:      "Tasks waiting in the worker pool queue.",
		}, func() float64 { return float64(pool.GetStats().QueueLen) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_dropped_total",
			Help:      "Tasks dropped because the worker pool queue was full.",
		}, func() float64 { return float64(pool.GetStats().Dropped) }),
	)
}

func (m *Metrics) ImageSaved(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.imagesSaved.Inc()
	m.saveDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SaveFailed(step string) {
	if m == nil {
		return
	}
	m.saveFailures.WithLabelValues(step).Inc()
}

// Broadcast 记录一次广播及其投递结果
func (m *Metrics) Broadcast(delivered, failed int) {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
	m.deliveries.WithLabelValues("delivered").Add(float64(delivered))
	m.deliveries.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) MirrorPublished(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.mirrorPublishes.WithLabelValues(result).Inc()
}

// ObserveHTTP 记录 HTTP 请求，path 应为路由模板以控制基数
func (m *Metrics) ObserveHTTP(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
