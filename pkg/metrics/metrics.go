package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder counts ingestion outcomes.
type Recorder interface {
	RecordEventIngested(provider, eventType string)
	RecordAttachmentWriteFailure(provider string)
	RecordStatusDropped(reason string)
	RecordCursorReset(provider string)
	RecordSyncFailure(provider, stage string)
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

var _ Recorder = (*Metrics)(nil)

type Metrics struct {
	EventsIngestedTotal          *prometheus.CounterVec
	AttachmentWriteFailuresTotal *prometheus.CounterVec
	StatusesDroppedTotal         *prometheus.CounterVec
	CursorResetsTotal            *prometheus.CounterVec
	SyncFailuresTotal            *prometheus.CounterVec
	HTTPRequestsTotal            *prometheus.CounterVec
	HTTPRequestDuration          *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init returns Prometheus-backed metrics when enabled and a no-op recorder otherwise.
// Collectors are registered once per process.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		EventsIngestedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgtracker_events_ingested_total",
				Help: "Events written to the event store",
			},
			[]string{"provider", "event_type"},
		),
		AttachmentWriteFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgtracker_attachment_write_failures_total",
				Help: "Attachment rows that could not be written",
			},
			[]string{"provider"},
		),
		StatusesDroppedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgtracker_statuses_dropped_total",
				Help: "WhatsApp status updates that were not recorded",
			},
			[]string{"reason"},
		),
		CursorResetsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgtracker_cursor_resets_total",
				Help: "Sync cursors reset after the provider reported them too old",
			},
			[]string{"provider"},
		),
		SyncFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgtracker_sync_failures_total",
				Help: "Inbound sync units of work that failed",
			},
			[]string{"provider", "stage"},
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgtracker_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msgtracker_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

func (m *Metrics) RecordEventIngested(provider, eventType string) {
	m.EventsIngestedTotal.WithLabelValues(provider, eventType).Inc()
}

func (m *Metrics) RecordAttachmentWriteFailure(provider string) {
	m.AttachmentWriteFailuresTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordStatusDropped(reason string) {
	m.StatusesDroppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordCursorReset(provider string) {
	m.CursorResetsTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordSyncFailure(provider, stage string) {
	m.SyncFailuresTotal.WithLabelValues(provider, stage).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// HTTPMiddleware records request counts and latency by route pattern.
func HTTPMiddleware(m Recorder) gin.HandlerFunc {
	if _, ok := m.(*NoopMetrics); ok {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
