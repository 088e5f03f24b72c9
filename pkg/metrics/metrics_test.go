package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	m := Init(true)

	metrics, ok := m.(*Metrics)
	assert.True(t, ok, "Init(true) should return *Metrics")
	assert.NotNil(t, metrics.EventsIngestedTotal)
	assert.NotNil(t, metrics.AttachmentWriteFailuresTotal)

	assert.Same(t, metrics, Init(true), "collectors must be registered once")
}

func TestInitNoop(t *testing.T) {
	_, ok := Init(false).(*NoopMetrics)
	assert.True(t, ok, "Init(false) should return *NoopMetrics")
}

func TestRecordAttachmentWriteFailure(t *testing.T) {
	m := Init(true).(*Metrics)

	before := testutil.ToFloat64(m.AttachmentWriteFailuresTotal.WithLabelValues("gmail"))
	m.RecordAttachmentWriteFailure("gmail")
	after := testutil.ToFloat64(m.AttachmentWriteFailuresTotal.WithLabelValues("gmail"))

	assert.Equal(t, before+1, after)
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := Init(true).(*Metrics)

	r := gin.New()
	r.Use(HTTPMiddleware(m))
	r.GET("/api/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/health", "200"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/health", "200")))
}

func TestNoopMetrics(t *testing.T) {
	n := NewNoopMetrics()
	n.RecordEventIngested("whatsapp", "wa_sent")
	n.RecordStatusDropped("no_sent_event")
	n.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
}
