package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.streamSessionsTotal)
	assert.NotNil(t, collector.streamTokensTotal)
	assert.NotNil(t, collector.streamActiveSessions)
	assert.NotNil(t, collector.streamAbandonedTasks)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/stream", 200, 100*time.Millisecond, 0, 2048)
	collector.RecordHTTPRequest("GET", "/stream", 200, 50*time.Millisecond, 0, 1024)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/stream", "2xx")))
}

func TestCollector_SessionLifecycle(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordSessionStart("direct")
	collector.RecordSessionStart("direct")
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.streamActiveSessions.WithLabelValues("direct")))

	collector.RecordFirstToken("direct", 30*time.Millisecond)
	for i := 0; i < 4; i++ {
		collector.RecordToken("direct")
	}
	collector.RecordSessionEnd("direct", "completed", time.Second)
	collector.RecordSessionEnd("direct", "UPSTREAM_ERROR", time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(collector.streamActiveSessions.WithLabelValues("direct")))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.streamTokensTotal.WithLabelValues("direct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamSessionsTotal.WithLabelValues("direct", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamSessionsTotal.WithLabelValues("direct", "UPSTREAM_ERROR")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.streamFirstTokenDelay))
}

func TestCollector_RecordAbandonedTasks(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordAbandonedTasks([]string{"invoke", "sentinel"})
	collector.RecordAbandonedTasks([]string{"invoke"})

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.streamAbandonedTasks.WithLabelValues("invoke")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamAbandonedTasks.WithLabelValues("sentinel")))
}

func TestCollector_RecordTaskPanics(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordTaskPanics("bridged", 0)
	assert.Equal(t, 0, testutil.CollectAndCount(collector.streamTaskPanics))

	collector.RecordTaskPanics("bridged", 2)
	collector.RecordTaskPanics("bridged", 1)
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.streamTaskPanics.WithLabelValues("bridged")))
}

func TestCollector_RecordRejected(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	collector.RecordRejected("INVALID_REQUEST")
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamRejectedRequests.WithLabelValues("INVALID_REQUEST")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var collector *Collector
	assert.NotPanics(t, func() {
		collector.RecordHTTPRequest("GET", "/", 200, 0, 0, 0)
		collector.RecordSessionStart("direct")
		collector.RecordSessionEnd("direct", "completed", 0)
		collector.RecordFirstToken("direct", 0)
		collector.RecordToken("direct")
		collector.RecordAbandonedTasks([]string{"x"})
		collector.RecordTaskPanics("x", 1)
		collector.RecordRejected("x")
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/stream", 200, 100*time.Millisecond, 0, 2048)
			collector.RecordToken("bridged")
		}()
	}
	wg.Wait()

	assert.Equal(t, 10.0, testutil.ToFloat64(collector.streamTokensTotal.WithLabelValues("bridged")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()

	// 会自动注册到默认 registry
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	registry.MustRegister(collector.httpRequestsTotal)
	registry.MustRegister(collector.streamSessionsTotal)

	collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 0)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(200))
	assert.Equal(t, "3xx", statusCode(304))
	assert.Equal(t, "4xx", statusCode(429))
	assert.Equal(t, "5xx", statusCode(502))
	assert.Equal(t, "unknown", statusCode(0))
}
