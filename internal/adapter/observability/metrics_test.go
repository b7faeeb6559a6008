package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLifecycleCounters(t *testing.T) {
	const typ = "lifecycle-test"

	EnqueueJob(typ)
	StartProcessingJob(typ)
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsProcessing.WithLabelValues(typ)))

	RetryJob(typ)
	StartProcessingJob(typ)
	CompleteJob(typ)
	assert.Equal(t, 0.0, testutil.ToFloat64(JobsProcessing.WithLabelValues(typ)))
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsRetriedTotal.WithLabelValues(typ)))
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsCompletedTotal.WithLabelValues(typ)))

	StartProcessingJob(typ)
	DeadLetterJob(typ)
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsDeadLetterTotal.WithLabelValues(typ)))

	StartProcessingJob(typ)
	CancelJob(typ)
	assert.Equal(t, 1.0, testutil.ToFloat64(JobsCancelledTotal.WithLabelValues(typ)))
}

func TestObserveJobTimings_IgnoresNegative(t *testing.T) {
	// Negative durations happen when clocks are adjusted; they must not panic
	// or record.
	ObserveJobTimings("timing-test", -time.Second, -time.Second)
	ObserveJobTimings("timing-test", 10*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(JobQueueWait))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	h := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics-mw-test", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/metrics-mw-test", http.MethodGet, http.StatusText(http.StatusTeapot))))
}
