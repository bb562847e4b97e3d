package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hotsync/internal/fetcher"
	"github.com/vk/hotsync/internal/synchronizer"
)

func TestCollector_RecordsRuns(t *testing.T) {
	c := NewCollector("hotsync", nil)

	c.RunFinished(synchronizer.ResultOK, 20*time.Millisecond)
	c.RunFinished(synchronizer.ResultPartial, time.Second)
	c.RunFinished(synchronizer.ResultOK, time.Millisecond)
	c.FetchFinished(fetcher.OutcomeHTTPError)
	c.CaptureFailures(2)
	c.RestoreFailures(1)
	c.MalformedNotification()
	c.QueueDepth(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Fetches.WithLabelValues(fetcher.OutcomeHTTPError.String())))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.WidgetCaptureFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.WidgetRestoreFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Malformed))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Queue))
	assert.Equal(t, 1, testutil.CollectAndCount(c.RunDuration))
}

func TestCollector_Handler(t *testing.T) {
	version := uint64(7)
	c := NewCollector("hotsync", func() uint64 { return version })
	c.MalformedNotification()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hotsync_malformed_notifications_total 1")
	assert.Contains(t, string(body), "hotsync_terminal_buffer_version 7")
}
