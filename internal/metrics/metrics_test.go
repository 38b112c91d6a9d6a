package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.ObserveMutation("append", nil)
	m.SettingsFallback()
	m.ObserveRender(time.Millisecond)
	m.ObserveMirror("entry.appended", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveMutation("delete", nil)
	m.ObserveMutation("delete", errors.New("boom"))
	m.ObserveMutation("delete", errors.New("boom"))
	m.SettingsFallback()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.entryMutations.WithLabelValues("delete", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.entryMutations.WithLabelValues("delete", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settingsFallbacks))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveHTTP("POST", "/entries", 201, 20*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.Contains(out, `budget_http_request_duration_seconds_count{method="POST",route="/entries",status="201"} 1`), out)
	assert.True(t, strings.Contains(out, "go_goroutines"))
}
