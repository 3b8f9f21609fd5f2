package metricsrv

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/require"

	"github.com/HazyCorp/statesync/pkg/common/hzlog"
)

func TestServer_ExposesMetrics(t *testing.T) {
	metrics.GetOrCreateCounter(`statesync_metricsrv_test_total`).Inc()

	s := New(hzlog.NopLogger(), Config{Port: 0})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "statesync_metricsrv_test_total 1")
}
