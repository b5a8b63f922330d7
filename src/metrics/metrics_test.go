package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesRegistry(t *testing.T) {
	EventsCreated.Inc()
	SetBuildInfo("test")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "murmur_events_created_total"))
	require.True(t, strings.Contains(body, `murmur_build_info{version="test"} 1`))
}

func TestSetPlatformStatus(t *testing.T) {
	all := []string{"Starting", "Active", "Behind"}

	SetPlatformStatus("Active", all)
	require.Equal(t, 1.0, testutil.ToFloat64(PlatformStatus.WithLabelValues("Active")))
	require.Equal(t, 0.0, testutil.ToFloat64(PlatformStatus.WithLabelValues("Starting")))

	SetPlatformStatus("Behind", all)
	require.Equal(t, 0.0, testutil.ToFloat64(PlatformStatus.WithLabelValues("Active")))
	require.Equal(t, 1.0, testutil.ToFloat64(PlatformStatus.WithLabelValues("Behind")))
}
