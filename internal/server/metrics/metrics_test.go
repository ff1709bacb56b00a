package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveLoginStep("start", "success")
	m.ObserveLoginStep("start", "success")
	m.ObserveLoginStep("verify_otp", "mismatch")
	m.ObserveGatewayRequest("auth_user", "not_found")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.loginSteps.WithLabelValues("start", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loginSteps.WithLabelValues("verify_otp", "mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayRequests.WithLabelValues("auth_user", "not_found")))
}

func TestMetrics_HTTPDuration(t *testing.T) {
	m := New()

	m.ObserveHTTPRequest(http.MethodPost, "/api/auth/login", http.StatusUnauthorized, 15*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodPost, "/api/auth/login", http.StatusOK, 5*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.httpDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveLoginStep("start", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `portal_login_steps_total{outcome="success",step="start"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
