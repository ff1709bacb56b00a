package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type httpObserverStub struct {
	routes []string
	codes  []int
	mu     sync.Mutex
}

func (o *httpObserverStub) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, method+" "+route)
	o.codes = append(o.codes, status)
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login/start", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	observer := &httpObserverStub{}
	h := Metrics(observer)(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/auth/login/start", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/unknown/9161234567", nil))

	require.Len(t, observer.routes, 2)
	assert.Equal(t, "POST POST /api/auth/login/start", observer.routes[0])
	assert.Equal(t, http.StatusNotFound, observer.codes[0])
	assert.Equal(t, "GET unmatched", observer.routes[1])
}
