package healthprobe

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler http.HandlerFunc) (int, HealthResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w.Code, resp
}

func TestNew_NotReady(t *testing.T) {
	hc := New()
	assert.False(t, hc.ready.Load())

	code, resp := serve(t, hc.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", resp.Status)
	assert.NotEmpty(t, resp.Message)
}

func TestHealth_AlwaysOK(t *testing.T) {
	hc := New()
	hc.AddCheck("feed", func() error { return errors.New("disconnected") })

	for _, ready := range []bool{false, true} {
		hc.SetReady(ready)
		code, resp := serve(t, hc.Health())
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", resp.Status)
		assert.NotEmpty(t, resp.Uptime)
		assert.Equal(t, "disconnected", resp.Checks["feed"])
	}
}

func TestReady_StateChanges(t *testing.T) {
	hc := New()

	hc.SetReady(true)
	code, resp := serve(t, hc.Ready())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", resp.Status)

	hc.SetReady(false)
	code, _ = serve(t, hc.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReady_FailingCheck(t *testing.T) {
	hc := New()
	hc.SetReady(true)

	var mu sync.Mutex
	var feedErr error
	hc.AddCheck("feed", func() error {
		mu.Lock()
		defer mu.Unlock()
		return feedErr
	})
	hc.AddCheck("trading", func() error { return nil })

	code, resp := serve(t, hc.Ready())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"feed": "ok", "trading": "ok"}, resp.Checks)

	mu.Lock()
	feedErr = errors.New("blocked by upstream (403)")
	mu.Unlock()

	code, resp = serve(t, hc.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "blocked by upstream (403)", resp.Checks["feed"])
	assert.Equal(t, "ok", resp.Checks["trading"])
}

func TestHealthChecker_ConcurrentAccess(t *testing.T) {
	hc := New()
	handler := hc.Ready()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			hc.SetReady(i%2 == 0)
			hc.AddCheck("c", func() error { return nil })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ready", nil))
		}
	}()
	wg.Wait()
}
