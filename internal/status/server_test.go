package status

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hara602/datrain/internal/audit"
	"github.com/Hara602/datrain/internal/cache"
	"github.com/Hara602/datrain/internal/model"
	"github.com/Hara602/datrain/internal/sysutil"
)

func TestMain(m *testing.M) {
	sysutil.InitLogger(false)
	os.Exit(m.Run())
}

func newServer(t *testing.T) (*Server, *audit.Trail) {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache"), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	trail, err := audit.NewTrail(filepath.Join(t.TempDir(), "audit.jsonl"), 16, reg)
	require.NoError(t, err)

	return New(reg, store, trail), trail
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthReportsCacheCount(t *testing.T) {
	srv, _ := newServer(t)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "healthy")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "datrain_audit_dropped_total")
}

// 恶意或手滑的 n=-1 只能得到空结果，绝不能打挂进程
func TestRecentEndpointsRejectNegativeN(t *testing.T) {
	srv, trail := newServer(t)
	trail.Record("a.txt", model.VerdictAccepted, model.OutcomeCommitted, "", nil)
	require.NoError(t, trail.Close())

	for _, path := range []string{"/audit/recent?n=-1", "/cache/recent?n=-1"} {
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		resp, err := srv.app.Test(req)
		require.NoError(t, err, path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	// 进程还活着，正常请求照常服务
	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuditRecent(t *testing.T) {
	srv, trail := newServer(t)
	trail.Record("a.txt", model.VerdictAccepted, model.OutcomeCommitted, "", nil)
	require.NoError(t, trail.Close())

	req, _ := http.NewRequest(http.MethodGet, "/audit/recent?n=5", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "a.txt")
	assert.Contains(t, string(body), "ACCEPTED_COMMITTED")
}
