package preview

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rstsite/internal/config"
)

func testConfig(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, "content", filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	cfg := config.Default()
	cfg.SetBaseDir(root)
	cfg.Site.BaseURL = "/docs"
	cfg.Content.GitDates = new(bool)
	enabled := true
	cfg.Server.Metrics = &enabled
	cfg.Server.LiveReload = &enabled
	return cfg
}

func get(t *testing.T, h http.Handler, path string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServerServesBuiltSite(t *testing.T) {
	cfg := testConfig(t, map[string]string{"index.rst": "Home\n====\n\nWelcome.\n"})
	s := New(cfg)
	require.NoError(t, s.Build(context.Background()))
	h := s.Handler()

	resp, body := get(t, h, "/docs/index.html")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<p>Welcome.</p>")
	assert.Contains(t, body, `<script src="/livereload.js" defer></script>`)

	resp, _ = get(t, h, "/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/docs/", resp.Header.Get("Location"))

	resp, body = get(t, h, ScriptPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "EventSource('/livereload')")

	resp, body = get(t, h, MetricsPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "rstsite_livereload_clients")
	assert.Contains(t, body, "rstsite_build_duration_seconds")
}

func TestServerShowsBuildError(t *testing.T) {
	cfg := testConfig(t, map[string]string{"index.rst": "Home\n====\n\nSee :ref:`missing`.\n"})
	s := New(cfg)
	require.Error(t, s.Build(context.Background()))

	resp, body := get(t, s.Handler(), "/docs/index.html")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "Build failed")
	assert.Contains(t, body, "missing")
	assert.Contains(t, body, ScriptPath)
}

func TestShouldIgnoreEvent(t *testing.T) {
	tests := []struct {
		path   string
		ignore bool
	}{
		{"/c/.hidden.rst", true},
		{"/c/#page.rst#", true},
		{"/c/page.rst.swp", true},
		{"/c/page.rst~", true},
		{"/c/.DS_Store", true},
		{"/c/page.rst", false},
		{"/c/img/plot.png", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ignore, shouldIgnoreEvent(tt.path), tt.path)
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	var fired atomic.Int32
	d := newDebouncer(30*time.Millisecond, func() { fired.Add(1) })
	for range 5 {
		d.trigger()
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 1, fired.Load())
	d.stop()
}
