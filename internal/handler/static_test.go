package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>runtime</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bridge.js"), []byte("connectBridge();"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.txt"), []byte("nope"), 0o644))
	t.Cleanup(func() { os.Remove(filepath.Join(filepath.Dir(dir), "secret.txt")) })

	handler := NewClientHandler(dir)

	tests := []struct {
		name     string
		path     string
		wantCode int
		contains string
	}{
		{name: "root serves index", path: "/", wantCode: http.StatusOK, contains: "runtime"},
		{name: "serves script", path: "/bridge.js", wantCode: http.StatusOK, contains: "connectBridge"},
		{name: "unknown path falls back to index", path: "/sessions/abc", wantCode: http.StatusOK, contains: "runtime"},
		{name: "traversal is rejected", path: "/../secret.txt", wantCode: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.URL.Path = tc.path
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.contains)
			assert.NotContains(t, rec.Body.String(), "nope")
		})
	}

	t.Run("missing index returns 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewClientHandler(t.TempDir()).ServeHTTP(rec, httptest.NewRequest("GET", "/anything", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
