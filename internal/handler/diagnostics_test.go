package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeHandler_Ping(t *testing.T) {
	h := NewProbeHandler()
	h.now = func() time.Time { return time.UnixMilli(1767225600123) }

	rec := httptest.NewRecorder()
	h.Ping(rec, httptest.NewRequest(http.MethodGet, "/diagnostics/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"serverTime":1767225600123}`, rec.Body.String())
}

func TestProbeHandler_Download(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode int
		wantLen  int
	}{
		{name: "default size", query: "", wantCode: http.StatusOK, wantLen: defaultProbeBytes},
		{name: "requested size", query: "?bytes=1024", wantCode: http.StatusOK, wantLen: 1024},
		{name: "capped", query: "?bytes=999999999", wantCode: http.StatusOK, wantLen: maxProbeBytes},
		{name: "not a number", query: "?bytes=lots", wantCode: http.StatusBadRequest},
		{name: "zero", query: "?bytes=0", wantCode: http.StatusBadRequest},
	}

	h := NewProbeHandler()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Download(rec, httptest.NewRequest(http.MethodGet, "/diagnostics/download"+tc.query, nil))

			require.Equal(t, tc.wantCode, rec.Code)
			if tc.wantCode == http.StatusOK {
				assert.Equal(t, tc.wantLen, rec.Body.Len())
				assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestProbeHandler_Upload(t *testing.T) {
	h := NewProbeHandler()

	rec := httptest.NewRecorder()
	h.Upload(rec, httptest.NewRequest(http.MethodPost, "/diagnostics/upload", bytes.NewReader(make([]byte, 4096))))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bytes":4096}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Upload(rec, httptest.NewRequest(http.MethodPost, "/diagnostics/upload", bytes.NewReader(make([]byte, maxProbeBytes+1))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
