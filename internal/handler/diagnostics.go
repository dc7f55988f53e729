package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
)

const (
	defaultProbeBytes = 256 << 10
	maxProbeBytes     = 5 << 20
)

// ProbeHandler serves the endpoints the browser measures its link
// against before a call.
type ProbeHandler struct {
	payload []byte
	now     func() time.Time
}

func NewProbeHandler() *ProbeHandler {
	payload := make([]byte, maxProbeBytes)
	for i := range payload {
		payload[i] = byte(i)
	}
	return &ProbeHandler{payload: payload, now: time.Now}
}

// GET /diagnostics/ping
func (h *ProbeHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"serverTime": h.now().UnixMilli()})
}

// GET /diagnostics/download?bytes=
func (h *ProbeHandler) Download(w http.ResponseWriter, r *http.Request) {
	size := defaultProbeBytes
	if raw := r.URL.Query().Get("bytes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apperrors.InvalidInput("bytes", "must be a positive integer"))
			return
		}
		size = min(n, maxProbeBytes)
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(size))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.payload[:size])
}

// POST /diagnostics/upload
func (h *ProbeHandler) Upload(w http.ResponseWriter, r *http.Request) {
	n, err := io.Copy(io.Discard, io.LimitReader(r.Body, maxProbeBytes+1))
	if err != nil {
		writeError(w, apperrors.InvalidInput("body", "unreadable request body"))
		return
	}
	if n > maxProbeBytes {
		writeError(w, apperrors.New(apperrors.ErrCodeValidation, "Probe upload too large").
			WithStatus(http.StatusRequestEntityTooLarge))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"bytes": n})
}
