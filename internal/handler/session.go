package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/consultrelay/consult-relay-go/internal/audit"
	"github.com/consultrelay/consult-relay-go/internal/bridge"
	"github.com/consultrelay/consult-relay-go/internal/call"
	"github.com/consultrelay/consult-relay-go/internal/config"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/middleware"
	"github.com/consultrelay/consult-relay-go/internal/service"
)

type sessionContextKey struct{}

func getSession(ctx context.Context) *service.Session {
	s, _ := ctx.Value(sessionContextKey{}).(*service.Session)
	return s
}

type SessionHandler struct {
	registry *service.SessionRegistry
	events   http.Handler
	actions  []func(http.Handler) http.Handler
}

// NewSessionHandler builds the session routes. actions wrap the
// user-initiated routes only; the event stream and the browser runtime's
// bridge traffic bypass them.
func NewSessionHandler(registry *service.SessionRegistry, events http.Handler, actions ...func(http.Handler) http.Handler) *SessionHandler {
	return &SessionHandler{registry: registry, events: events, actions: actions}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.actions...).With(chimiddleware.Timeout(config.ServerRequestTimeout)).Post("/", h.Create)

	r.Route("/{id}", func(r chi.Router) {
		r.Use(h.authorize)

		// The stream outlives any request timeout.
		r.Get("/events", h.events.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

			r.Post("/bridge/ack", h.BridgeAck)
			r.Post("/bridge/events", h.BridgeEvent)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.actions...)
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

			r.Get("/", h.Get)
			r.Delete("/", h.Dispose)

			r.Post("/preview", h.Preview)
			r.Post("/start", h.Start)
			r.Post("/join", h.Join)
			r.Post("/leave", h.Leave)
			r.Post("/camera", h.ToggleCamera)
			r.Post("/microphone", h.ToggleMicrophone)
			r.Post("/chat", h.SendChat)
			r.Post("/suggestions", h.AddSuggestion)
			r.Post("/diagnostics", h.RunDiagnostics)
			r.Post("/diagnostics/devices", h.CheckDevices)
			r.Post("/diagnostics/network", h.CheckNetwork)
		})
	})

	return r
}

// authorize loads the session named in the path and checks the caller
// owns it.
func (h *SessionHandler) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		user := middleware.GetUser(r.Context())

		s, err := h.registry.Authorize(id, user)
		if err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeForbidden) {
				event := audit.Event{Type: audit.EventSessionAccessDeny, SessionID: id}
				if user != nil {
					event.UserID = user.ID
				}
				audit.LogFromRequest(r, event)
			}
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			sub := l.With().Str("sessionId", id).Logger()
			ctx = sub.WithContext(ctx)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type createSessionRequest struct {
	ConsultationID string `json:"consultationId"`
	DoctorID       string `json:"doctorId"`
	PatientID      string `json:"patientId"`
	UserName       string `json:"userName"`
}

// POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	s, err := h.registry.Create(r.Context(), service.CreateSessionParams{
		ConsultationID: req.ConsultationID,
		DoctorID:       req.DoctorID,
		PatientID:      req.PatientID,
		UserName:       req.UserName,
		User:           user,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionCreate,
		UserID:    user.ID,
		SessionID: s.ID,
		Details:   map[string]interface{}{"consultationId": s.Machine.Snapshot().Consultation.ID},
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId": s.ID,
		"session":   s.View(),
	})
}

// GET /v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, getSession(r.Context()).View())
}

// DELETE /v1/sessions/{id}
func (h *SessionHandler) Dispose(w http.ResponseWriter, r *http.Request) {
	s := getSession(r.Context())
	if err := h.registry.Dispose(r.Context(), s.ID); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionDelete,
		UserID:    s.OwnerID,
		SessionID: s.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/sessions/{id}/preview
func (h *SessionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	s := getSession(r.Context())
	if err := s.Machine.StartPreview(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// POST /v1/sessions/{id}/start
// Provisions the consultation room and joins it. Blocks until the call
// connects or fails.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	s := getSession(r.Context())
	if err := s.Machine.Start(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

type joinRequest struct {
	RoomURL  string `json:"roomUrl"`
	RoomName string `json:"roomName"`
}

// POST /v1/sessions/{id}/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	s := getSession(r.Context())

	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.Machine.Join(r.Context(), req.RoomURL, req.RoomName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

// POST /v1/sessions/{id}/leave
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	s := getSession(r.Context())
	_ = s.Machine.Leave(r.Context())
	writeJSON(w, http.StatusOK, s.View())
}

// POST /v1/sessions/{id}/camera
func (h *SessionHandler) ToggleCamera(w http.ResponseWriter, r *http.Request) {
	off, err := getSession(r.Context()).Machine.ToggleCamera(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cameraOff": off})
}

// POST /v1/sessions/{id}/microphone
func (h *SessionHandler) ToggleMicrophone(w http.ResponseWriter, r *http.Request) {
	muted, err := getSession(r.Context()).Machine.ToggleMicrophone(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"micMuted": muted})
}

// POST /v1/sessions/{id}/chat
func (h *SessionHandler) SendChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := getSession(r.Context()).Machine.SendChat(req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// POST /v1/sessions/{id}/suggestions
func (h *SessionHandler) AddSuggestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind       call.SuggestionKind `json:"kind"`
		Content    string              `json:"content"`
		Confidence float64             `json:"confidence"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	suggestion, err := getSession(r.Context()).Machine.AddSuggestion(req.Kind, req.Content, req.Confidence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, suggestion)
}

// POST /v1/sessions/{id}/diagnostics
// Runs the device and network checks together.
func (h *SessionHandler) RunDiagnostics(w http.ResponseWriter, r *http.Request) {
	report, err := getSession(r.Context()).Diagnostics.RunAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// POST /v1/sessions/{id}/diagnostics/devices
func (h *SessionHandler) CheckDevices(w http.ResponseWriter, r *http.Request) {
	report, err := getSession(r.Context()).Diagnostics.CheckDevices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// POST /v1/sessions/{id}/diagnostics/network
func (h *SessionHandler) CheckNetwork(w http.ResponseWriter, r *http.Request) {
	result, err := getSession(r.Context()).Diagnostics.CheckNetwork(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /v1/sessions/{id}/bridge/ack
func (h *SessionHandler) BridgeAck(w http.ResponseWriter, r *http.Request) {
	var ack bridge.Ack
	if err := decodeJSON(r, &ack); err != nil {
		writeError(w, err)
		return
	}

	if err := getSession(r.Context()).Bridge.Ack(ack); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /v1/sessions/{id}/bridge/events
func (h *SessionHandler) BridgeEvent(w http.ResponseWriter, r *http.Request) {
	var ev bridge.Inbound
	if err := decodeJSON(r, &ev); err != nil {
		writeError(w, err)
		return
	}

	if err := getSession(r.Context()).Bridge.Dispatch(ev); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
