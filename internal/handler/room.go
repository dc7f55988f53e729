package handler

import (
	"net/http"
	"time"

	"github.com/consultrelay/consult-relay-go/internal/call"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/middleware"
	"github.com/consultrelay/consult-relay-go/internal/model"
	"github.com/consultrelay/consult-relay-go/internal/service"
)

type RoomHandler struct {
	rooms  *service.RoomService
	tokens *service.TokenService
}

func NewRoomHandler(rooms *service.RoomService, tokens *service.TokenService) *RoomHandler {
	return &RoomHandler{rooms: rooms, tokens: tokens}
}

type createRoomRequest struct {
	RoomName      string     `json:"roomName"`
	ScheduledTime *time.Time `json:"scheduledTime"`

	ConsultationID string `json:"consultationId"`
	DoctorID       string `json:"doctorId"`
	PatientID      string `json:"patientId"`
}

type roomResponse struct {
	RoomURL  string `json:"roomUrl"`
	RoomName string `json:"roomName"`
}

// POST /room-endpoint
// Accepts either {roomName, scheduledTime} or {doctorId, patientId, consultationId}.
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.ConsultationID == "" && req.DoctorID == "" && req.PatientID == "" {
		room, err := h.rooms.CreateRoom(r.Context(), req.RoomName, req.ScheduledTime)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, roomResponse{RoomURL: room.URL, RoomName: room.Name})
		return
	}

	if !participates(user, req.DoctorID, req.PatientID) {
		writeError(w, apperrors.Forbidden("Not a participant of this consultation"))
		return
	}

	info, err := h.rooms.ProvisionRoom(r.Context(), call.ProvisionRequest{
		ConsultationID: req.ConsultationID,
		DoctorID:       req.DoctorID,
		PatientID:      req.PatientID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, roomResponse{RoomURL: info.URL, RoomName: info.Name})
}

// GET /room-endpoint?room_name=
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), r.URL.Query().Get("room_name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

type tokenRequest struct {
	RoomName string `json:"roomName"`
	UserName string `json:"userName"`
	UserType string `json:"userType"`
}

// POST /token-endpoint
func (h *RoomHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.tokens.Issue(r.Context(), service.TokenRequest{
		RoomName: req.RoomName,
		UserName: req.UserName,
		UserType: req.UserType,
		Caller:   middleware.GetUser(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// participates reports whether user is the named doctor or patient. A
// missing id is left for provisioning to reject.
func participates(user *model.User, doctorID, patientID string) bool {
	switch user.Role {
	case model.UserRoleDoctor:
		return doctorID == "" || doctorID == user.ID
	case model.UserRolePatient:
		return patientID == "" || patientID == user.ID
	}
	return false
}
