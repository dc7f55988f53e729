package call

import (
	"time"

	"github.com/consultrelay/consult-relay-go/internal/model"
)

// Status is the lifecycle state of a call.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusTesting    Status = "testing"
	StatusPreparing  Status = "preparing"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusLeft       Status = "left"
	StatusError      Status = "error"
)

// inFlight reports whether a join is outstanding or established.
func (s Status) inFlight() bool {
	return s == StatusPreparing || s == StatusConnecting || s == StatusConnected
}

type NetworkQuality string

const (
	NetworkGood         NetworkQuality = "good"
	NetworkPoor         NetworkQuality = "poor"
	NetworkDisconnected NetworkQuality = "disconnected"
)

// Tracks holds opaque provider handles for a participant's media.
type Tracks struct {
	Audio string `json:"audio,omitempty"`
	Video string `json:"video,omitempty"`
}

type Participant struct {
	SessionID string `json:"sessionId"`
	UserName  string `json:"userName"`
	Local     bool   `json:"local"`
	Audio     bool   `json:"audio"`
	Video     bool   `json:"video"`
	Tracks    Tracks `json:"tracks"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsLocal   bool      `json:"isLocal"`
}

type SuggestionKind string

const (
	SuggestionKindSuggestion SuggestionKind = "suggestion"
	SuggestionKindAlert      SuggestionKind = "alert"
	SuggestionKindDiagnosis  SuggestionKind = "diagnosis"
)

func (k SuggestionKind) Valid() bool {
	switch k {
	case SuggestionKindSuggestion, SuggestionKindAlert, SuggestionKindDiagnosis:
		return true
	}
	return false
}

type AISuggestion struct {
	ID         string         `json:"id"`
	Kind       SuggestionKind `json:"kind"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
}

// SessionError is the normalized shape every provider or client failure
// takes before it reaches the UI.
type SessionError struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// MediaErrors tracks device failures independently per device.
type MediaErrors struct {
	Camera     string `json:"camera,omitempty"`
	Microphone string `json:"microphone,omitempty"`
}

// Consultation is the runtime view of the consultation a machine drives.
type Consultation struct {
	ID        string                   `json:"id"`
	DoctorID  string                   `json:"doctorId"`
	PatientID string                   `json:"patientId"`
	RoomURL   string                   `json:"roomUrl,omitempty"`
	RoomName  string                   `json:"roomName,omitempty"`
	Status    model.ConsultationStatus `json:"status"`
	StartedAt time.Time                `json:"startedAt"`
	EndedAt   *time.Time               `json:"endedAt,omitempty"`
}

// Snapshot is a copy of the machine's state safe to hand to other goroutines.
type Snapshot struct {
	SessionID      string                 `json:"sessionId"`
	Status         Status                 `json:"status"`
	Consultation   Consultation           `json:"consultation"`
	Roster         map[string]Participant `json:"roster"`
	CameraOff      bool                   `json:"cameraOff"`
	MicMuted       bool                   `json:"micMuted"`
	NetworkQuality NetworkQuality         `json:"networkQuality"`
	Error          *SessionError          `json:"error,omitempty"`
	MediaErrors    MediaErrors            `json:"mediaErrors"`
	Chat           []ChatMessage          `json:"chat"`
	Suggestions    []AISuggestion         `json:"suggestions"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}
