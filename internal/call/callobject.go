package call

import (
	"context"
	"encoding/json"
)

// EventType names the provider SDK events the relay understands.
type EventType string

const (
	EventJoinedMeeting        EventType = "joined-meeting"
	EventLeftMeeting          EventType = "left-meeting"
	EventParticipantJoined    EventType = "participant-joined"
	EventParticipantUpdated   EventType = "participant-updated"
	EventParticipantLeft      EventType = "participant-left"
	EventError                EventType = "error"
	EventCameraError          EventType = "camera-error"
	EventNetworkQualityChange EventType = "network-quality-change"
	EventNetworkConnection    EventType = "network-connection"
	EventAppMessage           EventType = "app-message"
)

// Connection states carried by EventNetworkConnection.
const (
	ConnectionInterrupted = "interrupted"
	ConnectionConnected   = "connected"
)

// Event is a single provider SDK callback.
type Event struct {
	Type EventType `json:"type"`

	// error, camera-error
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
	Device  string `json:"device,omitempty"`

	// network-quality-change: "good", "low" or "very-low"
	Threshold string `json:"threshold,omitempty"`

	// network-connection
	Connection string `json:"connection,omitempty"`

	// app-message
	FromID string          `json:"fromId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type EventHandler func(Event)

type JoinParams struct {
	URL           string
	Token         string
	UserName      string
	StartVideoOff bool
	StartAudioOff bool
}

// BroadcastTarget addresses an app message to every participant.
const BroadcastTarget = "*"

// CallObject is the provider SDK surface a machine drives. Implementations
// must not hold internal locks while invoking event handlers.
type CallObject interface {
	Join(ctx context.Context, params JoinParams) error
	Leave(ctx context.Context) error
	SetLocalAudio(ctx context.Context, enabled bool) error
	SetLocalVideo(ctx context.Context, enabled bool) error
	LocalAudio() bool
	LocalVideo() bool
	Participants() []Participant
	SendAppMessage(ctx context.Context, payload json.RawMessage, target string) error
	// On registers h for every event and returns the matching unsubscribe.
	On(h EventHandler) (unsubscribe func())
	// Destroy releases media tracks. It is called exactly once per object.
	Destroy() error
}

// CallFactory creates a fresh call object for one join attempt.
type CallFactory func(ctx context.Context) (CallObject, error)
