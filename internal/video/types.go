package video

import "time"

// Room is a hosted video room as returned by the provider.
type Room struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Privacy   string    `json:"privacy,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type CreateRoomParams struct {
	Name          string
	ScheduledTime *time.Time
	ExpiresAt     *time.Time
}

// MeetingTokenParams describes a join credential. Capability flags are
// decided by the caller's policy, never taken from client input.
type MeetingTokenParams struct {
	RoomName          string
	UserName          string
	IsOwner           bool
	ExpiresAt         time.Time
	EnableScreenShare bool
	EnableRecording   bool
}

type roomProperties struct {
	NotBefore  int64 `json:"nbf,omitempty"`
	Expires    int64 `json:"exp,omitempty"`
	EnableChat bool  `json:"enable_chat"`
}

type createRoomRequest struct {
	Name       string         `json:"name"`
	Privacy    string         `json:"privacy"`
	Properties roomProperties `json:"properties"`
}

type tokenProperties struct {
	RoomName          string `json:"room_name"`
	UserName          string `json:"user_name"`
	Expires           int64  `json:"exp"`
	IsOwner           bool   `json:"is_owner"`
	EnableScreenShare bool   `json:"enable_screenshare"`
	EnableRecording   string `json:"enable_recording,omitempty"`
}

type createTokenRequest struct {
	Properties tokenProperties `json:"properties"`
}

type createTokenResponse struct {
	Token string `json:"token"`
}
