package model

import "time"

// Meeting mirrors a provider-side meeting, keyed by the provider's id.
type Meeting struct {
	MeetingID string        `db:"meeting_id" json:"meetingId"`
	RoomName  *string       `db:"room_name" json:"roomName,omitempty"`
	Status    MeetingStatus `db:"status" json:"status"`
	EndedAt   *time.Time    `db:"ended_at" json:"endedAt,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
}
