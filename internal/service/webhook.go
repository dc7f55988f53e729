package service

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/repository"
)

const WebhookMeetingEnded = "meeting.ended"

// WebhookEvent is the provider's webhook envelope.
type WebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	EventTs float64         `json:"event_ts"`
	Payload json.RawMessage `json:"payload"`
}

type meetingEndedPayload struct {
	MeetingID string  `json:"meeting_id"`
	Room      string  `json:"room"`
	StartTs   float64 `json:"start_ts"`
	EndTs     float64 `json:"end_ts"`
}

type WebhookService struct {
	meetings repository.MeetingRepository
	now      func() time.Time
}

func NewWebhookService(meetings repository.MeetingRepository) *WebhookService {
	return &WebhookService{meetings: meetings, now: time.Now}
}

// Handle applies a provider event. Event types other than meeting.ended
// are accepted and ignored so the provider does not retry them.
func (s *WebhookService) Handle(ctx context.Context, ev WebhookEvent) error {
	switch ev.Type {
	case WebhookMeetingEnded:
		return s.meetingEnded(ctx, ev)
	default:
		log.Debug().Str("type", ev.Type).Str("id", ev.ID).Msg("ignoring webhook event")
		return nil
	}
}

func (s *WebhookService) meetingEnded(ctx context.Context, ev WebhookEvent) error {
	var p meetingEndedPayload
	if len(ev.Payload) == 0 {
		return apperrors.MissingRequired("payload")
	}
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return apperrors.InvalidInput("payload", "malformed meeting.ended payload")
	}
	if p.MeetingID == "" {
		return apperrors.MissingRequired("payload.meeting_id")
	}

	endedAt := s.now()
	if p.EndTs > 0 {
		endedAt = unixSeconds(p.EndTs)
	}
	var room *string
	if p.Room != "" {
		room = &p.Room
	}

	if _, err := s.meetings.MarkEnded(ctx, p.MeetingID, room, endedAt); err != nil {
		return apperrors.Database(err)
	}

	log.Info().
		Str("meetingId", p.MeetingID).
		Str("room", p.Room).
		Time("endedAt", endedAt).
		Msg("meeting ended")

	return nil
}

func unixSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}
