package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/consultrelay/consult-relay-go/internal/audit"
	"github.com/consultrelay/consult-relay-go/internal/call"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/model"
	redisclient "github.com/consultrelay/consult-relay-go/internal/redis"
	"github.com/consultrelay/consult-relay-go/internal/repository"
	"github.com/consultrelay/consult-relay-go/internal/video"
)

// RoomProvider is the provider's room API.
type RoomProvider interface {
	GetRoom(ctx context.Context, name string) (*video.Room, error)
	EnsureRoom(ctx context.Context, params video.CreateRoomParams) (*video.Room, error)
}

type RoomService struct {
	provider      RoomProvider
	consultations repository.ConsultationRepository
	locker        redisclient.Locker
	flights       singleflight.Group
}

func NewRoomService(
	provider RoomProvider,
	consultations repository.ConsultationRepository,
	locker redisclient.Locker,
) *RoomService {
	return &RoomService{
		provider:      provider,
		consultations: consultations,
		locker:        locker,
	}
}

// CreateRoom creates or returns the named room.
func (s *RoomService) CreateRoom(ctx context.Context, name string, scheduledTime *time.Time) (*video.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.MissingRequired("roomName")
	}
	return s.ensure(ctx, video.CreateRoomParams{Name: name, ScheduledTime: scheduledTime})
}

func (s *RoomService) GetRoom(ctx context.Context, name string) (*video.Room, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.MissingRequired("room_name")
	}
	room, err := s.provider.GetRoom(ctx, name)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Status() == http.StatusNotFound {
			return nil, apperrors.NotFound("Room")
		}
		return nil, err
	}
	return room, nil
}

// ProvisionRoom provisions the room for a consultation and records it.
// The room is named after the consultation. A per-consultation lock keeps
// two instances from provisioning the same consultation at once.
func (s *RoomService) ProvisionRoom(ctx context.Context, req call.ProvisionRequest) (*call.RoomInfo, error) {
	if req.ConsultationID == "" {
		return nil, apperrors.MissingRequired("consultationId")
	}
	if req.DoctorID == "" {
		return nil, apperrors.MissingRequired("doctorId")
	}
	if req.PatientID == "" {
		return nil, apperrors.MissingRequired("patientId")
	}

	var info *call.RoomInfo
	provision := func(ctx context.Context) error {
		room, err := s.ensure(ctx, video.CreateRoomParams{Name: RoomNameFor(req.ConsultationID)})
		if err != nil {
			return err
		}
		info = &call.RoomInfo{Name: room.Name, URL: room.URL}
		return s.recordRoom(ctx, req, room)
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithConsultationLock(ctx, req.ConsultationID, provision)
	} else {
		err = provision(ctx)
	}
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, apperrors.Conflict("Room provisioning already in progress for this consultation")
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("consultationId", req.ConsultationID).
		Str("room", info.Name).
		Msg("consultation room provisioned")
	audit.Log(ctx, audit.Event{
		Type: audit.EventRoomProvisioned,
		Details: map[string]interface{}{
			"consultationId": req.ConsultationID,
			"room":           info.Name,
		},
	})

	return info, nil
}

func (s *RoomService) ensure(ctx context.Context, params video.CreateRoomParams) (*video.Room, error) {
	// The flight is shared, so one caller going away must not cancel it
	// for the others.
	ch := s.flights.DoChan(params.Name, func() (any, error) {
		return s.provider.EnsureRoom(context.WithoutCancel(ctx), params)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug().Str("room", params.Name).Msg("joined in-flight room request")
		}
		return res.Val.(*video.Room), nil
	}
}

func (s *RoomService) recordRoom(ctx context.Context, req call.ProvisionRequest, room *video.Room) error {
	if s.consultations == nil {
		return nil
	}

	existing, err := s.consultations.FindByID(ctx, req.ConsultationID)
	if err != nil {
		return apperrors.Database(err)
	}

	c := model.Consultation{
		ID:        req.ConsultationID,
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		RoomName:  &room.Name,
		RoomURL:   &room.URL,
		Status:    model.ConsultationStatusScheduled,
		StartedAt: time.Now(),
	}
	if existing != nil {
		c.Status = existing.Status
		c.StartedAt = existing.StartedAt
		c.EndedAt = existing.EndedAt
	}

	if _, err := s.consultations.Upsert(ctx, c); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// RoomNameFor derives the provider room name for a consultation. Provider
// room names allow letters, digits, '-' and '_'.
func RoomNameFor(consultationID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(consultationID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
