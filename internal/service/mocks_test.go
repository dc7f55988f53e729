package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/consultrelay/consult-relay-go/internal/model"
	redisclient "github.com/consultrelay/consult-relay-go/internal/redis"
	"github.com/consultrelay/consult-relay-go/internal/repository"
	"github.com/consultrelay/consult-relay-go/internal/video"
)

type mockRoomProvider struct {
	mock.Mock
}

func (m *mockRoomProvider) GetRoom(ctx context.Context, name string) (*video.Room, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*video.Room), args.Error(1)
}

func (m *mockRoomProvider) EnsureRoom(ctx context.Context, params video.CreateRoomParams) (*video.Room, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*video.Room), args.Error(1)
}

type mockMinter struct {
	mock.Mock
}

func (m *mockMinter) CreateMeetingToken(ctx context.Context, params video.MeetingTokenParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

type mockConsultationRepo struct {
	mock.Mock
}

func (m *mockConsultationRepo) FindByID(ctx context.Context, id string) (*model.Consultation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Consultation), args.Error(1)
}

func (m *mockConsultationRepo) FindByRoomName(ctx context.Context, roomName string) (*model.Consultation, error) {
	args := m.Called(ctx, roomName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Consultation), args.Error(1)
}

func (m *mockConsultationRepo) Upsert(ctx context.Context, c model.Consultation) (*model.Consultation, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Consultation), args.Error(1)
}

func (m *mockConsultationRepo) WithTx(tx *sqlx.Tx) repository.ConsultationRepository {
	return m
}

type mockMeetingRepo struct {
	mock.Mock
}

func (m *mockMeetingRepo) FindByID(ctx context.Context, meetingID string) (*model.Meeting, error) {
	args := m.Called(ctx, meetingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Meeting), args.Error(1)
}

func (m *mockMeetingRepo) MarkEnded(ctx context.Context, meetingID string, roomName *string, endedAt time.Time) (*model.Meeting, error) {
	args := m.Called(ctx, meetingID, roomName, endedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Meeting), args.Error(1)
}

func (m *mockMeetingRepo) WithTx(tx *sqlx.Tx) repository.MeetingRepository {
	return m
}

// fakeLocker grants the lock unless held is set.
type fakeLocker struct {
	held  bool
	calls []string
}

func (l *fakeLocker) WithConsultationLock(ctx context.Context, consultationID string, fn func(ctx context.Context) error) error {
	l.calls = append(l.calls, consultationID)
	if l.held {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}
