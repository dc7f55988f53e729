package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/consultrelay/consult-relay-go/internal/call"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/model"
	"github.com/consultrelay/consult-relay-go/internal/video"
)

func TestRoomNameFor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"c-1", "c-1"},
		{"C_2", "c_2"},
		{"consult 7/a", "consult-7-a"},
		{"3f2b8c1e-0d4a-4d6e-9b1f-2c3d4e5f6a7b", "3f2b8c1e-0d4a-4d6e-9b1f-2c3d4e5f6a7b"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, RoomNameFor(tc.in))
	}
}

func TestRoomService_ProvisionRoom(t *testing.T) {
	req := call.ProvisionRequest{ConsultationID: "c-1", DoctorID: "doc-1", PatientID: "pat-1"}
	room := &video.Room{Name: "c-1", URL: "https://x.example/c-1"}

	t.Run("creates room and records it", func(t *testing.T) {
		provider := new(mockRoomProvider)
		repo := new(mockConsultationRepo)
		locker := &fakeLocker{}
		svc := NewRoomService(provider, repo, locker)

		provider.On("EnsureRoom", mock.Anything, video.CreateRoomParams{Name: "c-1"}).Return(room, nil).Once()
		repo.On("FindByID", mock.Anything, "c-1").Return(nil, nil)
		repo.On("Upsert", mock.Anything, mock.MatchedBy(func(c model.Consultation) bool {
			return c.ID == "c-1" && c.DoctorID == "doc-1" && c.PatientID == "pat-1" &&
				c.RoomName != nil && *c.RoomName == "c-1" &&
				c.RoomURL != nil && *c.RoomURL == "https://x.example/c-1" &&
				c.Status == model.ConsultationStatusScheduled
		})).Return(&model.Consultation{ID: "c-1"}, nil)

		info, err := svc.ProvisionRoom(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, &call.RoomInfo{Name: "c-1", URL: "https://x.example/c-1"}, info)
		assert.Equal(t, []string{"c-1"}, locker.calls)
		provider.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("keeps status of an existing consultation", func(t *testing.T) {
		provider := new(mockRoomProvider)
		repo := new(mockConsultationRepo)
		svc := NewRoomService(provider, repo, &fakeLocker{})

		started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		provider.On("EnsureRoom", mock.Anything, mock.Anything).Return(room, nil)
		repo.On("FindByID", mock.Anything, "c-1").Return(&model.Consultation{
			ID:        "c-1",
			Status:    model.ConsultationStatusActive,
			StartedAt: started,
		}, nil)
		repo.On("Upsert", mock.Anything, mock.MatchedBy(func(c model.Consultation) bool {
			return c.Status == model.ConsultationStatusActive && c.StartedAt.Equal(started)
		})).Return(&model.Consultation{ID: "c-1"}, nil)

		_, err := svc.ProvisionRoom(context.Background(), req)
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("lock held", func(t *testing.T) {
		provider := new(mockRoomProvider)
		svc := NewRoomService(provider, nil, &fakeLocker{held: true})

		_, err := svc.ProvisionRoom(context.Background(), req)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
		provider.AssertNotCalled(t, "EnsureRoom", mock.Anything, mock.Anything)
	})

	t.Run("provider unavailable surfaces unchanged", func(t *testing.T) {
		provider := new(mockRoomProvider)
		svc := NewRoomService(provider, nil, nil)
		provider.On("EnsureRoom", mock.Anything, mock.Anything).
			Return(nil, apperrors.ServiceUnavailable(3, errors.New("503")))

		_, err := svc.ProvisionRoom(context.Background(), req)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeServiceUnavailable))
	})

	t.Run("database failure", func(t *testing.T) {
		provider := new(mockRoomProvider)
		repo := new(mockConsultationRepo)
		svc := NewRoomService(provider, repo, nil)
		provider.On("EnsureRoom", mock.Anything, mock.Anything).Return(room, nil)
		repo.On("FindByID", mock.Anything, "c-1").Return(nil, errors.New("connection refused"))

		_, err := svc.ProvisionRoom(context.Background(), req)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
	})

	t.Run("missing identifiers", func(t *testing.T) {
		provider := new(mockRoomProvider)
		svc := NewRoomService(provider, nil, nil)

		for _, r := range []call.ProvisionRequest{
			{DoctorID: "doc-1", PatientID: "pat-1"},
			{ConsultationID: "c-1", PatientID: "pat-1"},
			{ConsultationID: "c-1", DoctorID: "doc-1"},
		} {
			_, err := svc.ProvisionRoom(context.Background(), r)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingRequired))
		}
		provider.AssertNotCalled(t, "EnsureRoom", mock.Anything, mock.Anything)
	})
}

func TestRoomService_CreateRoom(t *testing.T) {
	provider := new(mockRoomProvider)
	svc := NewRoomService(provider, nil, nil)
	scheduled := time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)

	provider.On("EnsureRoom", mock.Anything, video.CreateRoomParams{Name: "follow-up", ScheduledTime: &scheduled}).
		Return(&video.Room{Name: "follow-up", URL: "https://x.example/follow-up"}, nil)

	room, err := svc.CreateRoom(context.Background(), " follow-up ", &scheduled)
	require.NoError(t, err)
	assert.Equal(t, "https://x.example/follow-up", room.URL)

	_, err = svc.CreateRoom(context.Background(), "  ", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingRequired))
}

func TestRoomService_CreateRoom_CallerCancelDoesNotFailSharedRequest(t *testing.T) {
	provider := new(mockRoomProvider)
	svc := NewRoomService(provider, nil, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var providerErrs []error

	provider.On("EnsureRoom", mock.Anything, video.CreateRoomParams{Name: "c-1"}).
		Run(func(args mock.Arguments) {
			once.Do(func() { close(started) })
			<-release
			mu.Lock()
			providerErrs = append(providerErrs, args.Get(0).(context.Context).Err())
			mu.Unlock()
		}).
		Return(&video.Room{Name: "c-1", URL: "https://x.example/c-1"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.CreateRoom(ctx, "c-1", nil)
		firstErr <- err
	}()
	<-started

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan *video.Room, 1)
	go func() {
		room, err := svc.CreateRoom(context.Background(), "c-1", nil)
		assert.NoError(t, err)
		second <- room
	}()
	close(release)

	room := <-second
	require.NotNil(t, room)
	assert.Equal(t, "https://x.example/c-1", room.URL)

	mu.Lock()
	defer mu.Unlock()
	for _, err := range providerErrs {
		assert.NoError(t, err)
	}
}

func TestRoomService_GetRoom(t *testing.T) {
	provider := new(mockRoomProvider)
	svc := NewRoomService(provider, nil, nil)

	provider.On("GetRoom", mock.Anything, "c-1").Return(&video.Room{Name: "c-1"}, nil)
	provider.On("GetRoom", mock.Anything, "gone").
		Return(nil, apperrors.ProviderRejected(http.StatusNotFound, map[string]any{"error": "not-found"}))

	room, err := svc.GetRoom(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", room.Name)

	_, err = svc.GetRoom(context.Background(), "gone")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))

	_, err = svc.GetRoom(context.Background(), "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingRequired))
}
