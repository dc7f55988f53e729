package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/consultrelay/consult-relay-go/internal/bridge"
	"github.com/consultrelay/consult-relay-go/internal/call"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/middleware"
	"github.com/consultrelay/consult-relay-go/internal/model"
	"github.com/consultrelay/consult-relay-go/internal/repository"
	"github.com/consultrelay/consult-relay-go/internal/service"
	"github.com/consultrelay/consult-relay-go/internal/sse"
	"github.com/consultrelay/consult-relay-go/internal/video"
)

var (
	doctor  = &model.User{ID: "doc-1", DisplayName: "Dr. Kim", Role: model.UserRoleDoctor}
	patient = &model.User{ID: "pat-1", DisplayName: "Pat Lee", Role: model.UserRolePatient}
)

func newRequest(method, target, body string, user *model.User) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	return req
}

type fakeRooms struct {
	mu      sync.Mutex
	ensured []video.CreateRoomParams
}

func (f *fakeRooms) GetRoom(_ context.Context, name string) (*video.Room, error) {
	if name == "gone" {
		return nil, apperrors.ProviderRejected(http.StatusNotFound, map[string]any{"error": "not-found"})
	}
	return &video.Room{Name: name, URL: "https://clinic.example/" + name}, nil
}

func (f *fakeRooms) EnsureRoom(_ context.Context, params video.CreateRoomParams) (*video.Room, error) {
	f.mu.Lock()
	f.ensured = append(f.ensured, params)
	f.mu.Unlock()
	return &video.Room{Name: params.Name, URL: "https://clinic.example/" + params.Name}, nil
}

type fakeMinter struct {
	last video.MeetingTokenParams
}

func (f *fakeMinter) CreateMeetingToken(_ context.Context, params video.MeetingTokenParams) (string, error) {
	f.last = params
	if params.IsOwner {
		return "owner-token", nil
	}
	return "guest-token", nil
}

type fakeMeetings struct {
	ended map[string]time.Time
}

func (f *fakeMeetings) FindByID(_ context.Context, meetingID string) (*model.Meeting, error) {
	return nil, nil
}

func (f *fakeMeetings) MarkEnded(_ context.Context, meetingID string, _ *string, endedAt time.Time) (*model.Meeting, error) {
	if f.ended == nil {
		f.ended = make(map[string]time.Time)
	}
	f.ended[meetingID] = endedAt
	return &model.Meeting{MeetingID: meetingID, Status: model.MeetingStatusEnded}, nil
}

func (f *fakeMeetings) WithTx(*sqlx.Tx) repository.MeetingRepository {
	return f
}

// fakeBrowser answers every command the way the browser runtime would.
type fakeBrowser struct {
	reg *service.SessionRegistry

	mu      sync.Mutex
	bridges map[string]*bridge.Bridge
}

func (b *fakeBrowser) Publish(_ context.Context, sessionID string, ev sse.Event) error {
	if ev.Type != sse.EventCommand {
		return nil
	}
	var cmd bridge.Command
	if err := json.Unmarshal(ev.Data, &cmd); err != nil {
		return err
	}
	if cmd.Name == bridge.CmdDestroy {
		return nil
	}
	go b.ack(sessionID, cmd)
	return nil
}

func (b *fakeBrowser) ack(sessionID string, cmd bridge.Command) {
	b.mu.Lock()
	br, ok := b.bridges[sessionID]
	if !ok {
		if s, err := b.reg.Get(sessionID); err == nil {
			br = s.Bridge
			b.bridges[sessionID] = br
		}
	}
	b.mu.Unlock()
	if br == nil {
		return
	}

	ack := bridge.Ack{CommandID: cmd.ID, OK: true}
	switch cmd.Name {
	case bridge.CmdJoin:
		ack.Result = json.RawMessage(`{"participants":[{"sessionId":"local-1","userName":"Dr. Kim","local":true,"audio":true,"video":true}]}`)
	case bridge.CmdCheckDevices:
		ack.Result = json.RawMessage(`{"camera":{"ok":true},"microphone":{"ok":false,"error":"NotAllowedError"}}`)
	case bridge.CmdProbeNetwork:
		ack.Result = json.RawMessage(`{"score":85}`)
	}
	_ = br.Ack(ack)
}

type provisioner struct{}

func (provisioner) ProvisionRoom(_ context.Context, req call.ProvisionRequest) (*call.RoomInfo, error) {
	name := service.RoomNameFor(req.ConsultationID)
	return &call.RoomInfo{Name: name, URL: "https://clinic.example/" + name}, nil
}

type tokens struct{}

func (tokens) IssueToken(_ context.Context, req call.TokenRequest) (string, error) {
	return "tok-" + string(req.Role), nil
}

func newTestRegistry() *service.SessionRegistry {
	browser := &fakeBrowser{bridges: make(map[string]*bridge.Bridge)}
	reg := service.NewSessionRegistry(browser, provisioner{}, tokens{}, nil, service.RegistryConfig{
		CommandTimeout: time.Second,
	})
	browser.reg = reg
	return reg
}
