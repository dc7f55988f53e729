package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"
)

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) ProvisionRoom(ctx context.Context, req ProvisionRequest) (*RoomInfo, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RoomInfo), args.Error(1)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) IssueToken(ctx context.Context, req TokenRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveConsultation(ctx context.Context, c Consultation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

type recordingObserver struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (o *recordingObserver) SessionChanged(s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snaps = append(o.snaps, s)
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.snaps)
}

type sentMessage struct {
	payload json.RawMessage
	target  string
}

const fakeLocalID = "local-1"

// fakeCall is an in-memory CallObject that tracks calls and lets tests
// emit provider events.
type fakeCall struct {
	mu sync.Mutex

	joinCalls    int
	leaveCalls   int
	destroyCalls int
	joinParams   JoinParams
	joinErr      error

	audio  bool
	video  bool
	joined bool
	remote []Participant

	// videoErr fails SetLocalVideo; ignoreVideo accepts it without applying.
	videoErr    error
	ignoreVideo bool

	sendGate chan struct{}
	sent     chan sentMessage

	handlers map[int]EventHandler
	nextID   int
}

func newFakeCall() *fakeCall {
	return &fakeCall{
		audio:    true,
		video:    true,
		sent:     make(chan sentMessage, 16),
		handlers: make(map[int]EventHandler),
	}
}

func (f *fakeCall) Join(_ context.Context, p JoinParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinCalls++
	f.joinParams = p
	if f.joinErr != nil {
		return f.joinErr
	}
	f.video = !p.StartVideoOff
	f.audio = !p.StartAudioOff
	f.joined = true
	return nil
}

func (f *fakeCall) Leave(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveCalls++
	f.joined = false
	return nil
}

func (f *fakeCall) SetLocalAudio(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = enabled
	return nil
}

func (f *fakeCall) SetLocalVideo(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.videoErr != nil {
		return f.videoErr
	}
	if !f.ignoreVideo {
		f.video = enabled
	}
	return nil
}

func (f *fakeCall) LocalAudio() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audio
}

func (f *fakeCall) LocalVideo() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.video
}

func (f *fakeCall) Participants() []Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.joined {
		return nil
	}
	ps := []Participant{{
		SessionID: fakeLocalID,
		UserName:  f.joinParams.UserName,
		Local:     true,
		Audio:     f.audio,
		Video:     f.video,
	}}
	return append(ps, f.remote...)
}

func (f *fakeCall) SendAppMessage(ctx context.Context, payload json.RawMessage, target string) error {
	if f.sendGate != nil {
		select {
		case <-f.sendGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.sent <- sentMessage{payload: payload, target: target}
	return nil
}

func (f *fakeCall) On(h EventHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.handlers[id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

func (f *fakeCall) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCalls++
	return nil
}

func (f *fakeCall) emit(ev Event) {
	f.mu.Lock()
	hs := make([]EventHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (f *fakeCall) setRemote(ps ...Participant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = ps
}

func (f *fakeCall) listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeCall) counts() (join, leave, destroy int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joinCalls, f.leaveCalls, f.destroyCalls
}

// fakeFactory hands out one fakeCall per invocation and remembers them.
type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeCall
	err     error
	setup   func(*fakeCall)
}

func (ff *fakeFactory) New(context.Context) (CallObject, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.err != nil {
		return nil, ff.err
	}
	f := newFakeCall()
	if ff.setup != nil {
		ff.setup(f)
	}
	ff.created = append(ff.created, f)
	return f, nil
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.created)
}

func (ff *fakeFactory) last() *fakeCall {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.created) == 0 {
		return nil
	}
	return ff.created[len(ff.created)-1]
}

var errBoom = errors.New("boom")
