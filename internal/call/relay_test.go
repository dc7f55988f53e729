package call

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	calls []string
	src   []CallObject
	args  []any
}

func (s *recordingSink) record(name string, src CallObject, args ...any) {
	s.calls = append(s.calls, name)
	s.src = append(s.src, src)
	s.args = append(s.args, args)
}

func (s *recordingSink) onJoined(src CallObject) { s.record("joined", src) }
func (s *recordingSink) onLeft(src CallObject)   { s.record("left", src) }
func (s *recordingSink) onParticipantsChanged(src CallObject) {
	s.record("participants", src)
}
func (s *recordingSink) onFatal(src CallObject, message string, details any) {
	s.record("fatal", src, message, details)
}
func (s *recordingSink) onMediaError(src CallObject, device, message string) {
	s.record("media", src, device, message)
}
func (s *recordingSink) onNetworkQuality(src CallObject, threshold string) {
	s.record("quality", src, threshold)
}
func (s *recordingSink) onConnection(src CallObject, state string) {
	s.record("connection", src, state)
}
func (s *recordingSink) onAppMessage(src CallObject, fromID string, data []byte) {
	s.record("app", src, fromID, string(data))
}

func TestRelay_Dispatch(t *testing.T) {
	tests := []struct {
		event Event
		want  string
		args  []any
	}{
		{Event{Type: EventJoinedMeeting}, "joined", nil},
		{Event{Type: EventLeftMeeting}, "left", nil},
		{Event{Type: EventParticipantJoined}, "participants", nil},
		{Event{Type: EventParticipantUpdated}, "participants", nil},
		{Event{Type: EventParticipantLeft}, "participants", nil},
		{Event{Type: EventError, Message: "ejected", Details: "x"}, "fatal", []any{"ejected", "x"}},
		{Event{Type: EventCameraError, Device: "camera", Message: "denied"}, "media", []any{"camera", "denied"}},
		{Event{Type: EventNetworkQualityChange, Threshold: "low"}, "quality", []any{"low"}},
		{Event{Type: EventNetworkConnection, Connection: "interrupted"}, "connection", []any{"interrupted"}},
		{Event{Type: EventAppMessage, FromID: "p-1", Data: json.RawMessage(`{"content":"hi"}`)}, "app", []any{"p-1", `{"content":"hi"}`}},
	}

	for _, tc := range tests {
		t.Run(string(tc.event.Type), func(t *testing.T) {
			f := newFakeCall()
			s := &recordingSink{}
			r := attachRelay(f, s)
			defer r.Detach()

			f.emit(tc.event)

			assert.Equal(t, []string{tc.want}, s.calls)
			assert.Same(t, f, s.src[0].(*fakeCall))
			if tc.args != nil {
				assert.Equal(t, tc.args, s.args[0])
			}
		})
	}
}

func TestRelay_IgnoresUnknownEvents(t *testing.T) {
	f := newFakeCall()
	s := &recordingSink{}
	attachRelay(f, s)

	f.emit(Event{Type: "active-speaker-change"})

	assert.Empty(t, s.calls)
}

func TestRelay_Detach(t *testing.T) {
	f := newFakeCall()
	s := &recordingSink{}
	r := attachRelay(f, s)
	assert.Equal(t, 1, f.listeners())

	r.Detach()
	r.Detach()
	assert.Equal(t, 0, f.listeners())

	f.emit(Event{Type: EventJoinedMeeting})
	assert.Empty(t, s.calls)

	var nilRelay *Relay
	assert.NotPanics(t, nilRelay.Detach)
}
