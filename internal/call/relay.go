package call

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// sink receives translated provider events. Each method corresponds to
// exactly one event type; src identifies the call object the event came
// from so stale objects can be ignored.
type sink interface {
	onJoined(src CallObject)
	onLeft(src CallObject)
	onParticipantsChanged(src CallObject)
	onFatal(src CallObject, message string, details any)
	onMediaError(src CallObject, device, message string)
	onNetworkQuality(src CallObject, threshold string)
	onConnection(src CallObject, state string)
	onAppMessage(src CallObject, fromID string, data []byte)
}

// Relay bridges one call object's events to a sink. It subscribes once
// on attach and unsubscribes once on detach.
type Relay struct {
	obj   CallObject
	sink  sink
	unsub func()
	once  sync.Once
}

func attachRelay(obj CallObject, s sink) *Relay {
	r := &Relay{obj: obj, sink: s}
	r.unsub = obj.On(r.dispatch)
	return r
}

// Detach is idempotent.
func (r *Relay) Detach() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if r.unsub != nil {
			r.unsub()
		}
	})
}

func (r *Relay) dispatch(ev Event) {
	switch ev.Type {
	case EventJoinedMeeting:
		r.sink.onJoined(r.obj)
	case EventLeftMeeting:
		r.sink.onLeft(r.obj)
	case EventParticipantJoined, EventParticipantUpdated, EventParticipantLeft:
		r.sink.onParticipantsChanged(r.obj)
	case EventError:
		r.sink.onFatal(r.obj, ev.Message, ev.Details)
	case EventCameraError:
		r.sink.onMediaError(r.obj, ev.Device, ev.Message)
	case EventNetworkQualityChange:
		r.sink.onNetworkQuality(r.obj, ev.Threshold)
	case EventNetworkConnection:
		r.sink.onConnection(r.obj, ev.Connection)
	case EventAppMessage:
		r.sink.onAppMessage(r.obj, ev.FromID, ev.Data)
	default:
		log.Debug().Str("event", string(ev.Type)).Msg("ignoring unknown call event")
	}
}
