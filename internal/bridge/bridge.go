package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/consultrelay/consult-relay-go/internal/call"
	"github.com/consultrelay/consult-relay-go/internal/diagnostics"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/sse"
)

const DefaultTimeout = 10 * time.Second

// Command names understood by the browser runtime.
const (
	CmdJoin           = "join"
	CmdLeave          = "leave"
	CmdSetLocalAudio  = "setLocalAudio"
	CmdSetLocalVideo  = "setLocalVideo"
	CmdSendAppMessage = "sendAppMessage"
	CmdDestroy        = "destroy"
	CmdCheckDevices   = "checkDevices"
	CmdProbeNetwork   = "probeNetwork"
)

// Publisher delivers an event to the browser attached to a session.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, event sse.Event) error
}

type Command struct {
	ID     string `json:"id"`
	CallID string `json:"callId,omitempty"`
	Name   string `json:"name"`
	Args   any    `json:"args,omitempty"`
}

// Ack is the browser's answer to a command.
type Ack struct {
	CommandID string          `json:"commandId"`
	OK        bool            `json:"ok"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Inbound is an SDK event forwarded by the browser. Participants carries
// the SDK's participants() snapshot taken when the event fired.
type Inbound struct {
	call.Event
	CallID       string             `json:"callId,omitempty"`
	Participants []call.Participant `json:"participants,omitempty"`
}

var errDestroyed = errors.New("call object destroyed")

// Bridge drives the provider SDK running in a session's browser. Commands
// go out over the session's event stream; acknowledgements and SDK events
// come back through Ack and Dispatch.
type Bridge struct {
	sessionID string
	pub       Publisher
	timeout   time.Duration
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan Ack
	current *CallObject
}

func New(sessionID string, pub Publisher, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bridge{
		sessionID: sessionID,
		pub:       pub,
		timeout:   timeout,
		logger:    log.With().Str("sessionId", sessionID).Logger(),
		pending:   make(map[string]chan Ack),
	}
}

// NewCall creates a call object bound to this bridge. It replaces any
// previous object; events for the old one are dropped.
func (b *Bridge) NewCall(_ context.Context) (call.CallObject, error) {
	obj := &CallObject{
		id:       uuid.NewString(),
		bridge:   b,
		audio:    true,
		video:    true,
		handlers: make(map[int]call.EventHandler),
	}

	b.mu.Lock()
	b.current = obj
	b.mu.Unlock()

	b.logger.Debug().Str("callId", obj.id).Msg("call object created")
	return obj, nil
}

// Ack resolves a pending command.
func (b *Bridge) Ack(ack Ack) error {
	if ack.CommandID == "" {
		return apperrors.MissingRequired("commandId")
	}

	b.mu.Lock()
	ch, ok := b.pending[ack.CommandID]
	if ok {
		delete(b.pending, ack.CommandID)
	}
	b.mu.Unlock()

	if !ok {
		return apperrors.NotFound("Command")
	}
	ch <- ack
	return nil
}

// Dispatch routes an SDK event to the current call object.
func (b *Bridge) Dispatch(ev Inbound) error {
	if ev.Type == "" {
		return apperrors.MissingRequired("type")
	}

	b.mu.Lock()
	obj := b.current
	b.mu.Unlock()

	if obj == nil || (ev.CallID != "" && ev.CallID != obj.id) {
		b.logger.Debug().
			Str("event", string(ev.Type)).
			Str("callId", ev.CallID).
			Msg("dropping event for inactive call object")
		return nil
	}

	if ev.Participants != nil {
		obj.setParticipants(ev.Participants)
	}
	obj.emit(ev.Event)
	return nil
}

// Pending reports the number of commands awaiting acknowledgement.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close fails every outstanding command.
func (b *Bridge) Close() {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string]chan Ack)
	b.current = nil
	b.mu.Unlock()

	for id, ch := range pending {
		ch <- Ack{CommandID: id, Error: "session closed"}
	}
}

// send publishes a command and waits for its acknowledgement.
func (b *Bridge) send(ctx context.Context, callID, name string, args any) (Ack, error) {
	cmd := Command{
		ID:     uuid.NewString(),
		CallID: callID,
		Name:   name,
		Args:   args,
	}
	event, err := sse.NewEvent(sse.EventCommand, cmd)
	if err != nil {
		return Ack{}, err
	}

	ch := make(chan Ack, 1)
	b.mu.Lock()
	b.pending[cmd.ID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, cmd.ID)
		b.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.pub.Publish(ctx, b.sessionID, event); err != nil {
		return Ack{}, apperrors.External("session stream", err)
	}

	b.logger.Debug().Str("command", name).Str("commandId", cmd.ID).Msg("command sent")

	select {
	case ack := <-ch:
		if !ack.OK {
			reason := ack.Error
			if reason == "" {
				reason = "rejected"
			}
			return ack, apperrors.External("call sdk", fmt.Errorf("%s: %s", name, reason))
		}
		return ack, nil
	case <-ctx.Done():
		b.logger.Warn().Str("command", name).Str("commandId", cmd.ID).Msg("command timed out")
		return Ack{}, apperrors.CommandTimeout(name).WithCause(ctx.Err())
	}
}

// publish sends a command without waiting for an answer.
func (b *Bridge) publish(callID, name string) {
	event, err := sse.NewEvent(sse.EventCommand, Command{ID: uuid.NewString(), CallID: callID, Name: name})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.pub.Publish(ctx, b.sessionID, event); err != nil {
		b.logger.Warn().Err(err).Str("command", name).Msg("failed to publish command")
	}
}

func (b *Bridge) detach(obj *CallObject) {
	b.mu.Lock()
	if b.current == obj {
		b.current = nil
	}
	b.mu.Unlock()
}

// ProbeDevices asks the browser to acquire camera and microphone.
func (b *Bridge) ProbeDevices(ctx context.Context) (diagnostics.DeviceReport, error) {
	ack, err := b.send(ctx, "", CmdCheckDevices, nil)
	if err != nil {
		return diagnostics.DeviceReport{}, err
	}
	var report diagnostics.DeviceReport
	if err := json.Unmarshal(ack.Result, &report); err != nil {
		return diagnostics.DeviceReport{}, apperrors.InvalidInput("result", "malformed device report")
	}
	return report, nil
}

// ProbeNetwork asks the browser to measure its link against the probe
// endpoints.
func (b *Bridge) ProbeNetwork(ctx context.Context) (diagnostics.Measurement, error) {
	ack, err := b.send(ctx, "", CmdProbeNetwork, nil)
	if err != nil {
		return diagnostics.Measurement{}, err
	}
	var m diagnostics.Measurement
	if err := json.Unmarshal(ack.Result, &m); err != nil {
		return diagnostics.Measurement{}, apperrors.InvalidInput("result", "malformed network measurement")
	}
	return m, nil
}
