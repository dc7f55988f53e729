package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/consultrelay/consult-relay-go/internal/call"
)

type joinArgs struct {
	URL           string `json:"url"`
	Token         string `json:"token"`
	UserName      string `json:"userName"`
	StartVideoOff bool   `json:"startVideoOff"`
	StartAudioOff bool   `json:"startAudioOff"`
}

type mediaArgs struct {
	Enabled bool `json:"enabled"`
}

type appMessageArgs struct {
	Data json.RawMessage `json:"data"`
	To   string          `json:"to"`
}

// mediaResult is the local media state the SDK reports after a command.
// Absent fields mean the SDK did not report them.
type mediaResult struct {
	Audio        *bool              `json:"audio,omitempty"`
	Video        *bool              `json:"video,omitempty"`
	Participants []call.Participant `json:"participants,omitempty"`
}

// CallObject is a call.CallObject whose SDK lives in the browser.
// Local media state and the participant snapshot are mirrored from
// command results and forwarded events.
type CallObject struct {
	id     string
	bridge *Bridge

	mu           sync.Mutex
	audio        bool
	video        bool
	participants []call.Participant
	handlers     map[int]call.EventHandler
	nextHandler  int
	destroyed    bool
}

var _ call.CallObject = (*CallObject)(nil)

func (c *CallObject) ID() string {
	return c.id
}

func (c *CallObject) Join(ctx context.Context, p call.JoinParams) error {
	ack, err := c.command(ctx, CmdJoin, joinArgs{
		URL:           p.URL,
		Token:         p.Token,
		UserName:      p.UserName,
		StartVideoOff: p.StartVideoOff,
		StartAudioOff: p.StartAudioOff,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.video = !p.StartVideoOff
	c.audio = !p.StartAudioOff
	c.mu.Unlock()

	c.applyResult(ack.Result)
	return nil
}

func (c *CallObject) Leave(ctx context.Context) error {
	ack, err := c.command(ctx, CmdLeave, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.participants = nil
	c.mu.Unlock()

	c.applyResult(ack.Result)
	return nil
}

func (c *CallObject) SetLocalAudio(ctx context.Context, enabled bool) error {
	ack, err := c.command(ctx, CmdSetLocalAudio, mediaArgs{Enabled: enabled})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.audio = enabled
	c.mu.Unlock()
	c.applyResult(ack.Result)
	c.syncLocalParticipant()
	return nil
}

func (c *CallObject) SetLocalVideo(ctx context.Context, enabled bool) error {
	ack, err := c.command(ctx, CmdSetLocalVideo, mediaArgs{Enabled: enabled})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.video = enabled
	c.mu.Unlock()
	c.applyResult(ack.Result)
	c.syncLocalParticipant()
	return nil
}

func (c *CallObject) LocalAudio() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio
}

func (c *CallObject) LocalVideo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.video
}

func (c *CallObject) Participants() []call.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]call.Participant(nil), c.participants...)
}

func (c *CallObject) SendAppMessage(ctx context.Context, payload json.RawMessage, target string) error {
	_, err := c.command(ctx, CmdSendAppMessage, appMessageArgs{Data: payload, To: target})
	return err
}

func (c *CallObject) On(h call.EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.handlers[id] = h
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Destroy tells the browser to release the SDK instance and its media
// tracks, then drops every listener. It does not wait for the browser.
func (c *CallObject) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.handlers = make(map[int]call.EventHandler)
	c.participants = nil
	c.mu.Unlock()

	c.bridge.detach(c)
	c.bridge.publish(c.id, CmdDestroy)
	return nil
}

func (c *CallObject) command(ctx context.Context, name string, args any) (Ack, error) {
	c.mu.Lock()
	destroyed := c.destroyed
	c.mu.Unlock()
	if destroyed {
		return Ack{}, errDestroyed
	}
	return c.bridge.send(ctx, c.id, name, args)
}

func (c *CallObject) applyResult(raw json.RawMessage) {
	if len(raw) == 0 {
		return
	}
	var res mediaResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.bridge.logger.Debug().Err(err).Msg("ignoring malformed command result")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if res.Audio != nil {
		c.audio = *res.Audio
	}
	if res.Video != nil {
		c.video = *res.Video
	}
	if res.Participants != nil {
		c.participants = res.Participants
	}
}

// syncLocalParticipant copies the local media flags onto the local roster
// entry. Toggle results do not carry a fresh participant snapshot.
func (c *CallObject) syncLocalParticipant() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.participants {
		if c.participants[i].Local {
			c.participants[i].Audio = c.audio
			c.participants[i].Video = c.video
		}
	}
}

func (c *CallObject) setParticipants(ps []call.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.participants = ps
	for _, p := range ps {
		if p.Local {
			c.audio = p.Audio
			c.video = p.Video
		}
	}
}

func (c *CallObject) emit(ev call.Event) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	hs := make([]call.EventHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}
