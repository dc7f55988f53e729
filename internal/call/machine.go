package call

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/model"
)

const defaultSendTimeout = 10 * time.Second

type RoomInfo struct {
	Name string
	URL  string
}

type ProvisionRequest struct {
	ConsultationID string
	DoctorID       string
	PatientID      string
}

// Provisioner creates or looks up the hosted room for a consultation.
type Provisioner interface {
	ProvisionRoom(ctx context.Context, req ProvisionRequest) (*RoomInfo, error)
}

type TokenRequest struct {
	RoomName string
	UserName string
	Role     model.UserRole
}

// TokenIssuer returns a role-scoped join credential for a room.
type TokenIssuer interface {
	IssueToken(ctx context.Context, req TokenRequest) (string, error)
}

type ConsultationStore interface {
	SaveConsultation(ctx context.Context, c Consultation) error
}

// Observer is told about every state change. It is called without the
// machine lock held.
type Observer interface {
	SessionChanged(s Snapshot)
}

// Gate returns nil when the session may proceed to connecting.
type Gate func() error

type Config struct {
	SessionID      string
	UserName       string
	Role           model.UserRole
	ConsultationID string
	DoctorID       string
	PatientID      string
}

type Deps struct {
	Provisioner Provisioner
	Tokens      TokenIssuer
	NewCall     CallFactory
	Store       ConsultationStore
	Observer    Observer
	Preflight   Gate
	Now         func() time.Time
	SendTimeout time.Duration
}

// Machine coordinates one consultation call: provisioning, token exchange,
// join, roster, media toggles, chat and AI annotations, and teardown.
//
// A machine owns at most one call object at a time. Every teardown bumps
// gen, so results of provider requests that were in flight when the call
// was left or disposed are discarded.
type Machine struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	// mediaMu serializes toggles so read-command-record sequences do not interleave.
	mediaMu sync.Mutex

	mu           sync.Mutex
	status       Status
	call         CallObject
	relay        *Relay
	gen          uint64
	disposed     bool
	consultation Consultation
	roster       map[string]Participant
	cameraOff    bool
	micMuted     bool
	network      NetworkQuality
	err          *SessionError
	mediaErrors  MediaErrors
	chat         []ChatMessage
	suggestions  []AISuggestion
	updatedAt    time.Time
}

var errSuperseded = apperrors.Conflict("Session was left while the request was in flight")

func NewMachine(cfg Config, deps Deps) (*Machine, error) {
	if strings.TrimSpace(cfg.UserName) == "" {
		return nil, apperrors.MissingRequired("userName")
	}
	if !cfg.Role.Valid() {
		return nil, apperrors.InvalidInput("role", "must be doctor or patient")
	}
	if deps.Tokens == nil || deps.NewCall == nil {
		return nil, apperrors.Internal("session machine requires a token issuer and call factory")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SendTimeout <= 0 {
		deps.SendTimeout = defaultSendTimeout
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.ConsultationID == "" {
		cfg.ConsultationID = uuid.NewString()
	}

	now := deps.Now()
	m := &Machine{
		cfg:    cfg,
		deps:   deps,
		logger: log.With().Str("sessionId", cfg.SessionID).Str("consultationId", cfg.ConsultationID).Logger(),
		status: StatusIdle,
		consultation: Consultation{
			ID:        cfg.ConsultationID,
			DoctorID:  cfg.DoctorID,
			PatientID: cfg.PatientID,
			Status:    model.ConsultationStatusScheduled,
			StartedAt: now,
		},
		roster:    make(map[string]Participant),
		network:   NetworkGood,
		updatedAt: now,
	}
	return m, nil
}

func (m *Machine) ID() string {
	return m.cfg.SessionID
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastActivity is the time of the most recent state change.
func (m *Machine) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatedAt
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// StartPreview enters the local-only device preview sub-state.
func (m *Machine) StartPreview() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return apperrors.NotFound("Session")
	}
	switch m.status {
	case StatusTesting:
		m.mu.Unlock()
		return nil
	case StatusIdle:
		m.status = StatusTesting
		m.touchLocked()
	default:
		status := m.status
		m.mu.Unlock()
		return apperrors.Conflict(fmt.Sprintf("Cannot preview devices while %s", status))
	}
	m.mu.Unlock()

	m.notify()
	return nil
}

// Start provisions a room for a new consultation and joins it.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return apperrors.NotFound("Session")
	}
	if m.call != nil || m.status.inFlight() {
		m.mu.Unlock()
		m.logger.Debug().Msg("start ignored: call already in progress")
		return nil
	}
	if m.deps.Provisioner == nil {
		m.mu.Unlock()
		return apperrors.Internal("room provisioning is not configured")
	}
	if err := m.preflight(); err != nil {
		m.mu.Unlock()
		return err
	}

	m.status = StatusPreparing
	m.err = nil
	m.touchLocked()
	gen := m.gen
	req := ProvisionRequest{
		ConsultationID: m.consultation.ID,
		DoctorID:       m.consultation.DoctorID,
		PatientID:      m.consultation.PatientID,
	}
	m.mu.Unlock()

	m.notify()
	m.logger.Info().Msg("provisioning room")

	room, err := m.deps.Provisioner.ProvisionRoom(ctx, req)

	m.mu.Lock()
	if gen != m.gen || m.disposed {
		m.mu.Unlock()
		m.logger.Info().Msg("discarding provisioning result for abandoned session")
		return errSuperseded
	}
	if err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		m.logger.Error().Err(err).Msg("room provisioning failed")
		m.notify()
		return err
	}
	m.consultation.RoomURL = room.URL
	m.consultation.RoomName = room.Name
	cons := m.consultation
	m.mu.Unlock()

	m.logger.Info().Str("room", room.Name).Str("url", room.URL).Msg("room provisioned")
	m.persist(ctx, cons)

	return m.connect(ctx, gen)
}

// Join joins an existing room. It is a no-op while a call object exists or
// a join is outstanding.
func (m *Machine) Join(ctx context.Context, roomURL, roomName string) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return apperrors.NotFound("Session")
	}
	if m.call != nil || m.status.inFlight() {
		m.mu.Unlock()
		m.logger.Debug().Msg("join ignored: call already in progress")
		return nil
	}
	if roomURL == "" {
		m.mu.Unlock()
		return apperrors.MissingRequired("roomUrl")
	}
	if roomName == "" {
		roomName = roomNameFromURL(roomURL)
	}
	if err := m.preflight(); err != nil {
		m.mu.Unlock()
		return err
	}

	m.status = StatusConnecting
	m.err = nil
	m.consultation.RoomURL = roomURL
	m.consultation.RoomName = roomName
	m.touchLocked()
	gen := m.gen
	cons := m.consultation
	m.mu.Unlock()

	m.persist(ctx, cons)
	return m.connect(ctx, gen)
}

func (m *Machine) connect(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	if gen != m.gen || m.disposed {
		m.mu.Unlock()
		return errSuperseded
	}

	obj, err := m.deps.NewCall(ctx)
	if err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		m.logger.Error().Err(err).Msg("failed to create call object")
		m.notify()
		return err
	}
	m.call = obj
	m.relay = attachRelay(obj, m)
	m.status = StatusConnecting
	// Network and media state describe the current call object only.
	m.network = NetworkGood
	m.mediaErrors = MediaErrors{}
	m.touchLocked()

	join := JoinParams{
		URL:           m.consultation.RoomURL,
		UserName:      m.cfg.UserName,
		StartVideoOff: m.cameraOff,
		StartAudioOff: m.micMuted,
	}
	tokenReq := TokenRequest{
		RoomName: m.consultation.RoomName,
		UserName: m.cfg.UserName,
		Role:     m.cfg.Role,
	}
	m.mu.Unlock()

	m.notify()

	token, err := m.deps.Tokens.IssueToken(ctx, tokenReq)
	if err != nil {
		m.logger.Error().Err(err).Str("room", tokenReq.RoomName).Msg("token issuance failed")
		return m.abort(gen, obj, err)
	}
	join.Token = token

	m.mu.Lock()
	current := gen == m.gen && m.call == obj
	m.mu.Unlock()
	if !current {
		return errSuperseded
	}

	m.logger.Info().Str("room", tokenReq.RoomName).Msg("joining call")
	if err := obj.Join(ctx, join); err != nil {
		m.logger.Error().Err(err).Str("room", tokenReq.RoomName).Msg("provider join failed")
		return m.abort(gen, obj, err)
	}

	m.mu.Lock()
	if gen != m.gen || m.call != obj {
		m.mu.Unlock()
		return errSuperseded
	}
	m.status = StatusConnected
	m.err = nil
	m.roster = buildRoster(obj.Participants())
	m.cameraOff = !obj.LocalVideo()
	m.micMuted = !obj.LocalAudio()
	m.consultation.Status = model.ConsultationStatusActive
	m.consultation.EndedAt = nil
	m.touchLocked()
	cons := m.consultation
	participants := len(m.roster)
	m.mu.Unlock()

	m.logger.Info().Int("participants", participants).Msg("call connected")
	m.persist(ctx, cons)
	m.notify()
	return nil
}

// abort tears down obj after a failed join step and records the failure.
func (m *Machine) abort(gen uint64, obj CallObject, cause error) error {
	m.mu.Lock()
	if gen != m.gen || m.call != obj {
		m.mu.Unlock()
		return errSuperseded
	}
	relay := m.relay
	m.call, m.relay = nil, nil
	m.gen++
	m.failLocked(cause)
	m.mu.Unlock()

	m.teardown(context.Background(), relay, obj, false)
	m.notify()
	return cause
}

// Leave ends the call from any state. It never fails; teardown problems
// are logged.
func (m *Machine) Leave(ctx context.Context) error {
	m.stop(ctx, nil, true)
	return nil
}

// Dispose leaves the call and makes the machine inert.
func (m *Machine) Dispose(ctx context.Context) {
	m.stop(ctx, nil, true)

	m.mu.Lock()
	m.disposed = true
	m.mu.Unlock()

	m.logger.Info().Msg("session disposed")
}

// stop moves the machine to left. When expect is non-nil the stop only
// applies if expect is still the current call object.
func (m *Machine) stop(ctx context.Context, expect CallObject, callLeave bool) {
	m.mu.Lock()
	if m.disposed || (expect != nil && expect != m.call) {
		m.mu.Unlock()
		return
	}
	obj, relay := m.call, m.relay
	m.call, m.relay = nil, nil
	m.gen++
	prev := m.status
	m.status = StatusLeft
	m.roster = make(map[string]Participant)
	ended := m.endConsultationLocked()
	m.touchLocked()
	cons := m.consultation
	m.mu.Unlock()

	m.teardown(ctx, relay, obj, callLeave)
	if ended {
		m.persist(ctx, cons)
	}

	m.logger.Info().Str("from", string(prev)).Msg("call left")
	m.notify()
}

// teardown detaches listeners and releases the call object in one step.
func (m *Machine) teardown(ctx context.Context, relay *Relay, obj CallObject, callLeave bool) {
	relay.Detach()
	if obj == nil {
		return
	}
	if callLeave {
		if err := obj.Leave(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("provider leave failed")
		}
	}
	if err := obj.Destroy(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to destroy call object")
	}
}

func (m *Machine) ToggleCamera(ctx context.Context) (bool, error) {
	return m.toggle(ctx, deviceCamera)
}

func (m *Machine) ToggleMicrophone(ctx context.Context) (bool, error) {
	return m.toggle(ctx, deviceMicrophone)
}

type device string

const (
	deviceCamera     device = "camera"
	deviceMicrophone device = "microphone"
)

// toggle reads the provider's local media state, commands the negation,
// waits for the provider, and records the flag only once the change is
// confirmed. Before a call object exists it flips the preference used at
// join time. Returns the resulting off/muted flag.
func (m *Machine) toggle(ctx context.Context, dev device) (bool, error) {
	m.mediaMu.Lock()
	defer m.mediaMu.Unlock()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return false, apperrors.NotFound("Session")
	}
	obj := m.call
	if obj == nil {
		flag := m.flipPreferenceLocked(dev)
		m.touchLocked()
		m.mu.Unlock()
		m.notify()
		return flag, nil
	}
	current := readMedia(obj, dev)
	flag := m.flagLocked(dev)
	m.mu.Unlock()

	desired := !current
	var err error
	if dev == deviceCamera {
		err = obj.SetLocalVideo(ctx, desired)
	} else {
		err = obj.SetLocalAudio(ctx, desired)
	}

	m.mu.Lock()
	if m.call != obj {
		m.mu.Unlock()
		return flag, errSuperseded
	}
	if err == nil && readMedia(obj, dev) != desired {
		err = fmt.Errorf("provider did not apply the change")
	}
	if err != nil {
		m.setMediaErrorLocked(dev, err.Error())
		m.touchLocked()
		m.mu.Unlock()
		m.logger.Warn().Err(err).Str("device", string(dev)).Msg("media toggle failed")
		m.notify()
		return flag, apperrors.MediaDevice(string(dev), err.Error()).WithCause(err)
	}

	if dev == deviceCamera {
		m.cameraOff = !desired
	} else {
		m.micMuted = !desired
	}
	m.setMediaErrorLocked(dev, "")
	m.roster = buildRoster(obj.Participants())
	m.touchLocked()
	flag = m.flagLocked(dev)
	m.mu.Unlock()

	m.logger.Debug().Str("device", string(dev)).Bool("enabled", desired).Msg("local media toggled")
	m.notify()
	return flag, nil
}

func readMedia(obj CallObject, dev device) bool {
	if dev == deviceCamera {
		return obj.LocalVideo()
	}
	return obj.LocalAudio()
}

func (m *Machine) flagLocked(dev device) bool {
	if dev == deviceCamera {
		return m.cameraOff
	}
	return m.micMuted
}

func (m *Machine) flipPreferenceLocked(dev device) bool {
	if dev == deviceCamera {
		m.cameraOff = !m.cameraOff
		return m.cameraOff
	}
	m.micMuted = !m.micMuted
	return m.micMuted
}

func (m *Machine) setMediaErrorLocked(dev device, msg string) {
	if dev == deviceCamera {
		m.mediaErrors.Camera = msg
	} else {
		m.mediaErrors.Microphone = msg
	}
}

type appPayload struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

const appPayloadChat = "chat"

// SendChat appends the message locally and broadcasts it in the
// background. It returns before the broadcast completes and does not
// guarantee delivery.
func (m *Machine) SendChat(content string) (ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return ChatMessage{}, apperrors.MissingRequired("content")
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ChatMessage{}, apperrors.NotFound("Session")
	}
	obj := m.call
	if obj == nil || m.status != StatusConnected {
		m.mu.Unlock()
		return ChatMessage{}, apperrors.Conflict("Not connected to a call")
	}
	now := m.deps.Now()
	msg := ChatMessage{
		ID:        fmt.Sprintf("%d-%s", now.UnixNano(), m.cfg.UserName),
		Sender:    m.cfg.UserName,
		Content:   content,
		Timestamp: now,
		IsLocal:   true,
	}
	m.chat = append(m.chat, msg)
	m.touchLocked()
	m.mu.Unlock()

	m.notify()

	payload, err := json.Marshal(appPayload{
		Type:      appPayloadChat,
		ID:        msg.ID,
		Sender:    msg.Sender,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return msg, fmt.Errorf("marshal chat payload: %w", err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.deps.SendTimeout)
		defer cancel()
		if err := obj.SendAppMessage(ctx, payload, BroadcastTarget); err != nil {
			m.logger.Warn().Err(err).Str("messageId", msg.ID).Msg("chat broadcast failed")
		}
	}()

	return msg, nil
}

// AddSuggestion records an AI annotation locally. Suggestions are never
// sent over the data channel.
func (m *Machine) AddSuggestion(kind SuggestionKind, content string, confidence float64) (AISuggestion, error) {
	if !kind.Valid() {
		return AISuggestion{}, apperrors.InvalidInput("kind", "must be suggestion, alert or diagnosis")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return AISuggestion{}, apperrors.MissingRequired("content")
	}
	if confidence < 0 || confidence > 1 {
		return AISuggestion{}, apperrors.InvalidInput("confidence", "must be between 0 and 1")
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return AISuggestion{}, apperrors.NotFound("Session")
	}
	s := AISuggestion{
		ID:         uuid.NewString(),
		Kind:       kind,
		Content:    content,
		Confidence: confidence,
		Timestamp:  m.deps.Now(),
	}
	m.suggestions = append(m.suggestions, s)
	m.touchLocked()
	m.mu.Unlock()

	m.notify()
	return s, nil
}

// Relay callbacks.

func (m *Machine) onJoined(src CallObject) {
	m.refreshRoster(src)
}

func (m *Machine) onParticipantsChanged(src CallObject) {
	m.refreshRoster(src)
}

func (m *Machine) onLeft(src CallObject) {
	m.logger.Info().Msg("provider ended the call")
	m.stop(context.Background(), src, false)
}

func (m *Machine) onFatal(src CallObject, message string, details any) {
	m.mu.Lock()
	if m.disposed || src != m.call {
		m.mu.Unlock()
		return
	}
	relay := m.relay
	m.call, m.relay = nil, nil
	m.gen++
	if message == "" {
		message = "Call failed"
	}
	m.status = StatusError
	m.err = &SessionError{Message: message, Details: details}
	ended := m.endConsultationLocked()
	m.touchLocked()
	cons := m.consultation
	m.mu.Unlock()

	m.logger.Error().Str("reason", message).Msg("fatal call error")
	m.teardown(context.Background(), relay, src, false)
	if ended {
		m.persist(context.Background(), cons)
	}
	m.notify()
}

func (m *Machine) onMediaError(src CallObject, dev, message string) {
	if message == "" {
		message = "device unavailable"
	}

	m.mu.Lock()
	if m.disposed || src != m.call {
		m.mu.Unlock()
		return
	}
	switch strings.ToLower(dev) {
	case "camera", "video":
		m.mediaErrors.Camera = message
	case "microphone", "mic", "audio":
		m.mediaErrors.Microphone = message
	default:
		m.mediaErrors.Camera = message
		m.mediaErrors.Microphone = message
	}
	m.touchLocked()
	m.mu.Unlock()

	m.logger.Warn().Str("device", dev).Str("reason", message).Msg("media device error")
	m.notify()
}

// onNetworkQuality maps the provider threshold to good or poor. It never
// produces disconnected; that comes only from onConnection.
func (m *Machine) onNetworkQuality(src CallObject, threshold string) {
	m.mu.Lock()
	if m.disposed || src != m.call || m.network == NetworkDisconnected {
		m.mu.Unlock()
		return
	}
	quality := NetworkPoor
	if threshold == "good" {
		quality = NetworkGood
	}
	if quality == m.network {
		m.mu.Unlock()
		return
	}
	m.network = quality
	m.touchLocked()
	m.mu.Unlock()

	m.notify()
}

func (m *Machine) onConnection(src CallObject, state string) {
	m.mu.Lock()
	if m.disposed || src != m.call {
		m.mu.Unlock()
		return
	}
	switch state {
	case ConnectionInterrupted:
		m.network = NetworkDisconnected
	case ConnectionConnected:
		m.network = NetworkGood
	default:
		m.mu.Unlock()
		return
	}
	m.touchLocked()
	quality := m.network
	m.mu.Unlock()

	m.logger.Info().Str("quality", string(quality)).Msg("connection state changed")
	m.notify()
}

func (m *Machine) onAppMessage(src CallObject, fromID string, data []byte) {
	var p appPayload
	if err := json.Unmarshal(data, &p); err != nil {
		m.logger.Debug().Err(err).Str("from", fromID).Msg("ignoring malformed app message")
		return
	}
	if (p.Type != "" && p.Type != appPayloadChat) || strings.TrimSpace(p.Content) == "" {
		return
	}

	m.mu.Lock()
	if m.disposed || src != m.call {
		m.mu.Unlock()
		return
	}
	sender, known := m.roster[fromID]
	if known && sender.Local {
		m.mu.Unlock()
		return
	}
	name := sender.UserName
	if name == "" {
		name = p.Sender
	}
	if name == "" {
		name = "Participant"
	}
	now := m.deps.Now()
	id := p.ID
	if id == "" {
		id = fmt.Sprintf("%d-%s", now.UnixNano(), fromID)
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = now
	}
	m.chat = append(m.chat, ChatMessage{
		ID:        id,
		Sender:    name,
		Content:   p.Content,
		Timestamp: ts,
		IsLocal:   false,
	})
	m.touchLocked()
	m.mu.Unlock()

	m.notify()
}

// refreshRoster replaces the roster wholesale from the provider snapshot.
func (m *Machine) refreshRoster(src CallObject) {
	m.mu.Lock()
	if m.disposed || src != m.call {
		m.mu.Unlock()
		return
	}
	m.roster = buildRoster(src.Participants())
	m.touchLocked()
	m.mu.Unlock()

	m.notify()
}

func buildRoster(ps []Participant) map[string]Participant {
	roster := make(map[string]Participant, len(ps))
	for _, p := range ps {
		roster[p.SessionID] = p
	}
	return roster
}

func (m *Machine) preflight() error {
	if m.deps.Preflight == nil {
		return nil
	}
	return m.deps.Preflight()
}

func (m *Machine) failLocked(err error) {
	m.status = StatusError
	m.err = normalizeError(err)
	m.touchLocked()
}

// endConsultationLocked marks the consultation ended and reports whether
// anything changed.
func (m *Machine) endConsultationLocked() bool {
	if m.consultation.Status == model.ConsultationStatusEnded {
		return false
	}
	now := m.deps.Now()
	m.consultation.Status = model.ConsultationStatusEnded
	m.consultation.EndedAt = &now
	return true
}

func (m *Machine) touchLocked() {
	m.updatedAt = m.deps.Now()
}

func (m *Machine) snapshotLocked() Snapshot {
	roster := make(map[string]Participant, len(m.roster))
	for k, v := range m.roster {
		roster[k] = v
	}
	var sessErr *SessionError
	if m.err != nil {
		e := *m.err
		sessErr = &e
	}
	return Snapshot{
		SessionID:      m.cfg.SessionID,
		Status:         m.status,
		Consultation:   m.consultation,
		Roster:         roster,
		CameraOff:      m.cameraOff,
		MicMuted:       m.micMuted,
		NetworkQuality: m.network,
		Error:          sessErr,
		MediaErrors:    m.mediaErrors,
		Chat:           append([]ChatMessage(nil), m.chat...),
		Suggestions:    append([]AISuggestion(nil), m.suggestions...),
		UpdatedAt:      m.updatedAt,
	}
}

func (m *Machine) notify() {
	if m.deps.Observer == nil {
		return
	}
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.deps.Observer.SessionChanged(snap)
}

func (m *Machine) persist(ctx context.Context, c Consultation) {
	if m.deps.Store == nil {
		return
	}
	if err := m.deps.Store.SaveConsultation(context.WithoutCancel(ctx), c); err != nil {
		m.logger.Warn().Err(err).Str("status", string(c.Status)).Msg("failed to persist consultation")
	}
}

func normalizeError(err error) *SessionError {
	if appErr, ok := apperrors.AsAppError(err); ok {
		details := map[string]any{"code": appErr.Code}
		if appErr.Details != nil {
			details["details"] = appErr.Details
		}
		if cause := appErr.Unwrap(); cause != nil {
			details["cause"] = cause.Error()
		}
		return &SessionError{Message: appErr.Message, Details: details}
	}
	return &SessionError{
		Message: "Unexpected error",
		Details: map[string]any{"cause": err.Error()},
	}
}

func roomNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return ""
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}
