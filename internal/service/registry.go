package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/consultrelay/consult-relay-go/internal/bridge"
	"github.com/consultrelay/consult-relay-go/internal/call"
	"github.com/consultrelay/consult-relay-go/internal/diagnostics"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/model"
	"github.com/consultrelay/consult-relay-go/internal/repository"
	"github.com/consultrelay/consult-relay-go/internal/sse"
)

const statePublishTimeout = 5 * time.Second

type RegistryConfig struct {
	CommandTimeout   time.Duration
	RequirePreflight bool
	IdleTTL          time.Duration
}

// Session is one hosted consultation session: the state machine, the
// browser bridge its call object runs on, and its pre-flight results.
type Session struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time

	Machine     *call.Machine
	Bridge      *bridge.Bridge
	Diagnostics *diagnostics.Runner
}

// SessionView is what clients see for a session.
type SessionView struct {
	call.Snapshot
	Diagnostics diagnostics.Report `json:"diagnostics"`
}

func (s *Session) View() SessionView {
	return SessionView{
		Snapshot:    s.Machine.Snapshot(),
		Diagnostics: s.Diagnostics.Results(),
	}
}

type CreateSessionParams struct {
	ConsultationID string
	DoctorID       string
	PatientID      string
	UserName       string
	User           *model.User
}

// SessionRegistry owns every session hosted by this instance. Sessions
// are created and disposed explicitly.
type SessionRegistry struct {
	pub         bridge.Publisher
	provisioner call.Provisioner
	tokens      call.TokenIssuer
	store       call.ConsultationStore
	cfg         RegistryConfig
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionRegistry(
	pub bridge.Publisher,
	provisioner call.Provisioner,
	tokens call.TokenIssuer,
	store call.ConsultationStore,
	cfg RegistryConfig,
) *SessionRegistry {
	return &SessionRegistry{
		pub:         pub,
		provisioner: provisioner,
		tokens:      tokens,
		store:       store,
		cfg:         cfg,
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
}

func (r *SessionRegistry) Create(ctx context.Context, p CreateSessionParams) (*Session, error) {
	if p.User == nil {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	doctorID, patientID := p.DoctorID, p.PatientID
	switch p.User.Role {
	case model.UserRoleDoctor:
		if doctorID == "" {
			doctorID = p.User.ID
		}
		if doctorID != p.User.ID {
			return nil, apperrors.Forbidden("Doctors may only open their own consultations")
		}
	case model.UserRolePatient:
		if patientID == "" {
			patientID = p.User.ID
		}
		if patientID != p.User.ID {
			return nil, apperrors.Forbidden("Patients may only open their own consultations")
		}
	default:
		return nil, apperrors.Forbidden("Unknown role")
	}

	userName := p.UserName
	if userName == "" {
		userName = p.User.DisplayName
	}

	id := uuid.NewString()
	br := bridge.New(id, r.pub, r.cfg.CommandTimeout)
	diag := diagnostics.NewRunner(br, br)

	var gate call.Gate
	if r.cfg.RequirePreflight {
		gate = diag.Gate
	}

	m, err := call.NewMachine(call.Config{
		SessionID:      id,
		UserName:       userName,
		Role:           p.User.Role,
		ConsultationID: p.ConsultationID,
		DoctorID:       doctorID,
		PatientID:      patientID,
	}, call.Deps{
		Provisioner: r.provisioner,
		Tokens:      r.tokens,
		NewCall:     br.NewCall,
		Store:       r.store,
		Observer:    &statePublisher{sessionID: id, pub: r.pub},
		Preflight:   gate,
	})
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:          id,
		OwnerID:     p.User.ID,
		CreatedAt:   r.now(),
		Machine:     m,
		Bridge:      br,
		Diagnostics: diag,
	}

	r.mu.Lock()
	r.sessions[id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	log.Info().
		Str("sessionId", id).
		Str("userId", p.User.ID).
		Str("role", string(p.User.Role)).
		Int("sessions", count).
		Msg("session created")

	return s, nil
}

func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("Session")
	}
	return s, nil
}

// Authorize returns the session if user owns it.
func (r *SessionRegistry) Authorize(id string, user *model.User) (*Session, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if user == nil || s.OwnerID != user.ID {
		return nil, apperrors.Forbidden("Session belongs to another user")
	}
	return s, nil
}

// Dispose leaves the call, fails outstanding bridge commands, and forgets
// the session.
func (r *SessionRegistry) Dispose(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return apperrors.NotFound("Session")
	}

	s.Machine.Dispose(ctx)
	s.Bridge.Close()
	return nil
}

// Reap disposes sessions that are not in a call and have been inactive
// for longer than the idle TTL.
func (r *SessionRegistry) Reap(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.RLock()
	var stale []string
	for id, s := range r.sessions {
		switch s.Machine.Status() {
		case call.StatusIdle, call.StatusTesting, call.StatusLeft, call.StatusError:
			if s.Machine.LastActivity().Before(cutoff) {
				stale = append(stale, id)
			}
		}
	}
	r.mu.RUnlock()

	var reaped int64
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			return reaped, err
		}
		if err := r.Dispose(ctx, id); err != nil {
			continue
		}
		reaped++
	}
	return reaped, nil
}

// Shutdown disposes every session.
func (r *SessionRegistry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		_ = r.Dispose(ctx, id)
	}
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// statePublisher streams each snapshot to the session's browser.
type statePublisher struct {
	sessionID string
	pub       bridge.Publisher
}

func (p *statePublisher) SessionChanged(s call.Snapshot) {
	event, err := sse.NewEvent(sse.EventState, s)
	if err != nil {
		log.Error().Err(err).Str("sessionId", p.sessionID).Msg("failed to encode session state")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), statePublishTimeout)
	defer cancel()

	if err := p.pub.Publish(ctx, p.sessionID, event); err != nil {
		log.Warn().Err(err).Str("sessionId", p.sessionID).Msg("failed to publish session state")
	}
}

// ConsultationStore persists machine consultation state.
type ConsultationStore struct {
	repo repository.ConsultationRepository
}

func NewConsultationStore(repo repository.ConsultationRepository) *ConsultationStore {
	return &ConsultationStore{repo: repo}
}

func (s *ConsultationStore) SaveConsultation(ctx context.Context, c call.Consultation) error {
	rec := model.Consultation{
		ID:        c.ID,
		DoctorID:  c.DoctorID,
		PatientID: c.PatientID,
		Status:    c.Status,
		StartedAt: c.StartedAt,
		EndedAt:   c.EndedAt,
	}
	if c.RoomName != "" {
		rec.RoomName = &c.RoomName
	}
	if c.RoomURL != "" {
		rec.RoomURL = &c.RoomURL
	}

	if _, err := s.repo.Upsert(ctx, rec); err != nil {
		return apperrors.Database(err)
	}
	return nil
}
