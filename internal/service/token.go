package service

import (
	"context"
	"strings"
	"time"

	"github.com/consultrelay/consult-relay-go/internal/audit"
	"github.com/consultrelay/consult-relay-go/internal/call"
	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
	"github.com/consultrelay/consult-relay-go/internal/model"
	"github.com/consultrelay/consult-relay-go/internal/video"
)

const DefaultTokenTTL = 2 * time.Hour

type TokenMinter interface {
	CreateMeetingToken(ctx context.Context, params video.MeetingTokenParams) (string, error)
}

// TokenRequest is a join credential request from a client. UserType is the
// client's claim and only a hint; the caller's stored role decides.
type TokenRequest struct {
	RoomName string
	UserName string
	UserType string
	Caller   *model.User
}

type TokenService struct {
	minter TokenMinter
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(minter TokenMinter, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		minter: minter,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue validates a client request and mints a token for the caller's
// stored role.
func (s *TokenService) Issue(ctx context.Context, req TokenRequest) (string, error) {
	if strings.TrimSpace(req.RoomName) == "" {
		return "", apperrors.MissingRequired("roomName")
	}
	if strings.TrimSpace(req.UserName) == "" {
		return "", apperrors.MissingRequired("userName")
	}
	if req.UserType == "" {
		return "", apperrors.MissingRequired("userType")
	}
	claimed := model.UserRole(req.UserType)
	if !claimed.Valid() {
		return "", apperrors.InvalidInput("userType", "must be patient or doctor")
	}
	if req.Caller == nil {
		return "", apperrors.Unauthorized("Authentication required")
	}

	role := req.Caller.Role
	if claimed != role {
		audit.Log(ctx, audit.Event{
			Type:   audit.EventRoleMismatch,
			UserID: req.Caller.ID,
			Details: map[string]interface{}{
				"claimed": string(claimed),
				"stored":  string(role),
				"room":    req.RoomName,
			},
		})
	}

	return s.mint(ctx, req.RoomName, req.UserName, role)
}

// IssueToken serves session machines, whose role was fixed from the
// authenticated user when the session was created.
func (s *TokenService) IssueToken(ctx context.Context, req call.TokenRequest) (string, error) {
	if req.RoomName == "" {
		return "", apperrors.MissingRequired("roomName")
	}
	if req.UserName == "" {
		return "", apperrors.MissingRequired("userName")
	}
	if !req.Role.Valid() {
		return "", apperrors.InvalidInput("role", "must be patient or doctor")
	}
	return s.mint(ctx, req.RoomName, req.UserName, req.Role)
}

func (s *TokenService) mint(ctx context.Context, roomName, userName string, role model.UserRole) (string, error) {
	params := PolicyFor(role)
	params.RoomName = roomName
	params.UserName = userName
	params.ExpiresAt = s.now().Add(s.ttl)

	token, err := s.minter.CreateMeetingToken(ctx, params)
	if err != nil {
		return "", err
	}

	audit.Log(ctx, audit.Event{
		Type: audit.EventTokenIssued,
		Details: map[string]interface{}{
			"room":  roomName,
			"role":  string(role),
			"owner": params.IsOwner,
		},
	})
	return token, nil
}

// PolicyFor maps a role to token capabilities. Doctors own the room and
// may share their screen and record; patients join as guests.
func PolicyFor(role model.UserRole) video.MeetingTokenParams {
	owner := role == model.UserRoleDoctor
	return video.MeetingTokenParams{
		IsOwner:           owner,
		EnableScreenShare: owner,
		EnableRecording:   owner,
	}
}
