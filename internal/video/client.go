package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/consultrelay/consult-relay-go/internal/errors"
)

const (
	DefaultBaseURL     = "https://api.daily.co/v1"
	DefaultMaxAttempts = 3
	DefaultBackoff     = 250 * time.Millisecond
	DefaultTimeout     = 10 * time.Second

	maxErrorBodyBytes = 64 << 10
)

type Options struct {
	BaseURL     string
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client talks to the hosted video provider's REST API: room provisioning
// and meeting token issuance.
type Client struct {
	apiKey      string
	baseURL     string
	maxAttempts int
	backoff     time.Duration
	httpClient  *http.Client
}

// NewClient fails with a configuration error when apiKey is empty.
func NewClient(apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, apperrors.Configuration("video provider API key is not configured")
	}

	c := &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		httpClient:  opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.backoff <= 0 {
		c.backoff = DefaultBackoff
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	return c, nil
}

// GetRoom looks a room up by name. A missing room surfaces as a provider
// rejection carrying status 404.
func (c *Client) GetRoom(ctx context.Context, name string) (*Room, error) {
	if name == "" {
		return nil, apperrors.MissingRequired("roomName")
	}

	var room Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(name), nil, &room, c.maxAttempts); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) CreateRoom(ctx context.Context, params CreateRoomParams) (*Room, error) {
	if params.Name == "" {
		return nil, apperrors.MissingRequired("roomName")
	}

	req := createRoomRequest{
		Name:    params.Name,
		Privacy: "private",
		Properties: roomProperties{
			EnableChat: true,
		},
	}
	if params.ScheduledTime != nil {
		req.Properties.NotBefore = params.ScheduledTime.Unix()
	}
	if params.ExpiresAt != nil {
		req.Properties.Expires = params.ExpiresAt.Unix()
	}

	var room Room
	if err := c.do(ctx, http.MethodPost, "/rooms", req, &room, c.maxAttempts); err != nil {
		return nil, err
	}

	log.Info().
		Str("room", room.Name).
		Str("url", room.URL).
		Msg("video room created")

	return &room, nil
}

// EnsureRoom returns the named room, creating it when the provider does not
// know it yet.
func (c *Client) EnsureRoom(ctx context.Context, params CreateRoomParams) (*Room, error) {
	room, err := c.GetRoom(ctx, params.Name)
	if err == nil {
		return room, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return c.CreateRoom(ctx, params)
}

// CreateMeetingToken issues a room-scoped credential. Tokens are cheap, so
// a single attempt is made and failures surface directly.
func (c *Client) CreateMeetingToken(ctx context.Context, params MeetingTokenParams) (string, error) {
	if params.RoomName == "" {
		return "", apperrors.MissingRequired("roomName")
	}
	if params.UserName == "" {
		return "", apperrors.MissingRequired("userName")
	}
	if params.ExpiresAt.IsZero() {
		return "", apperrors.MissingRequired("expiresAt")
	}

	props := tokenProperties{
		RoomName:          params.RoomName,
		UserName:          params.UserName,
		Expires:           params.ExpiresAt.Unix(),
		IsOwner:           params.IsOwner,
		EnableScreenShare: params.EnableScreenShare,
	}
	if params.EnableRecording {
		props.EnableRecording = "cloud"
	}

	var resp createTokenResponse
	if err := c.do(ctx, http.MethodPost, "/meeting-tokens", createTokenRequest{Properties: props}, &resp, 1); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", apperrors.External("video provider", fmt.Errorf("empty meeting token"))
	}

	log.Info().
		Str("room", params.RoomName).
		Bool("owner", params.IsOwner).
		Time("expiresAt", params.ExpiresAt).
		Msg("meeting token issued")

	return resp.Token, nil
}

// do performs one logical request. 4xx answers return immediately as
// provider rejections; transport errors and 5xx answers are retried with
// doubling delays until attempts is exhausted.
func (c *Client) do(ctx context.Context, method, path string, body, out any, attempts int) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	delay := c.backoff

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		start := time.Now()
		status, respBody, err := c.send(ctx, method, path, payload)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			log.Warn().
				Err(err).
				Str("method", method).
				Str("path", path).
				Int("attempt", attempt).
				Dur("elapsed", elapsed).
				Msg("video provider request failed")
			continue

		case status >= 500:
			lastErr = fmt.Errorf("provider returned status %d", status)
			log.Warn().
				Str("method", method).
				Str("path", path).
				Int("status", status).
				Int("attempt", attempt).
				Dur("elapsed", elapsed).
				Msg("video provider unavailable")
			continue

		case status >= 400:
			log.Warn().
				Str("method", method).
				Str("path", path).
				Int("status", status).
				Dur("elapsed", elapsed).
				Msg("video provider rejected request")
			return apperrors.ProviderRejected(status, decodeErrorPayload(respBody))
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return apperrors.External("video provider", fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	}

	log.Error().
		Err(lastErr).
		Str("method", method).
		Str("path", path).
		Int("attempts", attempts).
		Msg("video provider retry budget exhausted")

	return apperrors.ServiceUnavailable(attempts, lastErr)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func decodeErrorPayload(body []byte) any {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed
	}
	if len(body) == 0 {
		return nil
	}
	return map[string]string{"raw": string(body)}
}

func isNotFound(err error) bool {
	appErr, ok := apperrors.AsAppError(err)
	return ok && appErr.Code == apperrors.ErrCodeProviderRejected && appErr.Status() == http.StatusNotFound
}
