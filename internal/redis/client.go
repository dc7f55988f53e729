package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionChannel carries commands and state snapshots for one session machine.
func SessionChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

func ConsultationLockKey(consultationID string) string {
	return fmt.Sprintf("lock:consultation:%s", consultationID)
}

func RateLimitKey(userID string) string {
	return fmt.Sprintf("ratelimit:user:%s", userID)
}
