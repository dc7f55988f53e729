package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyNames(t *testing.T) {
	assert.Equal(t, "session:s-1:events", SessionChannel("s-1"))
	assert.Equal(t, "lock:consultation:c-1", ConsultationLockKey("c-1"))
	assert.Equal(t, "ratelimit:user:u-1", RateLimitKey("u-1"))
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("not a redis url")
	assert.Error(t, err)
}
