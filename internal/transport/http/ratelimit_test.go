package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2, 20*time.Millisecond)
	stop := make(chan struct{})
	defer close(stop)
	rl.startReset(stop)

	assert.True(t, rl.allow())
	assert.True(t, rl.allow())
	assert.False(t, rl.allow())

	assert.Eventually(t, rl.allow, time.Second, 5*time.Millisecond)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.allow())
	}
	var nilLimiter *rateLimiter
	assert.True(t, nilLimiter.allow())
}
