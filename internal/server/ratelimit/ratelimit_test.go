package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterEnforcesBurst(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/v1/runs", Method: "POST", Limit: 60, Window: time.Minute, Burst: 3},
		},
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		allowed, _ := limiter.Allow("client-1", "/v1/runs", "POST")
		assert.True(t, allowed, "request %d within burst should pass", i)
	}

	allowed, info := limiter.Allow("client-1", "/v1/runs", "POST")
	assert.False(t, allowed)
	assert.Equal(t, 60, info.Limit)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
}

func TestLimiterIsolatesClients(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []EndpointConfig{
			{Path: "/v1/runs", Method: "POST", Limit: 60, Window: time.Minute, Burst: 1},
		},
	})
	defer limiter.Stop()

	allowed, _ := limiter.Allow("client-a", "/v1/runs", "POST")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("client-a", "/v1/runs", "POST")
	assert.False(t, allowed)

	// A different client has its own bucket
	allowed, _ = limiter.Allow("client-b", "/v1/runs", "POST")
	assert.True(t, allowed)
}

func TestLimiterDisabled(t *testing.T) {
	limiter := NewLimiter(&Config{Enabled: false})
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		allowed, _ := limiter.Allow("client", "/v1/runs", "POST")
		assert.True(t, allowed)
	}
}

func TestLimiterHealthUnlimited(t *testing.T) {
	limiter := NewLimiter(&Config{
		Enabled:       true,
		DefaultLimit:  1,
		DefaultWindow: time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 50; i++ {
		allowed, _ := limiter.Allow("client", "/health", "GET")
		assert.True(t, allowed)
	}
}
