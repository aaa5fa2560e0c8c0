package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stagehand-run/stagehand/pkg/auth"
)

func TestRateLimiterAllowsUpToBurstThenDenies(t *testing.T) {
	rl := auth.NewRateLimiter(60, time.Minute) // burst == 60

	for i := 0; i < 60; i++ {
		assert.True(t, rl.Allow("biz-1"), "request %d should be allowed within burst", i)
	}
	assert.False(t, rl.Allow("biz-1"), "61st immediate request should be denied")
}

func TestRateLimiterTracksKeysIndependently(t *testing.T) {
	rl := auth.NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("biz-1"))
	assert.False(t, rl.Allow("biz-1"))
	assert.True(t, rl.Allow("biz-2"), "a different key should have its own bucket")
}

func TestRateLimiterCapacityAppliesOverRefillPeriod(t *testing.T) {
	rl := auth.NewRateLimiter(10, 24*time.Hour) // a "global per day" style tier

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow("1.2.3.4"), "request %d should be allowed within the daily cap", i)
	}
	assert.False(t, rl.Allow("1.2.3.4"), "11th request within the period should be denied")
}
