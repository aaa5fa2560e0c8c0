package orchestrator

import (
	"sync"
	"time"
)

// breakerCooldown is how long an open breaker short-circuits after the
// most recent failure before it lets a call through again.
const breakerCooldown = time.Minute

// breaker is a simple per-business consecutive-failure circuit breaker for
// phase 3 (response generation): after threshold consecutive LLM failures
// for a business, ProcessMessage skips straight to the fallback reply
// instead of issuing another doomed call. Once breakerCooldown has passed
// since the last failure a call is attempted again; a success closes the
// breaker, another failure keeps it open for a further cooldown.
type breaker struct {
	mu        sync.Mutex
	failures  map[string]int
	lastFail  map[string]time.Time
	threshold int
}

func newBreaker(threshold int) *breaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &breaker{failures: make(map[string]int), lastFail: make(map[string]time.Time), threshold: threshold}
}

func (b *breaker) open(businessID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[businessID] >= b.threshold && time.Since(b.lastFail[businessID]) < breakerCooldown
}

func (b *breaker) recordFailure(businessID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[businessID]++
	b.lastFail[businessID] = time.Now()
}

func (b *breaker) recordSuccess(businessID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, businessID)
	delete(b.lastFail, businessID)
}
