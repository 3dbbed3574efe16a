package rpc

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KindLimiter throttles outgoing RPCs per method kind (e.g. "messages.send",
// "contacts.resolveUsername"), rekeyed from mtglib.RateLimiter's per-IP
// shape to per-request-kind: a single noisy method should not starve
// others sharing the same connection. A background cleanup loop evicts
// limiters for kinds that have gone quiet, exactly as the teacher's
// cleanupLoop evicts stale per-IP entries.
type KindLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastUsed map[string]time.Time

	r       rate.Limit
	b       int
	cleanup time.Duration
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewKindLimiter creates a limiter allowing r requests/sec with burst b per
// RPC kind, evicting idle kinds every cleanup interval.
func NewKindLimiter(r rate.Limit, b int, cleanup time.Duration) *KindLimiter {
	kl := &KindLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastUsed: make(map[string]time.Time),
		r:        r,
		b:        b,
		cleanup:  cleanup,
		stopCh:   make(chan struct{}),
	}

	kl.wg.Add(1)
	go kl.cleanupLoop()

	return kl
}

// Wait blocks until a token is available for kind or ctx is cancelled.
func (kl *KindLimiter) Wait(ctx context.Context, kind string) error {
	return kl.limiterFor(kind).Wait(ctx)
}

// Allow reports whether kind has a token available right now, without
// blocking.
func (kl *KindLimiter) Allow(kind string) bool {
	return kl.limiterFor(kind).Allow()
}

func (kl *KindLimiter) limiterFor(kind string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	limiter, ok := kl.limiters[kind]
	if !ok {
		limiter = rate.NewLimiter(kl.r, kl.b)
		kl.limiters[kind] = limiter
	}

	kl.lastUsed[kind] = time.Now()

	return limiter
}

// Stop halts the cleanup goroutine.
func (kl *KindLimiter) Stop() {
	close(kl.stopCh)
	kl.wg.Wait()
}

func (kl *KindLimiter) cleanupLoop() {
	defer kl.wg.Done()

	ticker := time.NewTicker(kl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.mu.Lock()
			now := time.Now()

			for kind, last := range kl.lastUsed {
				if now.Sub(last) > kl.cleanup*2 {
					delete(kl.limiters, kind)
					delete(kl.lastUsed, kind)
				}
			}
			kl.mu.Unlock()
		}
	}
}

// AwaitFloodWait sleeps for the duration of a FLOOD_WAIT_n error when it is
// at or below FloodWaitThreshold (§4.6: transparent retry for short waits),
// returning false immediately when the wait is longer and the caller must
// be failed instead.
func AwaitFloodWait(ctx context.Context, wait time.Duration) bool {
	if wait > FloodWaitThreshold {
		return false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
