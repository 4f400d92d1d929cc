package cloud

import (
	"context"
	"sync"
	"time"
)

// Cooldown bounds after a 429. The window starts at the minimum and doubles
// on each further 429 up to the cap; time passing lets it expire naturally.
const (
	cooldownMin = 5 * time.Second
	cooldownMax = 60 * time.Second
)

// cooldownGate holds the persistent rate-limit state shared by all requests
// on a client. It delays requests up front once the backend has pushed back,
// instead of letting every call discover the 429 for itself.
type cooldownGate struct {
	mu          sync.Mutex
	backoff     time.Duration
	nextAllowed time.Time
}

// pending returns how long the caller must wait before the next request.
// Zero when no cooldown is active.
func (g *cooldownGate) pending(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now.Before(g.nextAllowed) {
		return g.nextAllowed.Sub(now)
	}
	return 0
}

// bump widens the cooldown window after a 429. jitter desynchronises
// concurrent clients hitting the same backend.
func (g *cooldownGate) bump(now time.Time, jitter time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.backoff == 0 {
		g.backoff = cooldownMin
	} else {
		g.backoff *= 2
		if g.backoff > cooldownMax {
			g.backoff = cooldownMax
		}
	}
	g.nextAllowed = now.Add(g.backoff + jitter)
}

// reset clears the doubling state after a successful request.
func (g *cooldownGate) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backoff = 0
	g.nextAllowed = time.Time{}
}

// await blocks until the cooldown window has passed or ctx is done.
func (c *Client) awaitCooldown(ctx context.Context, path string) error {
	delay := c.cooldown.pending(c.now())
	if delay <= 0 {
		return nil
	}
	c.logger.Warn("respecting rate-limit cooldown", "path", path, "delay", delay.String())
	return c.sleep(ctx, delay)
}
