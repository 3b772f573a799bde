package notifications

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	Cooldown         time.Duration // open time before probes are let through
	HalfOpenMaxCalls int           // concurrent probes while half-open
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 15 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
	return c
}

// breaker guards one delivery channel. A channel that keeps failing is cut
// off for the cooldown, then a limited number of probes decide whether it
// closes again.
type breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    string
	failures int
	openedAt time.Time
	probes   int
}

func newBreaker(cfg BreakerConfig, now func() time.Time) *breaker {
	return &breaker{cfg: cfg.withDefaults(), now: now, state: StateClosed}
}

// acquire reports whether a call may go out; every granted call must be
// followed by release.
func (b *breaker) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probes = 0
	}

	if b.state == StateHalfOpen {
		if b.probes >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.probes++
	}
	return true
}

func (b *breaker) release(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasProbe := b.state == StateHalfOpen
	if wasProbe && b.probes > 0 {
		b.probes--
	}

	if err == nil {
		b.failures = 0
		b.state = StateClosed
		return
	}

	b.failures++
	if wasProbe || b.failures >= b.cfg.FailureThreshold {
		b.trip()
	}
}

func (b *breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.probes = 0
}

func (b *breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
