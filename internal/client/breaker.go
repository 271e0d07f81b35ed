package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"doc-gateway-go/internal/config"
)

// Closed breakers unused for breakerIdleEviction are dropped so arbitrary
// target hosts cannot grow the set without bound.
const (
	breakerIdleEviction = 10 * time.Minute
	breakerSweepEvery   = time.Minute
)

// breakerSet keeps one two-step circuit breaker per upstream host.
// A tripped breaker fails requests fast; it never retries them.
type breakerSet struct {
	mu        sync.Mutex
	settings  gobreaker.Settings
	byHost    map[string]*hostBreaker
	lastSweep time.Time
	now       func() time.Time
}

type hostBreaker struct {
	cb       *gobreaker.TwoStepCircuitBreaker
	lastUsed time.Time
}

func newBreakerSet(cfg config.CircuitBreakerConfig, logger *slog.Logger) *breakerSet {
	threshold := uint32(cfg.ConsecutiveFailures)
	if threshold == 0 {
		threshold = 5
	}
	open := time.Duration(cfg.OpenSeconds) * time.Second
	if open == 0 {
		open = 30 * time.Second
	}

	return &breakerSet{
		settings: gobreaker.Settings{
			MaxRequests: 1,
			Timeout:     open,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("upstream circuit state changed",
					"host", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		},
		byHost: make(map[string]*hostBreaker),
		now:    time.Now,
	}
}

func (b *breakerSet) get(host string) *gobreaker.TwoStepCircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.lastSweep) >= breakerSweepEvery {
		b.sweep(now)
	}

	hb, ok := b.byHost[host]
	if !ok {
		st := b.settings
		st.Name = host
		hb = &hostBreaker{cb: gobreaker.NewTwoStepCircuitBreaker(st)}
		b.byHost[host] = hb
	}
	hb.lastUsed = now
	return hb.cb
}

// sweep drops closed breakers idle for longer than breakerIdleEviction.
// Open and half-open breakers are kept so a failing host stays tripped.
// Caller holds b.mu.
func (b *breakerSet) sweep(now time.Time) {
	b.lastSweep = now
	for host, hb := range b.byHost {
		if hb.cb.State() == gobreaker.StateClosed && now.Sub(hb.lastUsed) > breakerIdleEviction {
			delete(b.byHost, host)
		}
	}
}

func (b *breakerSet) states() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweep(b.now())

	out := make(map[string]string, len(b.byHost))
	for host, hb := range b.byHost {
		out[host] = hb.cb.State().String()
	}
	return out
}
