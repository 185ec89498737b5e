// Package failover decides which endpoint the client dials next and how long
// it waits after a full pass over the registry fails.
package failover

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 1.5
	DefaultJitter       = 0.5
)

// Policy holds the backoff parameters. Zero fields take the defaults.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter is the upper bound of the random extra wait as a fraction of
	// the current delay.
	Jitter float64
}

// DefaultPolicy starts at one second, grows by half on every full pass up to
// thirty seconds and adds up to half the delay as jitter.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Multiplier:   DefaultMultiplier,
		Jitter:       DefaultJitter,
	}
}

func (p Policy) withDefaults() Policy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Controller tracks the current endpoint index and the reconnect delay.
type Controller struct {
	mu     sync.Mutex
	policy Policy
	n      int
	index  int
	delay  time.Duration

	rand      func() float64
	sleep     func(ctx context.Context, d time.Duration) error
	onBackoff func(wait time.Duration)
}

// Option customizes a Controller.
type Option func(*Controller)

// WithRand replaces the jitter source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(c *Controller) { c.rand = f }
}

// WithSleep replaces the wait between full passes.
func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = f }
}

// WithBackoffHook is called with the wait before every backoff sleep.
func WithBackoffHook(f func(wait time.Duration)) Option {
	return func(c *Controller) { c.onBackoff = f }
}

// NewController returns a controller over n endpoints starting at index 0.
func NewController(n int, policy Policy, opts ...Option) *Controller {
	if n < 1 {
		n = 1
	}
	policy = policy.withDefaults()
	c := &Controller{
		policy: policy,
		n:      n,
		delay:  policy.InitialDelay,
		rand:   rand.Float64,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Index is the endpoint the next connection attempt uses.
func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Delay is the base wait applied after the next full pass fails.
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

// Reset clears all accumulated state: the next failure moves on from the
// first endpoint and the delay is back at its initial value. Called once a
// connection is streaming.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.index = 0
	c.delay = c.policy.InitialDelay
	c.mu.Unlock()
}

// Fail records a failed connection cycle and advances to the next endpoint.
// When the index wraps back to the first endpoint it sleeps for the current
// delay plus jitter and then grows the delay. An error is returned only when
// ctx ends during the wait.
func (c *Controller) Fail(ctx context.Context) error {
	c.mu.Lock()
	c.index = (c.index + 1) % c.n
	if c.index != 0 {
		c.mu.Unlock()
		return nil
	}
	wait := c.delay + time.Duration(c.rand()*c.policy.Jitter*float64(c.delay))
	next := time.Duration(float64(c.delay) * c.policy.Multiplier)
	if next > c.policy.MaxDelay {
		next = c.policy.MaxDelay
	}
	c.delay = next
	c.mu.Unlock()

	if c.onBackoff != nil {
		c.onBackoff(wait)
	}
	return c.sleep(ctx, wait)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
