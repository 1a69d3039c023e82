// Package resilience guards calls to upstream hosts with circuit breakers.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the state of a Breaker.
type State int

const (
	// Closed lets every call through.
	Closed State = iota
	// Open rejects calls until the cooldown has elapsed.
	Open
	// HalfOpen admits one probe call at a time.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow while the breaker rejects calls.
var ErrOpen = eris.New("circuit breaker is open")

// Config controls breaker behavior.
type Config struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Default: 5.
	Threshold int
	// Cooldown is how long the breaker stays open before a probe is
	// admitted. Default: 30s.
	Cooldown time.Duration
	// Trips reports whether err counts as a failure. Nil counts every
	// non-nil error.
	Trips func(err error) bool
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Trips == nil {
		c.Trips = func(err error) bool { return err != nil }
	}
	return c
}

// Breaker is a circuit breaker for one upstream.
type Breaker struct {
	name string
	cfg  Config

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// Allow reports whether a call may proceed. Every nil return must be
// followed by exactly one Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return eris.Wrapf(ErrOpen, "%s", b.name)
		}
		b.transition(HalfOpen)
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return eris.Wrapf(ErrOpen, "%s: probe in flight", b.name)
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record reports the outcome of an allowed call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && b.cfg.Trips(err)
	if b.state == HalfOpen {
		b.probing = false
		if failed {
			b.open()
		} else {
			b.failures = 0
			b.transition(Closed)
		}
		return
	}

	if !failed {
		b.failures = 0
		return
	}
	b.failures++
	if b.state == Closed && b.failures >= b.cfg.Threshold {
		b.open()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(Open)
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	zap.L().Info("resilience: breaker state change",
		zap.String("breaker", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
		zap.Int("failures", b.failures),
	)
	b.state = to
}

// Breakers holds one breaker per name, created on first use.
type Breakers struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers creates an empty registry whose breakers share cfg.
func NewBreakers(cfg Config) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for name.
func (r *Breakers) For(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = NewBreaker(name, r.cfg)
		r.breakers[name] = b
	}
	return b
}
