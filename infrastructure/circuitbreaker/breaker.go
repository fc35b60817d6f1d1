// Package circuitbreaker stops calling a failing dependency for a cooldown
// period after a run of consecutive failures.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker refuses calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker. Zero or less disables the breaker.
	FailureThreshold int `yaml:"failure_threshold"`
	// Cooldown is how long the breaker stays open before letting one trial
	// call through.
	Cooldown time.Duration `yaml:"cooldown"`
	// OnStateChange is called with the lock released.
	OnStateChange func(from, to State) `yaml:"-"`
}

const defaultCooldown = time.Minute

// Breaker guards calls to one dependency. It is safe for concurrent use.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// New creates a closed Breaker.
func New(cfg Config) *Breaker {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open. An error matching any of
// ignore is returned without counting as a failure.
func (b *Breaker) Execute(fn func() error, ignore ...func(error) bool) error {
	if b.cfg.FailureThreshold <= 0 {
		return fn()
	}

	if err := b.before(); err != nil {
		return err
	}

	err := fn()
	for _, skip := range ignore {
		if err != nil && skip(err) {
			b.release()
			return err
		}
	}

	b.after(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) before() error {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		remaining := b.cfg.Cooldown - b.now().Sub(b.openedAt)
		if remaining > 0 {
			b.mu.Unlock()
			return fmt.Errorf("%w: retry in %s", ErrOpen, remaining.Round(time.Second))
		}
		from := b.setState(StateHalfOpen)
		b.trial = true
		b.mu.Unlock()
		b.notify(from, StateHalfOpen)
		return nil
	case StateHalfOpen:
		if b.trial {
			b.mu.Unlock()
			return fmt.Errorf("%w: trial call in progress", ErrOpen)
		}
		b.trial = true
	}

	b.mu.Unlock()
	return nil
}

func (b *Breaker) release() {
	b.mu.Lock()
	b.trial = false
	b.mu.Unlock()
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	b.trial = false

	var from, to State
	changed := false

	if err == nil {
		b.failures = 0
		if b.state != StateClosed {
			from, to, changed = b.setState(StateClosed), StateClosed, true
		}
	} else {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			if b.state != StateOpen {
				from, to, changed = b.setState(StateOpen), StateOpen, true
			}
		}
	}

	b.mu.Unlock()
	if changed {
		b.notify(from, to)
	}
}

// setState must be called with mu held. It returns the previous state.
func (b *Breaker) setState(s State) State {
	prev := b.state
	b.state = s
	if s == StateClosed {
		b.failures = 0
	}
	return prev
}

func (b *Breaker) notify(from, to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
