// Package circuitbreaker stops calls to an upstream that keeps failing, so a
// dead dependency fails fast instead of holding callers until their timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrOpen is returned while the breaker refuses calls.
var ErrOpen = errors.New("circuit breaker open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Options tune one breaker. Zero values fall back to the defaults noted per
// field.
type Options struct {
	TripAfter    int           // consecutive failures that open the breaker (default 5)
	Cooldown     time.Duration // open duration before probing resumes (default 30s)
	ProbeQuota   int           // calls admitted at once while half-open (default 1)
	RestoreAfter int           // consecutive probe successes that close it (default 2)
	Logger       *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.TripAfter <= 0 {
		o.TripAfter = 5
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
	if o.ProbeQuota <= 0 {
		o.ProbeQuota = 1
	}
	if o.RestoreAfter <= 0 {
		o.RestoreAfter = 2
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Breaker trips open after a run of consecutive failures, refuses calls for a
// cooldown, then admits a bounded number of probes before closing again. Safe
// for concurrent use.
type Breaker struct {
	name string
	opts Options

	mu       sync.Mutex
	state    state
	failures int // consecutive failures while closed
	inflight int // probes admitted and not yet completed while half-open
	restored int // consecutive probe successes while half-open
	openedAt time.Time
}

func New(name string, opts Options) *Breaker {
	return &Breaker{name: name, opts: opts.withDefaults()}
}

// Do runs fn unless the breaker is open. fn's error is passed through
// unchanged and feeds the failure count; a context already past its deadline
// short-circuits without touching the breaker.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	b.record(err == nil)
	return err
}

// State reports the current state name, moving open to half-open first when
// the cooldown has lapsed.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeProbe()
	return b.state.String()
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeProbe()
	switch b.state {
	case stateOpen:
		return ErrOpen
	case stateHalfOpen:
		if b.inflight >= b.opts.ProbeQuota {
			return ErrOpen
		}
		b.inflight++
	}
	return nil
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		if ok {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.opts.TripAfter {
			b.shift(stateOpen)
		}
	case stateHalfOpen:
		if b.inflight > 0 {
			b.inflight--
		}
		if !ok {
			b.shift(stateOpen)
			return
		}
		b.restored++
		if b.restored >= b.opts.RestoreAfter {
			b.shift(stateClosed)
		}
	default:
		// A call admitted before the trip finished after it. Its outcome
		// belongs to the closed era and is dropped.
	}
}

// maybeProbe moves an open breaker whose cooldown lapsed into half-open.
// Callers must hold mu.
func (b *Breaker) maybeProbe() {
	if b.state == stateOpen && time.Since(b.openedAt) >= b.opts.Cooldown {
		b.shift(stateHalfOpen)
	}
}

// shift changes state and resets the counters of the one left behind.
// Callers must hold mu.
func (b *Breaker) shift(next state) {
	prev := b.state
	b.state = next
	b.failures = 0
	b.inflight = 0
	b.restored = 0
	if next == stateOpen {
		b.openedAt = time.Now()
	}

	b.opts.Logger.Info("Circuit breaker state changed",
		zap.String("name", b.name),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}
