// Package breaker implements per-integration fault isolation: a
// closed/open/half-open state machine gating calls to a flaky
// downstream service.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors the three states spec §4.1 names explicitly, kept
// distinct from gobreaker's own State type so callers never depend on
// the backing library's vocabulary.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

// ErrOpen is returned by Execute when the breaker forbids the call.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes the breaker per spec §6's `<provider>_circuit_*` keys.
type Config struct {
	Name             string
	FailureThreshold uint32
	RecoveryTimeout  time.Duration
}

// Breaker wraps gobreaker to expose exactly the transition semantics
// spec §4.1 describes: consecutive-failure counting in the closed
// state, a single admitted trial call in half-open, and a structured
// log line on every state transition.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker

	mu           sync.Mutex
	lastSeen     State
	failureCount uint32
	logger       *slog.Logger
}

// New builds a Breaker. A zero FailureThreshold defaults to 5; a zero
// RecoveryTimeout defaults to 30s.
func New(cfg Config, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout == 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}

	b := &Breaker{name: cfg.Name, lastSeen: Closed, logger: logger}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1, // half-open admits exactly one trial call
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			b.mu.Lock()
			b.failureCount = counts.ConsecutiveFailures
			b.mu.Unlock()
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.onTransition(fromGobreaker(from), fromGobreaker(to))
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// onTransition runs inside gobreaker's OnStateChange, which holds the
// breaker's own mutex, so the failure count comes from the value
// ReadyToTrip last recorded rather than from cb.Counts().
func (b *Breaker) onTransition(from, to State) {
	b.mu.Lock()
	b.lastSeen = to
	if to == Closed {
		b.failureCount = 0
	}
	failures := b.failureCount
	b.mu.Unlock()
	b.logger.Info("circuit breaker state transition",
		slog.String("breaker", b.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("failure_count", int(failures)),
	)
}

// CanExecute reports whether a call may proceed right now. It reads
// gobreaker's live state via cb.State() rather than the cached
// lastSeen snapshot: cb.State() performs gobreaker's lazy
// open->half_open transition itself once recovery_timeout has
// elapsed, firing OnStateChange (and so updating lastSeen) as a side
// effect. Reading the cache instead would never observe that
// transition, since lastSeen is otherwise only ever written from
// inside a call that already passed this gate.
func (b *Breaker) CanExecute() bool {
	return fromGobreaker(b.cb.State()) != Open
}

// State returns the last observed state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}

// Execute runs fn if the breaker allows it, recording success/failure
// against the breaker's internal counters. It returns ErrOpen without
// calling fn when the breaker is open.
func (b *Breaker) Execute(_ context.Context, fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// RecordSuccess and RecordFailure let callers that must check
// CanExecute separately from invoking the downstream call (C2's loop
// records success/failure per attempt, not per logical call) still
// drive the same underlying counters.
func (b *Breaker) RecordSuccess() {
	_, _ = b.cb.Execute(func() (any, error) { return nil, nil })
}

func (b *Breaker) RecordFailure() {
	_, _ = b.cb.Execute(func() (any, error) { return nil, errSentinelFailure })
}

var errSentinelFailure = errors.New("breaker: recorded failure")
