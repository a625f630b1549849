// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package circuitbreaker

import (
	"sort"
	"sync"
	"time"
)

// State represents the lifecycle state of a single circuit.
type State string

const (
	// StateClosed allows all calls through.
	StateClosed State = "closed"

	// StateOpen rejects all calls until the cooldown elapses.
	StateOpen State = "open"

	// StateHalfOpen allows a bounded number of probe calls through
	// to decide whether the dependency has recovered.
	StateHalfOpen State = "half_open"
)

// Config contains circuit breaker tuning parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// a closed circuit open.
	FailureThreshold int

	// Cooldown is how long an open circuit rejects calls before allowing
	// half-open probes.
	Cooldown time.Duration

	// HalfOpenSuccessThreshold is the number of successful probes required
	// to close a half-open circuit.
	HalfOpenSuccessThreshold int

	// HalfOpenMaxAttempts caps the number of in-flight probes while
	// half-open. Callers beyond this budget are rejected until a probe
	// resolves.
	HalfOpenMaxAttempts int
}

// DefaultConfig returns the breaker configuration used by the gateway
// when nothing is configured explicitly.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:         5,
		Cooldown:                 30 * time.Second,
		HalfOpenSuccessThreshold: 2,
		HalfOpenMaxAttempts:      1,
	}
}

// Entry is a read-only snapshot of one circuit's state.
type Entry struct {
	Key           string     `json:"key"`
	State         State      `json:"state"`
	FailureCount  int        `json:"failure_count"`
	SuccessCount  int        `json:"success_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
}

// entry is the mutable per-key record. Only CircuitBreaker methods touch it,
// always under the breaker's mutex.
type entry struct {
	state         State
	failureCount  int
	successCount  int
	lastFailureAt *time.Time
	lastSuccessAt *time.Time
	lastError     string
	openedAt      *time.Time
	probes        int // in-flight half-open probe count
}

// CircuitBreaker tracks failure history per opaque key (a model id, a
// "tenant:service" pair) and decides whether calls through that key are
// currently permitted.
//
// Entries are created lazily on first access; an unseen key behaves as a
// fresh closed circuit. State is process-local and volatile: it resets on
// restart, which is an accepted reason to re-probe a previously open
// circuit. In a multi-instance deployment each replica probes
// independently; this is a known limitation, not something to paper over
// with a shared store.
type CircuitBreaker struct {
	config  Config
	entries map[string]*entry
	now     func() time.Time
	mu      sync.Mutex
}

// Option configures a CircuitBreaker during creation.
type Option func(*CircuitBreaker)

// WithClock sets a custom time source (useful for testing cooldowns).
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// New creates a circuit breaker with the given configuration.
// Zero or negative config values fall back to DefaultConfig.
func New(config Config, opts ...Option) *CircuitBreaker {
	def := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	if config.HalfOpenSuccessThreshold <= 0 {
		config.HalfOpenSuccessThreshold = def.HalfOpenSuccessThreshold
	}
	if config.HalfOpenMaxAttempts <= 0 {
		config.HalfOpenMaxAttempts = def.HalfOpenMaxAttempts
	}

	cb := &CircuitBreaker{
		config:  config,
		entries: make(map[string]*entry),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

// IsAllowed reports whether a call through key is currently permitted.
//
// Closed circuits always allow. Open circuits reject until the cooldown
// elapses, at which point the circuit transitions to half-open and the
// call is admitted as the first probe. Half-open circuits admit calls up
// to the configured probe budget.
//
// A rejected call is normal control flow, never an error: callers are
// expected to fall back to the next candidate.
func (cb *CircuitBreaker) IsAllowed(key string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e, exists := cb.entries[key]
	if !exists {
		return true
	}

	switch e.state {
	case StateClosed:
		return true

	case StateOpen:
		if e.openedAt != nil && cb.now().Sub(*e.openedAt) >= cb.config.Cooldown {
			e.state = StateHalfOpen
			e.successCount = 0
			e.probes = 1
			return true
		}
		return false

	case StateHalfOpen:
		if e.probes < cb.config.HalfOpenMaxAttempts {
			e.probes++
			return true
		}
		return false
	}

	return true
}

// RecordSuccess records a successful call through key.
//
// In closed state a single success forgives all prior failures: the
// failure count resets to zero. Failures are consecutive in intent,
// counted without decay, which favors simplicity over nuance. In
// half-open state successes accumulate until the circuit closes.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e := cb.getOrCreate(key)
	now := cb.now()
	e.lastSuccessAt = &now

	switch e.state {
	case StateClosed:
		e.failureCount = 0

	case StateHalfOpen:
		if e.probes > 0 {
			e.probes--
		}
		e.successCount++
		if e.successCount >= cb.config.HalfOpenSuccessThreshold {
			e.state = StateClosed
			e.failureCount = 0
			e.successCount = 0
			e.openedAt = nil
			e.probes = 0
		}
	}
}

// RecordFailure records a failed call through key with its error message.
//
// Any failure while half-open reopens the circuit immediately, discarding
// partial recovery progress. In closed state the circuit opens once the
// consecutive failure count reaches the threshold.
func (cb *CircuitBreaker) RecordFailure(key, errorMessage string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e := cb.getOrCreate(key)
	now := cb.now()
	e.lastFailureAt = &now
	e.lastError = errorMessage
	e.failureCount++

	if e.state == StateHalfOpen || e.failureCount >= cb.config.FailureThreshold {
		e.state = StateOpen
		e.openedAt = &now
		e.successCount = 0
		e.probes = 0
	}
}

// Status returns a read-only snapshot for key. Unseen keys report a fresh
// closed circuit. Status never mutates state.
func (cb *CircuitBreaker) Status(key string) Entry {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	e, exists := cb.entries[key]
	if !exists {
		return Entry{Key: key, State: StateClosed}
	}
	return snapshot(key, e)
}

// Reset deletes the entry for key, returning it to an implicit fresh
// closed state on next access.
func (cb *CircuitBreaker) Reset(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.entries, key)
}

// ResetAll clears every entry. Used for cold starts and test isolation.
func (cb *CircuitBreaker) ResetAll() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.entries = make(map[string]*entry)
}

// OpenCircuits returns snapshots of every circuit that is not closed,
// sorted by key, for health reporting.
func (cb *CircuitBreaker) OpenCircuits() []Entry {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var open []Entry
	for key, e := range cb.entries {
		if e.state != StateClosed {
			open = append(open, snapshot(key, e))
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Key < open[j].Key })
	return open
}

// getOrCreate must be called with cb.mu held.
func (cb *CircuitBreaker) getOrCreate(key string) *entry {
	e, exists := cb.entries[key]
	if !exists {
		e = &entry{state: StateClosed}
		cb.entries[key] = e
	}
	return e
}

func snapshot(key string, e *entry) Entry {
	snap := Entry{
		Key:          key,
		State:        e.state,
		FailureCount: e.failureCount,
		SuccessCount: e.successCount,
		LastError:    e.lastError,
	}
	if e.lastFailureAt != nil {
		t := *e.lastFailureAt
		snap.LastFailureAt = &t
	}
	if e.lastSuccessAt != nil {
		t := *e.lastSuccessAt
		snap.LastSuccessAt = &t
	}
	if e.openedAt != nil {
		t := *e.openedAt
		snap.OpenedAt = &t
	}
	return snap
}
