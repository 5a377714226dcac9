// Package circuitbreaker guards a single upstream with a closed, open,
// half-open circuit.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the circuit position.
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
		return "half_open"
	default:
		return "unknown"
	}
}

var stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "escrowd",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by breaker name.",
}, []string{"name", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(stateTransitions)
}

// Breaker protects one upstream. After threshold consecutive failures the
// circuit opens and calls are rejected; after openFor elapses a single probe
// is let through and its outcome decides between closed and open again.
type Breaker struct {
	name      string
	threshold int
	openFor   time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// New creates a breaker for one named upstream.
func New(name string, threshold int, openFor time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, openFor: openFor}
}

// Allow reports whether a call should go out now. When the circuit has been
// open for openFor it moves to half-open and admits exactly one probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) >= b.openFor {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		// A probe is already in flight.
		return false
	default:
		return true
	}
}

// RecordSuccess clears the failure streak and closes a half-open circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
}

// RecordFailure counts a failed call, tripping the circuit at the threshold
// and re-opening it when a half-open probe fails.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch {
	case b.state == StateHalfOpen:
		b.transition(StateOpen)
	case b.state == StateClosed && b.failures >= b.threshold:
		b.transition(StateOpen)
	}
}

// State returns the current circuit position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	stateTransitions.WithLabelValues(b.name, b.state.String(), to.String()).Inc()
	b.state = to
}
