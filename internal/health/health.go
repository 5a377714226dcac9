// Package health aggregates per-subsystem readiness checks.
package health

import (
	"context"
	"sync"
	"time"
)

// checkTimeout bounds a single subsystem probe so one slow dependency
// cannot stall the whole readiness response.
const checkTimeout = 2 * time.Second

// Status is the outcome of probing one subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Ok reports a passing probe.
func Ok() Status { return Status{Healthy: true} }

// Fail reports a failing probe with a human-readable reason.
func Fail(detail string) Status { return Status{Healthy: false, Detail: detail} }

// Checker probes one subsystem. The registry fills in Status.Name from the
// name the checker was registered under.
type Checker func(ctx context.Context) Status

// Registry runs registered checkers on demand, in registration order.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	checks map[string]Checker
}

func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Checker)}
}

// Register adds a checker under a name. Registering the same name twice
// replaces the earlier checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; !exists {
		r.names = append(r.names, name)
	}
	r.checks[name] = check
}

// CheckAll probes every subsystem and reports the aggregate plus the
// individual results. The aggregate is healthy only if every probe passed.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	checks := make(map[string]Checker, len(r.checks))
	for k, v := range r.checks {
		checks[k] = v
	}
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		st := checks[name](probeCtx)
		cancel()
		st.Name = name
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}
