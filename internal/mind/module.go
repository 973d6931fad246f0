// Package mind implements the per-agent cognitive loop: concurrent
// awareness modules over one shared state, funneled through a single
// controller that consults the reasoning oracle and emits one decision per
// cycle.
package mind

import (
	"context"
	"time"
)

// Delta summarizes what one module tick changed. Zero-value deltas are
// no-op ticks and are not reported.
type Delta struct {
	Events int    `json:"events"`
	Note   string `json:"note,omitempty"`
}

// Module is one concurrent worker over the shared state. OnTick must not
// hold state locks across external calls; recoverable trouble is handled
// inside the module and a returned error kills the whole agent.
type Module interface {
	Name() string
	Interval() time.Duration
	OnTick(ctx context.Context, s *State) (Delta, error)
}

// Blocking marks modules whose tick may stall on an external call. The
// runtime bounds each of their ticks with CallTimeout.
type Blocking interface {
	Module
	CallTimeout() time.Duration
}
