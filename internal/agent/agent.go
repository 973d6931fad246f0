// Package agent assembles complete agents out of the cognitive modules,
// the bridge and the journal, and supervises their lifecycle for the
// management surface.
package agent

import (
	"context"
	"fmt"
	"sync"

	"voxelmind.ai/internal/bridge"
	"voxelmind.ai/internal/mind"
	"voxelmind.ai/internal/persistence/journal"
)

// Policies collects the per-module tuning an agent is assembled with.
type Policies struct {
	Perception    mind.PerceptionPolicy
	Social        mind.SocialPolicy
	GoalGen       mind.GoalGenPolicy
	Action        mind.ActionPolicy
	Consolidation mind.ConsolidationPolicy
	Controller    mind.ControllerPolicy
	Bridge        bridge.Policy
}

func DefaultPolicies() Policies {
	return Policies{
		Perception:    mind.DefaultPerceptionPolicy(),
		Social:        mind.DefaultSocialPolicy(),
		GoalGen:       mind.DefaultGoalGenPolicy(),
		Action:        mind.DefaultActionPolicy(),
		Consolidation: mind.DefaultConsolidationPolicy(),
		Controller:    mind.DefaultControllerPolicy(),
		Bridge:        bridge.DefaultPolicy(),
	}
}

// Agent is one assembled cognitive loop. Start and Stop may be called
// repeatedly; a terminated agent refuses to start again.
type Agent struct {
	id string

	state *mind.State
	rt    *mind.Runtime
	br    *bridge.Bridge
	jr    *journal.Journal

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	runErr  error
}

func (a *Agent) ID() string { return a.id }

// State exposes the shared state for read-only surfaces.
func (a *Agent) State() *mind.State { return a.state }

// Start launches the module runtime and returns immediately. The runtime
// runs until Stop, a fatal module error or termination.
func (a *Agent) Start(parent context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrRunning
	}
	if term, reason := a.state.Terminated(); term {
		return fmt.Errorf("%w: %s", mind.ErrTerminated, reason)
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done
	a.running = true
	a.runErr = nil

	go func() {
		err := a.rt.Run(ctx)
		cancel()
		a.mu.Lock()
		a.running = false
		a.runErr = err
		a.mu.Unlock()
		close(done)
	}()
	return nil
}

// Stop cancels the runtime, waits for the module goroutines to drain and
// releases the environment attachment.
func (a *Agent) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	cancel()
	<-done
	return a.br.Detach(a.state)
}

// Wait blocks until the current run exits and returns its error. Returns
// nil when the agent was never started.
func (a *Agent) Wait() error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runErr
}

func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Agent) RunError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runErr
}

// close releases the journal and any environment attachment. Call only
// after Stop.
func (a *Agent) close() error {
	err := a.br.Detach(a.state)
	if cerr := a.jr.Close(); err == nil {
		err = cerr
	}
	return err
}

// Status is the management view of one agent.
type Status struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Role         string          `json:"role"`
	Running      bool            `json:"running"`
	Conn         string          `json:"conn"`
	Pos          [3]float64      `json:"pos"`
	Health       float64         `json:"health"`
	Food         float64         `json:"food"`
	Alive        bool            `json:"alive"`
	Terminated   bool            `json:"terminated"`
	TermReason   string          `json:"term_reason,omitempty"`
	SuccessRate  float64         `json:"success_rate"`
	Goals        []mind.Goal     `json:"goals"`
	LastDecision *mind.Decision  `json:"last_decision,omitempty"`
	LastOutcome  string          `json:"last_outcome,omitempty"`
	Memory       MemoryCounts    `json:"memory"`
	Counters     CounterSnapshot `json:"counters"`
	LastError    string          `json:"last_error,omitempty"`
}

type MemoryCounts struct {
	Working int `json:"working"`
	Short   int `json:"short"`
	Long    int `json:"long"`
}

// CounterSnapshot is a plain-value copy of the shared counters, for JSON
// and for the metrics exposition.
type CounterSnapshot struct {
	Decisions       uint64 `json:"decisions"`
	OracleFailures  uint64 `json:"oracle_failures"`
	GoalCycles      uint64 `json:"goal_cycles"`
	SalientEvents   uint64 `json:"salient_events"`
	ObsRepaired     uint64 `json:"obs_repaired"`
	ExpectConfirmed uint64 `json:"expect_confirmed"`
	ExpectMismatch  uint64 `json:"expect_mismatch"`
	ExpectTimeout   uint64 `json:"expect_timeout"`
	Preemptions     uint64 `json:"preemptions"`
	Deaths          uint64 `json:"deaths"`
	Rejoins         uint64 `json:"rejoins"`
}

func snapshotCounters(c *mind.Counters) CounterSnapshot {
	return CounterSnapshot{
		Decisions:       c.Decisions.Load(),
		OracleFailures:  c.OracleFailures.Load(),
		GoalCycles:      c.GoalCycles.Load(),
		SalientEvents:   c.SalientEvents.Load(),
		ObsRepaired:     c.ObsRepaired.Load(),
		ExpectConfirmed: c.ExpectConfirmed.Load(),
		ExpectMismatch:  c.ExpectMismatch.Load(),
		ExpectTimeout:   c.ExpectTimeout.Load(),
		Preemptions:     c.Preemptions.Load(),
		Deaths:          c.Deaths.Load(),
		Rejoins:         c.Rejoins.Load(),
	}
}

func (a *Agent) Status() Status {
	snap := a.state.Snapshot()
	st := Status{
		ID:           a.id,
		Name:         snap.Name,
		Role:         snap.Role,
		Running:      a.Running(),
		Conn:         snap.ConnStatus,
		Pos:          snap.Pos,
		Health:       snap.Health,
		Food:         snap.Food,
		Alive:        snap.Alive,
		Terminated:   snap.Terminated,
		TermReason:   snap.TermReason,
		SuccessRate:  snap.SuccessRate,
		Goals:        snap.Goals,
		LastDecision: snap.LastDecision,
		LastOutcome:  snap.LastOutcome,
		Memory:       MemoryCounts{Working: len(snap.Working), Short: len(snap.Short), Long: len(snap.Long)},
		Counters:     snapshotCounters(a.state.Counters()),
	}
	if err := a.RunError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// archiveSink copies long-tier evictions to the agent's journal before
// handing them to the shared archive store.
type archiveSink struct {
	jr   *journal.Journal
	next mind.MemorySink
}

func (s archiveSink) ArchiveMemory(agentID string, rec mind.MemoryRecord) {
	_ = s.jr.Archive(rec)
	if s.next != nil {
		s.next.ArchiveMemory(agentID, rec)
	}
}
