package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxelmind.ai/internal/bridge"
	"voxelmind.ai/internal/mind"
	"voxelmind.ai/internal/oracle"
	"voxelmind.ai/internal/persistence/journal"
)

var (
	ErrExists   = errors.New("agent already exists")
	ErrNotFound = errors.New("agent not found")
	ErrRunning  = errors.New("agent already running")
	ErrClosed   = errors.New("manager closed")
)

// Config wires the shared services agents are assembled from.
type Config struct {
	Env    bridge.Environment
	Oracle oracle.Provider

	// Archive receives long-tier memory evictions after they are
	// journaled. Nil is fine; the journal copy remains.
	Archive mind.MemorySink

	// OnSegment receives the path of every sealed journal segment, for
	// the storage mirror. Nil disables it.
	OnSegment func(path string)

	DataDir string
	Traits  TraitSet
	Pol     Policies
	Logger  *log.Logger
}

// Event is one monitor frame fanned out to management subscribers.
type Event struct {
	At       time.Time      `json:"at"`
	AgentID  string         `json:"agent_id"`
	Kind     string         `json:"kind"` // decision|module|bridge|lifecycle
	Source   string         `json:"source,omitempty"`
	Detail   string         `json:"detail,omitempty"`
	Decision *mind.Decision `json:"decision,omitempty"`
}

type subscriber struct {
	agentID string
	ch      chan Event
}

// Manager owns every agent in the process: creation, start and stop,
// status reads and the monitor event fan-out.
type Manager struct {
	cfg Config

	mu     sync.Mutex
	agents map[string]*Agent
	closed bool

	subMu   sync.Mutex
	subs    map[uint64]subscriber
	nextSub uint64
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Env == nil {
		return nil, errors.New("agent: environment required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("agent: oracle provider required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("agent: logger required")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.Pol == (Policies{}) {
		cfg.Pol = DefaultPolicies()
	}
	return &Manager{
		cfg:    cfg,
		agents: map[string]*Agent{},
		subs:   map[uint64]subscriber{},
	}, nil
}

// CreateSpec names a new agent. A zero ID gets a generated UUID; the role
// selects the trait profile.
type CreateSpec struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Role string `json:"role"`
}

func (m *Manager) Create(spec CreateSpec) (Status, error) {
	if spec.Name == "" {
		return Status{}, errors.New("agent: name required")
	}
	if spec.Role == "" {
		spec.Role = "generalist"
	}
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Status{}, ErrClosed
	}
	if _, ok := m.agents[id]; ok {
		return Status{}, fmt.Errorf("agent %s: %w", id, ErrExists)
	}
	a := m.assemble(id, spec.Name, spec.Role)
	m.agents[id] = a
	m.publish(Event{AgentID: id, Kind: "lifecycle", Source: "manager", Detail: "created"})
	return a.Status(), nil
}

// assemble wires one agent: shared state, the five cognitive modules, the
// controller and the bridge, with journal and monitor hooks attached. The
// agent ID doubles as the world session ID so a rejoin lands in the same
// session.
func (m *Manager) assemble(id, name, role string) *Agent {
	trait := m.cfg.Traits.ForRole(role)
	persona := personaFor(name, trait)

	state := mind.NewState(id, name, role)
	logger := log.New(m.cfg.Logger.Writer(), fmt.Sprintf("[agent %s] ", name), m.cfg.Logger.Flags())
	jr := journal.Open(filepath.Join(m.cfg.DataDir, "journal"), id)
	if m.cfg.OnSegment != nil {
		jr.OnSeal(m.cfg.OnSegment)
	}

	pol := m.cfg.Pol
	if trait.Temperature > 0 {
		pol.Controller.Temperature = trait.Temperature
		pol.GoalGen.Temperature = trait.Temperature
	}

	decisions := make(chan mind.Decision, 1)
	ctrl := mind.NewController(pol.Controller, m.cfg.Oracle, persona, logger, decisions)
	ctrl.OnDecision(func(d mind.Decision) {
		_ = jr.Decision(d)
		m.publish(Event{AgentID: id, Kind: "decision", Source: "controller", Detail: d.Action.String(), Decision: &d})
	})

	br := bridge.New(pol.Bridge, m.cfg.Env, id, role, decisions, logger)
	br.OnEvent(func(kind, detail string) {
		_ = jr.BridgeEvent(kind, detail)
		m.publish(Event{AgentID: id, Kind: "bridge", Source: kind, Detail: detail})
	})

	rt := mind.NewRuntime(state, logger,
		mind.NewPerception(pol.Perception),
		mind.NewSocialAwareness(pol.Social),
		mind.NewGoalGen(pol.GoalGen, m.cfg.Oracle, persona, logger),
		mind.NewActionAwareness(pol.Action),
		mind.NewMemoryConsolidation(pol.Consolidation, archiveSink{jr: jr, next: m.cfg.Archive}),
		ctrl,
		br,
	)
	rt.OnDelta(func(module string, d mind.Delta) {
		// Controller and bridge activity reaches the journal through their
		// own richer hooks.
		if module == "controller" || module == "bridge" {
			return
		}
		_ = jr.ModuleNote(module, d.Note)
		m.publish(Event{AgentID: id, Kind: "module", Source: module, Detail: d.Note})
	})

	return &Agent{id: id, state: state, rt: rt, br: br, jr: jr}
}

func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	a, ok := m.agents[id]
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	m.publish(Event{AgentID: id, Kind: "lifecycle", Source: "manager", Detail: "started"})
	go m.watch(a)
	return nil
}

// watch reports the runtime's exit on the monitor stream.
func (m *Manager) watch(a *Agent) {
	err := a.Wait()
	detail := "stopped"
	if err != nil {
		detail = "stopped: " + err.Error()
	}
	m.publish(Event{AgentID: a.id, Kind: "lifecycle", Source: "manager", Detail: detail})
}

func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	a, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return a.Stop()
}

// Remove stops the agent, releases its resources and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	a, ok := m.agents[id]
	if ok {
		delete(m.agents, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	err := a.Stop()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	m.publish(Event{AgentID: id, Kind: "lifecycle", Source: "manager", Detail: "removed"})
	return err
}

// Agent returns the live assembly for direct access, e.g. to its state.
func (m *Manager) Agent(id string) (*Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	return a, ok
}

func (m *Manager) Get(id string) (Status, error) {
	m.mu.Lock()
	a, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return Status{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return a.Status(), nil
}

func (m *Manager) List() []Status {
	m.mu.Lock()
	agents := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Memories returns one live tier for the management surface.
func (m *Manager) Memories(id string, tier mind.MemoryTier) ([]mind.MemoryRecord, error) {
	m.mu.Lock()
	a, ok := m.agents[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return a.state.Memories(tier), nil
}

// Boot creates and starts the agents declared in configuration. An error
// aborts the remaining ones.
func (m *Manager) Boot(ctx context.Context, specs []CreateSpec) error {
	for _, spec := range specs {
		st, err := m.Create(spec)
		if err != nil {
			return fmt.Errorf("boot %s: %w", spec.Name, err)
		}
		if err := m.Start(ctx, st.ID); err != nil {
			return fmt.Errorf("boot %s: %w", spec.Name, err)
		}
	}
	return nil
}

// Subscribe registers a monitor sink. An empty agentID receives every
// agent's events. Slow subscribers lose frames rather than block the
// agents; the returned cancel func must be called exactly once.
func (m *Manager) Subscribe(agentID string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	m.subMu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = subscriber{agentID: agentID, ch: ch}
	m.subMu.Unlock()

	return ch, func() {
		m.subMu.Lock()
		if s, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(s.ch)
		}
		m.subMu.Unlock()
	}
}

func (m *Manager) publish(ev Event) {
	ev.At = time.Now()
	m.subMu.Lock()
	for _, s := range m.subs {
		if s.agentID != "" && s.agentID != ev.AgentID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
	m.subMu.Unlock()
}

// Close stops every agent and drops all subscribers. The manager cannot
// be reused afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	agents := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	m.mu.Unlock()

	// Stop outside the lock; shutdown waits on module goroutines.
	for _, a := range agents {
		_ = a.Stop()
		_ = a.close()
	}

	m.subMu.Lock()
	for id, s := range m.subs {
		delete(m.subs, id)
		close(s.ch)
	}
	m.subMu.Unlock()
}
