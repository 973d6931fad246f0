package mind

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStateConflict reports a second pending expectation. It is fatal for
	// the agent: expectation bookkeeping is corrupt.
	ErrStateConflict = errors.New("state conflict: expectation already pending")
	ErrNotAlive      = errors.New("agent not alive")
	ErrTerminated    = errors.New("agent terminated")
)

// successAlpha is the EMA weight for the rolling action success rate.
const successAlpha = 0.1

// Counters are cheap shared counters exposed on the management surface.
type Counters struct {
	Decisions       atomic.Uint64
	OracleFailures  atomic.Uint64
	GoalCycles      atomic.Uint64
	SalientEvents   atomic.Uint64
	ObsRepaired     atomic.Uint64
	ExpectConfirmed atomic.Uint64
	ExpectMismatch  atomic.Uint64
	ExpectTimeout   atomic.Uint64
	Preemptions     atomic.Uint64
	Deaths          atomic.Uint64
	Rejoins         atomic.Uint64
}

// Decision is one controller output: the chosen action plus the rationale
// and a digest of the state it was derived from.
type Decision struct {
	ID          string    `json:"id"`
	Cycle       uint64    `json:"cycle"`
	Action      Action    `json:"action"`
	Rationale   string    `json:"rationale"`
	StateDigest string    `json:"state_digest"`
	At          time.Time `json:"at"`
}

// ObsApply reports what an applied observation changed.
type ObsApply struct {
	Seq     uint64
	Died    bool
	Revived bool
	First   bool
}

// State is the shared agent state all modules read and write. Fields are
// split into independently locked groups; writers go through typed mutators
// and no lock is ever held across an oracle or network call. Cross-group
// reads via Snapshot are per-group consistent, not globally atomic.
type State struct {
	agentID string
	name    string
	role    string

	counters   Counters
	failStreak atomic.Int64

	vitalsMu   sync.RWMutex
	pos        [3]float64
	yaw, pitch float64
	health     float64
	food       float64
	alive      bool
	connStatus string
	terminated bool
	termReason string

	invMu     sync.RWMutex
	inventory map[string]int

	// Goals are mutated only by goal generation (MergeGoals) and by death
	// handling (ClearGoals); the head of the slice is the current goal.
	goalsMu sync.RWMutex
	goals   []Goal

	socialMu sync.RWMutex
	peers    map[string]*Relationship

	memMu   sync.RWMutex
	working []MemoryRecord
	short   []MemoryRecord
	long    []MemoryRecord

	obsMu    sync.RWMutex
	current  *Observation
	lastGood *Observation
	obsSeq   uint64

	expectMu     sync.RWMutex
	expect       *Expectation
	lastDecision *Decision
	lastOutcome  string
	successRate  float64

	obsNotify chan struct{}
}

func NewState(agentID, name, role string) *State {
	s := &State{
		agentID:     agentID,
		name:        name,
		role:        role,
		inventory:   map[string]int{},
		peers:       map[string]*Relationship{},
		connStatus:  "disconnected",
		successRate: 1,
		obsNotify:   make(chan struct{}, 1),
	}
	return s
}

func (s *State) AgentID() string { return s.agentID }

func (s *State) Name() string { return s.name }

func (s *State) Role() string { return s.role }

func (s *State) Counters() *Counters { return &s.counters }

// Snapshot copies every field group for lock-free reading. The observation
// pointers are shared; observations are immutable once applied.
type Snapshot struct {
	AgentID string
	Name    string
	Role    string
	At      time.Time

	Pos        [3]float64
	Yaw, Pitch float64
	Health     float64
	Food       float64
	Alive      bool
	ConnStatus string
	Terminated bool
	TermReason string

	Inventory map[string]int
	Goals     []Goal
	Peers     []Relationship

	Working []MemoryRecord
	Short   []MemoryRecord
	Long    []MemoryRecord

	Obs      *Observation
	LastGood *Observation
	ObsSeq   uint64

	Expect       *Expectation
	LastDecision *Decision
	LastOutcome  string
	SuccessRate  float64
	FailStreak   int
}

func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		AgentID: s.agentID, Name: s.name, Role: s.role,
		At:         time.Now(),
		FailStreak: int(s.failStreak.Load()),
	}

	s.vitalsMu.RLock()
	snap.Pos, snap.Yaw, snap.Pitch = s.pos, s.yaw, s.pitch
	snap.Health, snap.Food, snap.Alive = s.health, s.food, s.alive
	snap.ConnStatus = s.connStatus
	snap.Terminated, snap.TermReason = s.terminated, s.termReason
	s.vitalsMu.RUnlock()

	s.invMu.RLock()
	snap.Inventory = copyInv(s.inventory)
	s.invMu.RUnlock()

	s.goalsMu.RLock()
	snap.Goals = append([]Goal(nil), s.goals...)
	s.goalsMu.RUnlock()

	s.socialMu.RLock()
	snap.Peers = make([]Relationship, 0, len(s.peers))
	for _, r := range s.peers {
		snap.Peers = append(snap.Peers, r.clone())
	}
	s.socialMu.RUnlock()
	sort.Slice(snap.Peers, func(i, j int) bool { return snap.Peers[i].PeerID < snap.Peers[j].PeerID })

	s.memMu.RLock()
	snap.Working = append([]MemoryRecord(nil), s.working...)
	snap.Short = append([]MemoryRecord(nil), s.short...)
	snap.Long = append([]MemoryRecord(nil), s.long...)
	s.memMu.RUnlock()

	s.obsMu.RLock()
	snap.Obs, snap.LastGood, snap.ObsSeq = s.current, s.lastGood, s.obsSeq
	s.obsMu.RUnlock()

	s.expectMu.RLock()
	snap.Expect = s.expect.clone()
	if s.lastDecision != nil {
		d := *s.lastDecision
		snap.LastDecision = &d
	}
	snap.LastOutcome = s.lastOutcome
	snap.SuccessRate = s.successRate
	s.expectMu.RUnlock()

	return snap
}

func (s *State) CurrentGoal() *Goal {
	s.goalsMu.RLock()
	defer s.goalsMu.RUnlock()
	if len(s.goals) == 0 {
		return nil
	}
	g := s.goals[0]
	return &g
}

func (s *State) Goals() []Goal {
	s.goalsMu.RLock()
	defer s.goalsMu.RUnlock()
	return append([]Goal(nil), s.goals...)
}

// MergeGoals replaces the stack with a ranked one. Only goal generation
// calls this; the stack stays empty while the agent is dead.
func (s *State) MergeGoals(ranked []Goal) error {
	s.vitalsMu.RLock()
	alive, terminated := s.alive, s.terminated
	s.vitalsMu.RUnlock()
	if terminated {
		return ErrTerminated
	}
	if !alive {
		return ErrNotAlive
	}
	if len(ranked) > GoalStackCap {
		ranked = ranked[:GoalStackCap]
	}
	s.goalsMu.Lock()
	s.goals = append(s.goals[:0], ranked...)
	s.goalsMu.Unlock()
	return nil
}

func (s *State) ClearGoals() {
	s.goalsMu.Lock()
	s.goals = s.goals[:0]
	s.goalsMu.Unlock()
}

// ApplyObservation installs a repaired frame. Non-stale frames are ground
// truth and overwrite vitals and inventory; stale substitutes only advance
// the frame pointer so readers always see something current.
func (s *State) ApplyObservation(o *Observation) ObsApply {
	var r ObsApply

	if !o.Stale {
		s.vitalsMu.Lock()
		wasAlive := s.alive
		s.pos, s.yaw, s.pitch = o.Pos, o.Yaw, o.Pitch
		s.health, s.food = o.Health, o.Food
		s.alive = o.Alive
		s.vitalsMu.Unlock()

		r.Died = wasAlive && !o.Alive
		r.Revived = !wasAlive && o.Alive

		s.invMu.Lock()
		s.inventory = copyInv(o.Inventory)
		s.invMu.Unlock()

		if r.Died {
			s.ClearGoals()
		}
	}

	s.obsMu.Lock()
	r.First = s.current == nil
	s.current = o
	if !o.Stale && !o.Synthetic {
		s.lastGood = o
	}
	s.obsSeq++
	r.Seq = s.obsSeq
	s.obsMu.Unlock()

	select {
	case s.obsNotify <- struct{}{}:
	default:
	}
	return r
}

func (s *State) LatestObservation() *Observation {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return s.current
}

func (s *State) LastGoodObservation() *Observation {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	return s.lastGood
}

// ObsNotify signals (capacity one, coalescing) after each applied frame.
func (s *State) ObsNotify() <-chan struct{} { return s.obsNotify }

func (s *State) Position() [3]float64 {
	s.vitalsMu.RLock()
	defer s.vitalsMu.RUnlock()
	return s.pos
}

func (s *State) Alive() bool {
	s.vitalsMu.RLock()
	defer s.vitalsMu.RUnlock()
	return s.alive
}

func (s *State) SetConnStatus(st string) {
	s.vitalsMu.Lock()
	s.connStatus = st
	s.vitalsMu.Unlock()
}

func (s *State) Terminate(reason string) {
	s.vitalsMu.Lock()
	s.terminated = true
	s.termReason = reason
	s.alive = false
	s.vitalsMu.Unlock()
	s.ClearGoals()
}

func (s *State) Terminated() (bool, string) {
	s.vitalsMu.RLock()
	defer s.vitalsMu.RUnlock()
	return s.terminated, s.termReason
}

// SetExpectation installs a pending expectation. A second pending one is a
// bookkeeping bug and returns ErrStateConflict.
func (s *State) SetExpectation(e *Expectation) error {
	s.expectMu.Lock()
	defer s.expectMu.Unlock()
	if s.expect != nil && s.expect.Status == ExpectPending {
		return ErrStateConflict
	}
	e.Status = ExpectPending
	s.expect = e
	return nil
}

func (s *State) Expectation() *Expectation {
	s.expectMu.RLock()
	defer s.expectMu.RUnlock()
	return s.expect.clone()
}

// ResolveExpectation clears the pending expectation, folds the outcome into
// the success EMA and the failure streak, and returns the resolved record.
func (s *State) ResolveExpectation(status ExpectationStatus, note string) *Expectation {
	s.expectMu.Lock()
	e := s.expect
	s.expect = nil
	if e != nil {
		target := 0.0
		if status == ExpectConfirmed {
			target = 1.0
		}
		s.successRate += successAlpha * (target - s.successRate)
		s.lastOutcome = note
	}
	s.expectMu.Unlock()

	if e == nil {
		return nil
	}
	e.Status = status
	if status == ExpectConfirmed {
		s.failStreak.Store(0)
		s.counters.ExpectConfirmed.Add(1)
	} else {
		s.failStreak.Add(1)
		s.counters.ExpectMismatch.Add(1)
	}
	return e.clone()
}

// DropExpectation discards a pending expectation without scoring it, for
// actions the bridge pre-empted before dispatch completed.
func (s *State) DropExpectation() {
	s.expectMu.Lock()
	s.expect = nil
	s.expectMu.Unlock()
}

func (s *State) RecordDecision(d Decision) {
	s.expectMu.Lock()
	s.lastDecision = &d
	s.expectMu.Unlock()
}

func (s *State) LastDecision() *Decision {
	s.expectMu.RLock()
	defer s.expectMu.RUnlock()
	if s.lastDecision == nil {
		return nil
	}
	d := *s.lastDecision
	return &d
}

func (s *State) SuccessRate() float64 {
	s.expectMu.RLock()
	defer s.expectMu.RUnlock()
	return s.successRate
}

func (s *State) FailStreak() int { return int(s.failStreak.Load()) }

// TouchPeer folds one interaction into a relationship, creating it on first
// contact. category feeds role inference and may be empty for plain
// proximity.
func (s *State) TouchPeer(peerID, name string, delta float64, category string) {
	if peerID == "" || peerID == s.agentID {
		return
	}
	s.socialMu.Lock()
	defer s.socialMu.Unlock()
	r, ok := s.peers[peerID]
	if !ok {
		r = &Relationship{PeerID: peerID, ActionCounts: map[string]int{}}
		s.peers[peerID] = r
	}
	if name != "" {
		r.Name = name
	}
	r.Affinity = clampAffinity(r.Affinity + delta)
	r.Interactions++
	r.LastInteraction = time.Now()
	if category != "" {
		r.ActionCounts[category]++
	}
}

// DecayPeers moves every unseen peer's affinity toward zero by step.
func (s *State) DecayPeers(seen map[string]bool, step float64) {
	s.socialMu.Lock()
	defer s.socialMu.Unlock()
	for id, r := range s.peers {
		if seen[id] {
			continue
		}
		switch {
		case r.Affinity > step:
			r.Affinity -= step
		case r.Affinity < -step:
			r.Affinity += step
		default:
			r.Affinity = 0
		}
	}
}

func (s *State) PeerCount() int {
	s.socialMu.RLock()
	defer s.socialMu.RUnlock()
	return len(s.peers)
}

func (s *State) Peer(peerID string) (Relationship, bool) {
	s.socialMu.RLock()
	defer s.socialMu.RUnlock()
	r, ok := s.peers[peerID]
	if !ok {
		return Relationship{}, false
	}
	return r.clone(), true
}

// AddMemory appends a working-tier record.
func (s *State) AddMemory(kind, content string, importance float64) MemoryRecord {
	now := time.Now()
	rec := MemoryRecord{
		ID: uuid.NewString(), Kind: kind, Content: content,
		Importance: importance, Tier: TierWorking,
		CreatedAt: now, Touched: now, Touches: 1,
	}
	s.memMu.Lock()
	s.working = append(s.working, rec)
	s.memMu.Unlock()
	return rec
}

// TouchOrAddMemory bumps an existing working or short record with the same
// kind and content instead of duplicating it. Returns true when a new
// record was created.
func (s *State) TouchOrAddMemory(kind, content string, importance float64) (MemoryRecord, bool) {
	now := time.Now()
	s.memMu.Lock()
	defer s.memMu.Unlock()
	for _, tier := range [][]MemoryRecord{s.working, s.short} {
		for i := range tier {
			if tier[i].Kind == kind && tier[i].Content == content {
				tier[i].Touches++
				tier[i].Touched = now
				if importance > tier[i].Importance {
					tier[i].Importance = importance
				}
				return tier[i], false
			}
		}
	}
	rec := MemoryRecord{
		ID: uuid.NewString(), Kind: kind, Content: content,
		Importance: importance, Tier: TierWorking,
		CreatedAt: now, Touched: now, Touches: 1,
	}
	s.working = append(s.working, rec)
	return rec, true
}

func (s *State) Memories(tier MemoryTier) []MemoryRecord {
	s.memMu.RLock()
	defer s.memMu.RUnlock()
	switch tier {
	case TierWorking:
		return append([]MemoryRecord(nil), s.working...)
	case TierShort:
		return append([]MemoryRecord(nil), s.short...)
	case TierLong:
		return append([]MemoryRecord(nil), s.long...)
	}
	return nil
}

func (s *State) MemoryCounts() (working, short, long int) {
	s.memMu.RLock()
	defer s.memMu.RUnlock()
	return len(s.working), len(s.short), len(s.long)
}
