package bridge

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"voxelmind.ai/internal/mind"
)

type Policy struct {
	Interval    time.Duration
	CallTimeout time.Duration

	// DefaultSteps is the movement impulse count when a decision leaves
	// Steps at zero.
	DefaultSteps  int
	StepDistance  float64
	TurnTolerance float64 // degrees
	MaxTurnSteps  int

	Recovery RecoveryPolicy
}

func DefaultPolicy() Policy {
	return Policy{
		Interval:      time.Second,
		CallTimeout:   30 * time.Second,
		DefaultSteps:  3,
		StepDistance:  1.0,
		TurnTolerance: 5,
		MaxTurnSteps:  5,
		Recovery:      DefaultRecoveryPolicy(),
	}
}

// Bridge runs the environment side of one agent. Each tick it first
// evaluates the pre-emption state machine (bounds, stuck, death), then
// either dispatches the freshest controller decision or just pulls the next
// observation. All state writes funnel through the repair pipeline.
type Bridge struct {
	pol       Policy
	env       Environment
	sessionID string
	role      string
	decisions <-chan mind.Decision
	logger    *log.Logger
	onEvent   func(kind, detail string)

	conn        ConnState
	handle      Handle
	repair      *Repairer
	tracker     *recoveryTracker
	recovery    RecoveryReason
	recoverFrom [3]float64
	recoverTick int
	rejoinsLeft int
	envTick     uint64
}

func New(pol Policy, env Environment, sessionID, role string, decisions <-chan mind.Decision, logger *log.Logger) *Bridge {
	return &Bridge{
		pol:         pol,
		env:         env,
		sessionID:   sessionID,
		role:        role,
		decisions:   decisions,
		logger:      logger,
		conn:        ConnDisconnected,
		repair:      NewRepairer([3]float64{0, 64, 0}),
		tracker:     newRecoveryTracker(pol.Recovery.StuckWindow, pol.Recovery.StuckEpsilon),
		rejoinsLeft: pol.Recovery.RejoinBudget,
	}
}

// OnEvent registers a sink for connection and recovery events. Set before
// the runtime starts.
func (b *Bridge) OnEvent(fn func(kind, detail string)) { b.onEvent = fn }

func (b *Bridge) Name() string               { return "bridge" }
func (b *Bridge) Interval() time.Duration    { return b.pol.Interval }
func (b *Bridge) CallTimeout() time.Duration { return b.pol.CallTimeout }

func (b *Bridge) OnTick(ctx context.Context, s *mind.State) (mind.Delta, error) {
	if term, _ := s.Terminated(); term {
		return mind.Delta{}, mind.ErrTerminated
	}
	switch b.conn {
	case ConnDisconnected, ConnConnecting:
		return b.tickConnect(ctx, s)
	case ConnDead, ConnRejoining:
		return b.tickRejoin(ctx, s)
	case ConnTerminated:
		return mind.Delta{}, mind.ErrTerminated
	}
	return b.tickLive(ctx, s)
}

func (b *Bridge) tickConnect(ctx context.Context, s *mind.State) (mind.Delta, error) {
	b.setConn(s, ConnConnecting)
	h, err := b.env.Connect(ctx, b.sessionID, b.role)
	if err != nil {
		b.setConn(s, ConnDisconnected)
		b.logger.Printf("agent=%s bridge connect failed: %v", s.AgentID(), err)
		return mind.Delta{Note: "connect failed"}, nil
	}
	b.attach(s, h)
	b.event("connected", h.AgentID)
	return b.observe(ctx, s)
}

func (b *Bridge) tickRejoin(ctx context.Context, s *mind.State) (mind.Delta, error) {
	if b.rejoinsLeft <= 0 {
		return b.terminate(s, "rejoin budget exhausted")
	}
	b.rejoinsLeft--
	b.setConn(s, ConnRejoining)
	s.Counters().Rejoins.Add(1)

	// Same session and role: the agent keeps its identity in the still
	// running multi-agent world.
	h, err := b.env.Connect(ctx, b.sessionID, b.role)
	if err != nil {
		b.event("rejoin_failed", err.Error())
		b.logger.Printf("agent=%s rejoin failed: %v", s.AgentID(), err)
		if b.rejoinsLeft <= 0 {
			return b.terminate(s, "rejoin failed: "+err.Error())
		}
		b.setConn(s, ConnDead)
		return mind.Delta{Note: "rejoin failed"}, nil
	}
	b.attach(s, h)
	b.rejoinsLeft = b.pol.Recovery.RejoinBudget
	b.event("rejoined", h.AgentID)
	return b.observe(ctx, s)
}

func (b *Bridge) attach(s *mind.State, h Handle) {
	b.handle = h
	if h.BoundaryRadius > 0 {
		b.pol.Recovery.BoundaryRadius = h.BoundaryRadius
	}
	spawn := h.Spawn
	if spawn == ([3]float64{}) {
		spawn = [3]float64{0, 64, 0}
	}
	b.repair = NewRepairer(spawn)
	b.tracker.reset()
	b.recovery = ""
	b.setConn(s, ConnActive)
}

func (b *Bridge) tickLive(ctx context.Context, s *mind.State) (mind.Delta, error) {
	if b.conn == ConnActive {
		pos := s.Position()
		switch {
		case s.Alive() && outOfBounds(pos, b.pol.Recovery.BoundaryRadius):
			b.enterRecovery(s, RecoverBounds, pos)
		case s.Alive() && (belowFloor(pos, b.pol.Recovery.MinY) || b.tracker.stuck()):
			b.enterRecovery(s, RecoverStuck, pos)
		}
	}
	if b.conn == ConnRecovering {
		return b.tickRecover(ctx, s)
	}

	// A pending expectation defers new decisions; they wait in the
	// latest-wins mailbox until action awareness resolves it.
	if s.Expectation() != nil {
		return b.observe(ctx, s)
	}

	select {
	case dec := <-b.decisions:
		return b.dispatch(ctx, s, dec)
	default:
		return b.observe(ctx, s)
	}
}

// dispatch expands one decision, stores its expectation, and executes it.
// A projected boundary crossing pre-empts the raw command with a
// return-to-center recovery instead.
func (b *Bridge) dispatch(ctx context.Context, s *mind.State, dec mind.Decision) (mind.Delta, error) {
	a := resolveSteps(dec.Action, b.pol.DefaultSteps)
	snap := s.Snapshot()
	now := time.Now()

	commands := expandCommands(a)
	ticksOut := len(commands)
	if a.Kind == mind.ActTurnTo {
		ticksOut = b.pol.MaxTurnSteps
	}
	deadline := now.Add(b.pol.Interval * time.Duration(ticksOut+1))
	exp := mind.PredictEffect(a, snap, b.pol.StepDistance, now, b.envTick, deadline)
	exp.CompleteTick = b.envTick + uint64(ticksOut)

	if exp.PredictPos != nil && outOfBounds(*exp.PredictPos, b.pol.Recovery.BoundaryRadius) {
		b.event("preempt_bounds", a.String())
		b.enterRecovery(s, RecoverBounds, snap.Pos)
		return b.tickRecover(ctx, s)
	}

	if err := s.SetExpectation(exp); err != nil {
		// Rejected, not overwritten: the pending expectation stands and
		// this decision is dropped.
		b.logger.Printf("agent=%s drop decision %s: %v", s.AgentID(), a.String(), err)
		return mind.Delta{Note: "decision rejected, expectation pending"}, nil
	}

	var res StepResult
	var err error
	if a.Kind == mind.ActTurnTo {
		res, err = b.turnLoop(ctx, s, a.Yaw)
	} else {
		res, err = b.env.Step(ctx, b.handle, commands)
	}
	if err != nil {
		b.disconnect(s, err)
		return mind.Delta{Note: "step failed"}, nil
	}
	note := b.applyResult(s, res, a.Movement())
	d := mind.Delta{Events: 1, Note: "dispatched " + a.String()}
	if note != "" {
		d.Note = note
	}
	return d, nil
}

// turnLoop closes the loop on turn_to: read yaw, issue a proportional turn,
// re-observe, up to MaxTurnSteps times.
func (b *Bridge) turnLoop(ctx context.Context, s *mind.State, target float64) (StepResult, error) {
	var last StepResult
	for i := 0; i < b.pol.MaxTurnSteps; i++ {
		cur := s.Snapshot().Yaw
		errDeg := mind.YawDelta(cur, target)
		if math.Abs(errDeg) <= b.pol.TurnTolerance {
			break
		}
		res, err := b.env.Step(ctx, b.handle, []string{fmt.Sprintf("turn %.2f", turnRate(errDeg))})
		if err != nil {
			return last, err
		}
		last = res
		b.applyResult(s, res, false)
	}
	return last, nil
}

func (b *Bridge) observe(ctx context.Context, s *mind.State) (mind.Delta, error) {
	res, err := b.env.Step(ctx, b.handle, nil)
	if err != nil {
		b.disconnect(s, err)
		return mind.Delta{Note: "observe failed"}, nil
	}
	if note := b.applyResult(s, res, false); note != "" {
		return mind.Delta{Events: 1, Note: note}, nil
	}
	return mind.Delta{}, nil
}

// applyResult repairs and applies a frame, advances the motion tracker and
// runs the death transition. Returns a note for noteworthy transitions.
func (b *Bridge) applyResult(s *mind.State, res StepResult, moved bool) string {
	obs, substituted := b.repair.Repair(res.Obs, time.Now())
	if res.Tick > b.envTick {
		b.envTick = res.Tick
	}
	if obs.Tick > b.envTick {
		b.envTick = obs.Tick
	}
	if substituted {
		s.Counters().ObsRepaired.Add(1)
	}

	r := s.ApplyObservation(obs)
	b.tracker.observe(s.Position(), moved)

	switch {
	case r.Died:
		s.Counters().Deaths.Add(1)
		s.DropExpectation()
		b.setConn(s, ConnDead)
		b.event("death", fmt.Sprintf("tick=%d", obs.Tick))
		return "agent died"
	case res.Done:
		b.event("session_done", "")
		s.Terminate("environment closed the session")
		b.setConn(s, ConnTerminated)
		return "session done"
	}
	return ""
}

func (b *Bridge) tickRecover(ctx context.Context, s *mind.State) (mind.Delta, error) {
	pos := s.Position()
	if b.recovered(pos) {
		b.recovery = ""
		b.tracker.reset()
		b.setConn(s, ConnActive)
		b.event("recovered", fmt.Sprintf("pos=(%.1f,%.1f,%.1f)", pos[0], pos[1], pos[2]))
		return mind.Delta{Events: 1, Note: "recovered"}, nil
	}

	b.recoverTick++
	if b.recoverTick > 4*b.pol.Recovery.StuckWindow {
		// Recovery is not working; ask the environment to reset us.
		if err := b.env.Reset(ctx, b.handle); err != nil {
			b.disconnect(s, err)
			return mind.Delta{Note: "recovery reset failed"}, nil
		}
		b.recoverTick = 0
		b.event("recovery_reset", string(b.recovery))
		return b.observe(ctx, s)
	}

	var commands []string
	switch b.recovery {
	case RecoverBounds:
		want := yawToward(pos, [3]float64{0, pos[1], 0})
		cur := s.Snapshot().Yaw
		if errDeg := mind.YawDelta(cur, want); math.Abs(errDeg) > b.pol.TurnTolerance {
			commands = []string{fmt.Sprintf("turn %.2f", turnRate(errDeg))}
		} else {
			commands = []string{"move 1", "move 1", "move 1"}
		}
	default:
		commands = []string{"jump 1", "turn 0.50", "move 1"}
	}

	res, err := b.env.Step(ctx, b.handle, commands)
	if err != nil {
		b.disconnect(s, err)
		return mind.Delta{Note: "recovery step failed"}, nil
	}
	b.applyResult(s, res, true)
	return mind.Delta{Events: 1, Note: "recovery " + string(b.recovery)}, nil
}

func (b *Bridge) recovered(pos [3]float64) bool {
	switch b.recovery {
	case RecoverBounds:
		return distFromCenter(pos) <= b.pol.Recovery.BoundaryRadius*b.pol.Recovery.ReturnFraction
	case RecoverStuck:
		return !belowFloor(pos, b.pol.Recovery.MinY) &&
			horizDist2(pos, b.recoverFrom) > b.pol.Recovery.StuckEpsilon
	}
	return true
}

func (b *Bridge) enterRecovery(s *mind.State, reason RecoveryReason, from [3]float64) {
	b.recovery = reason
	b.recoverFrom = from
	b.recoverTick = 0
	s.Counters().Preemptions.Add(1)
	b.setConn(s, ConnRecovering)
	b.event("recovery_start", string(reason))
}

// Detach releases the environment attachment. Call only after the runtime
// has stopped; a terminal connection state is kept so a later start cannot
// resurrect a terminated agent.
func (b *Bridge) Detach(s *mind.State) error {
	switch b.conn {
	case ConnDisconnected, ConnConnecting:
		return nil
	}
	err := b.env.Close(b.handle)
	if b.conn != ConnTerminated {
		b.setConn(s, ConnDisconnected)
	}
	return err
}

func (b *Bridge) terminate(s *mind.State, reason string) (mind.Delta, error) {
	s.Terminate(reason)
	b.setConn(s, ConnTerminated)
	b.event("terminated", reason)
	return mind.Delta{Note: "terminated"}, mind.ErrTerminated
}

func (b *Bridge) disconnect(s *mind.State, err error) {
	b.logger.Printf("agent=%s bridge transport error: %v", s.AgentID(), err)
	b.event("disconnected", err.Error())
	b.setConn(s, ConnDisconnected)
}

func (b *Bridge) setConn(s *mind.State, c ConnState) {
	b.conn = c
	s.SetConnStatus(string(c))
}

func (b *Bridge) event(kind, detail string) {
	if b.onEvent != nil {
		b.onEvent(kind, detail)
	}
}
