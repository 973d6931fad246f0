package mind

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type ActionPolicy struct {
	Interval       time.Duration
	MatchThreshold float64 // below this the outcome is a mismatch
	DefaultScore   float64 // score when the action has no checkable effect
	PosTolerance   float64
	YawTolerance   float64 // degrees
	StepDistance   float64 // blocks covered per movement command tick
}

func DefaultActionPolicy() ActionPolicy {
	return ActionPolicy{
		Interval:       500 * time.Millisecond,
		MatchThreshold: 0.6,
		DefaultScore:   0.7,
		PosTolerance:   0.75,
		YawTolerance:   10,
		StepDistance:   1.0,
	}
}

// PredictEffect builds the expectation for an action about to be
// dispatched. a.Steps must already be resolved to the real command count.
// Actions without an observable effect get no checks and later score
// DefaultScore.
func PredictEffect(a Action, snap Snapshot, stepDist float64, now time.Time, tick uint64, deadline time.Time) *Expectation {
	e := &Expectation{
		ActionID:   uuid.NewString(),
		Action:     a,
		IssuedAt:   now,
		IssuedTick: tick,
		Deadline:   deadline,
		IssuedPos:  snap.Pos,
		IssuedInv:  copyInv(snap.Inventory),
	}
	steps := a.Steps
	if steps <= 0 {
		steps = 1
	}
	if a.Movement() {
		e.CompleteTick = tick + uint64(steps)
	} else {
		e.CompleteTick = tick + 1
	}
	d := stepDist * float64(steps)

	rad := snap.Yaw * math.Pi / 180
	fx, fz := -math.Sin(rad), math.Cos(rad)
	switch a.Kind {
	case ActMoveForward:
		p := [3]float64{snap.Pos[0] + fx*d, snap.Pos[1], snap.Pos[2] + fz*d}
		e.PredictPos = &p
	case ActMoveBack:
		p := [3]float64{snap.Pos[0] - fx*d, snap.Pos[1], snap.Pos[2] - fz*d}
		e.PredictPos = &p
	case ActStrafeRight:
		p := [3]float64{snap.Pos[0] - fz*d, snap.Pos[1], snap.Pos[2] + fx*d}
		e.PredictPos = &p
	case ActStrafeLeft:
		p := [3]float64{snap.Pos[0] + fz*d, snap.Pos[1], snap.Pos[2] - fx*d}
		e.PredictPos = &p
	case ActTurnTo:
		y := a.Yaw
		e.PredictYaw = &y
	case ActCraft:
		e.PredictInv = map[string]int{a.Item: 1}
	}
	return e
}

// ActionAwareness resolves pending expectations against fresher
// observations, or against the clock when no observation arrives by the
// deadline. Ground truth from applied frames already corrected any drifted
// beliefs; this module scores the outcome and keeps the failure bookkeeping.
type ActionAwareness struct {
	pol ActionPolicy
}

func NewActionAwareness(pol ActionPolicy) *ActionAwareness {
	return &ActionAwareness{pol: pol}
}

func (m *ActionAwareness) Name() string            { return "actionaware" }
func (m *ActionAwareness) Interval() time.Duration { return m.pol.Interval }

func (m *ActionAwareness) OnTick(_ context.Context, s *State) (Delta, error) {
	exp := s.Expectation()
	if exp == nil || exp.Status != ExpectPending {
		return Delta{}, nil
	}

	doneBy := exp.CompleteTick
	if doneBy <= exp.IssuedTick {
		doneBy = exp.IssuedTick + 1
	}
	obs := s.LatestObservation()
	if obs != nil && !obs.Stale && obs.Tick >= doneBy {
		score := matchScore(exp, obs, m.pol)
		if score >= m.pol.MatchThreshold {
			s.ResolveExpectation(ExpectConfirmed, fmt.Sprintf("confirmed (score %.2f)", score))
			return Delta{Events: 1, Note: "confirmed " + string(exp.Action.Kind)}, nil
		}
		s.ResolveExpectation(ExpectMismatched, fmt.Sprintf("mismatched (score %.2f)", score))
		content := fmt.Sprintf("%s did not have the expected effect", exp.Action.String())
		s.TouchOrAddMemory("action_failure", content, ImportanceFor("action_failure", content, s.CurrentGoal()))
		return Delta{Events: 1, Note: "mismatched " + string(exp.Action.Kind)}, nil
	}

	// No usable frame: the deadline alone decides.
	if time.Now().After(exp.Deadline) {
		s.ResolveExpectation(ExpectMismatched, "timeout")
		s.Counters().ExpectTimeout.Add(1)
		content := fmt.Sprintf("%s produced no observation before its deadline", exp.Action.String())
		s.TouchOrAddMemory("action_failure", content, ImportanceFor("action_failure", content, s.CurrentGoal()))
		return Delta{Events: 1, Note: "timeout " + string(exp.Action.Kind)}, nil
	}
	return Delta{}, nil
}

func matchScore(e *Expectation, obs *Observation, pol ActionPolicy) float64 {
	var checks []float64

	if e.PredictPos != nil {
		expected := dist3(e.IssuedPos, *e.PredictPos)
		miss := dist3(obs.Pos, *e.PredictPos)
		switch {
		case miss <= pol.PosTolerance:
			checks = append(checks, 1)
		case expected > 0 && dist3(obs.Pos, e.IssuedPos) >= expected/2:
			// Moved a good part of the way; count partial credit.
			checks = append(checks, 0.5)
		default:
			checks = append(checks, 0)
		}
	}
	if e.PredictYaw != nil {
		if math.Abs(YawDelta(obs.Yaw, *e.PredictYaw)) <= pol.YawTolerance {
			checks = append(checks, 1)
		} else {
			checks = append(checks, 0)
		}
	}
	if len(e.PredictInv) > 0 {
		ok := 0
		for item, delta := range e.PredictInv {
			actual := obs.Inventory[item] - e.IssuedInv[item]
			if (delta > 0 && actual >= delta) || (delta < 0 && actual <= delta) {
				ok++
			}
		}
		checks = append(checks, float64(ok)/float64(len(e.PredictInv)))
	}

	if len(checks) == 0 {
		return pol.DefaultScore
	}
	sum := 0.0
	for _, c := range checks {
		sum += c
	}
	return sum / float64(len(checks))
}
