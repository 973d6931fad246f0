package mind

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestPredictEffectVectors(t *testing.T) {
	snap := Snapshot{Pos: [3]float64{0, 64, 0}, Yaw: 0}
	now := time.Now()

	e := PredictEffect(Action{Kind: ActMoveForward, Steps: 2}, snap, 1.0, now, 1, now.Add(time.Second))
	if e.PredictPos == nil {
		t.Fatal("move_forward has no position prediction")
	}
	if got := *e.PredictPos; math.Abs(got[0]) > 1e-9 || math.Abs(got[2]-2) > 1e-9 {
		t.Fatalf("yaw 0 forward x2 = %v, want (0, 64, 2)", got)
	}

	snap.Yaw = 90
	e = PredictEffect(Action{Kind: ActMoveForward, Steps: 1}, snap, 1.0, now, 1, now.Add(time.Second))
	if got := *e.PredictPos; math.Abs(got[0]+1) > 1e-9 || math.Abs(got[2]) > 1e-9 {
		t.Fatalf("yaw 90 forward = %v, want (-1, 64, 0)", got)
	}

	snap.Yaw = 0
	e = PredictEffect(Action{Kind: ActStrafeRight, Steps: 1}, snap, 1.0, now, 1, now.Add(time.Second))
	if got := *e.PredictPos; math.Abs(got[0]+1) > 1e-9 || math.Abs(got[2]) > 1e-9 {
		t.Fatalf("yaw 0 strafe right = %v, want (-1, 64, 0)", got)
	}

	e = PredictEffect(Action{Kind: ActTurnTo, Yaw: 180}, snap, 1.0, now, 1, now.Add(time.Second))
	if e.PredictYaw == nil || *e.PredictYaw != 180 {
		t.Fatalf("turn_to prediction = %v, want 180", e.PredictYaw)
	}

	e = PredictEffect(Action{Kind: ActCraft, Item: "planks"}, snap, 1.0, now, 1, now.Add(time.Second))
	if e.PredictInv["planks"] != 1 {
		t.Fatalf("craft prediction = %v, want planks +1", e.PredictInv)
	}

	e = PredictEffect(Wait(), snap, 1.0, now, 1, now.Add(time.Second))
	if e.PredictPos != nil || e.PredictYaw != nil || len(e.PredictInv) != 0 {
		t.Fatalf("wait should predict nothing: %+v", e)
	}
}

func TestActionAwarenessConfirms(t *testing.T) {
	s := NewState("a1", "Ada", "")
	m := NewActionAwareness(DefaultActionPolicy())

	s.ApplyObservation(testObs(1, [3]float64{0, 64, 0}, 20))
	snap := s.Snapshot()
	now := time.Now()
	e := PredictEffect(Action{Kind: ActMoveForward, Steps: 1}, snap, 1.0, now, 1, now.Add(2*time.Second))
	if err := s.SetExpectation(e); err != nil {
		t.Fatalf("SetExpectation: %v", err)
	}

	s.ApplyObservation(testObs(2, [3]float64{0, 64, 1}, 20))
	d, err := m.OnTick(context.Background(), s)
	if err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if d.Events != 1 {
		t.Fatalf("delta = %+v, want one event", d)
	}
	if s.Expectation() != nil {
		t.Fatal("expectation not cleared")
	}
	if got := s.Counters().ExpectConfirmed.Load(); got != 1 {
		t.Fatalf("confirmed counter = %d, want 1", got)
	}
	if got := s.FailStreak(); got != 0 {
		t.Fatalf("streak = %d, want 0", got)
	}
}

func TestActionAwarenessMismatchRecordsFailure(t *testing.T) {
	s := NewState("a1", "Ada", "")
	m := NewActionAwareness(DefaultActionPolicy())

	s.ApplyObservation(testObs(1, [3]float64{0, 64, 0}, 20))
	now := time.Now()
	e := PredictEffect(Action{Kind: ActMoveForward, Steps: 1}, s.Snapshot(), 1.0, now, 1, now.Add(2*time.Second))
	if err := s.SetExpectation(e); err != nil {
		t.Fatalf("SetExpectation: %v", err)
	}

	// The agent did not move at all.
	s.ApplyObservation(testObs(2, [3]float64{0, 64, 0}, 20))
	if _, err := m.OnTick(context.Background(), s); err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if got := s.FailStreak(); got != 1 {
		t.Fatalf("streak = %d, want 1", got)
	}
	found := false
	for _, rec := range s.Memories(TierWorking) {
		if rec.Kind == "action_failure" {
			found = true
		}
	}
	if !found {
		t.Fatal("no action_failure memory recorded")
	}
}

func TestActionAwarenessTimeoutWithoutObservation(t *testing.T) {
	s := NewState("a1", "Ada", "")
	m := NewActionAwareness(DefaultActionPolicy())

	now := time.Now()
	e := PredictEffect(Action{Kind: ActBreak}, Snapshot{Pos: [3]float64{0, 64, 0}}, 1.0, now, 1, now.Add(-time.Millisecond))
	if err := s.SetExpectation(e); err != nil {
		t.Fatalf("SetExpectation: %v", err)
	}

	d, err := m.OnTick(context.Background(), s)
	if err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if d.Events != 1 {
		t.Fatalf("delta = %+v, want timeout event", d)
	}
	if s.Expectation() != nil {
		t.Fatal("expectation not cleared on timeout")
	}
	if got := s.Counters().ExpectTimeout.Load(); got != 1 {
		t.Fatalf("timeout counter = %d, want 1", got)
	}
	if got := s.FailStreak(); got != 1 {
		t.Fatalf("streak = %d, want 1", got)
	}
}
