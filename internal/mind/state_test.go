package mind

import (
	"errors"
	"math"
	"testing"
	"time"
)

func testObs(tick uint64, pos [3]float64, health float64) *Observation {
	return &Observation{
		Tick:      tick,
		At:        time.Now(),
		Pos:       pos,
		Health:    health,
		Food:      20,
		Alive:     health > 0,
		Inventory: map[string]int{},
	}
}

func TestApplyObservationGroundTruth(t *testing.T) {
	s := NewState("a1", "Ada", "miner")

	o := testObs(1, [3]float64{1, 64, 2}, 18)
	o.Inventory["log"] = 3
	if r := s.ApplyObservation(o); !r.First || !r.Revived {
		t.Fatalf("first apply = %+v, want First and Revived", r)
	}

	snap := s.Snapshot()
	if snap.Pos != [3]float64{1, 64, 2} || snap.Health != 18 || !snap.Alive {
		t.Fatalf("vitals not applied: %+v", snap)
	}
	if snap.Inventory["log"] != 3 {
		t.Fatalf("inventory not applied: %v", snap.Inventory)
	}

	// A stale substitute moves the frame pointer but not the beliefs.
	stale := o.StaleCopy(2, time.Now(), 1)
	stale.Pos = [3]float64{99, 99, 99}
	s.ApplyObservation(stale)
	if got := s.Position(); got != [3]float64{1, 64, 2} {
		t.Fatalf("stale frame overwrote position: %v", got)
	}
	if cur := s.LatestObservation(); cur.Tick != 2 || !cur.Stale {
		t.Fatalf("latest frame not the stale one: %+v", cur)
	}
	if lg := s.LastGoodObservation(); lg.Tick != 1 {
		t.Fatalf("last good tick = %d, want 1", lg.Tick)
	}
}

func TestDeathClearsGoals(t *testing.T) {
	s := NewState("a1", "Ada", "")
	s.ApplyObservation(testObs(1, [3]float64{0, 64, 0}, 20))

	if err := s.MergeGoals([]Goal{{ID: "g1", Kind: GoalResource, Text: "collect 5 logs", Priority: 0.7}}); err != nil {
		t.Fatalf("MergeGoals: %v", err)
	}
	if g := s.CurrentGoal(); g == nil || g.ID != "g1" {
		t.Fatalf("goal not set: %+v", g)
	}

	r := s.ApplyObservation(testObs(2, [3]float64{0, 64, 0}, 0))
	if !r.Died {
		t.Fatalf("apply = %+v, want Died", r)
	}
	if got := s.Goals(); len(got) != 0 {
		t.Fatalf("goals after death = %v, want empty", got)
	}
	if err := s.MergeGoals([]Goal{{ID: "g2"}}); !errors.Is(err, ErrNotAlive) {
		t.Fatalf("MergeGoals while dead err = %v, want ErrNotAlive", err)
	}
}

func TestExpectationSingleFlight(t *testing.T) {
	s := NewState("a1", "Ada", "")

	e1 := &Expectation{ActionID: "x1", Action: Action{Kind: ActMoveForward}, Deadline: time.Now().Add(time.Second)}
	if err := s.SetExpectation(e1); err != nil {
		t.Fatalf("first SetExpectation: %v", err)
	}
	e2 := &Expectation{ActionID: "x2", Action: Action{Kind: ActJump}}
	if err := s.SetExpectation(e2); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("second SetExpectation err = %v, want ErrStateConflict", err)
	}

	if got := s.ResolveExpectation(ExpectConfirmed, "ok"); got == nil || got.ActionID != "x1" {
		t.Fatalf("resolved = %+v, want x1", got)
	}
	if err := s.SetExpectation(e2); err != nil {
		t.Fatalf("SetExpectation after resolve: %v", err)
	}
}

func TestResolveExpectationScoring(t *testing.T) {
	s := NewState("a1", "Ada", "")

	set := func() {
		if err := s.SetExpectation(&Expectation{ActionID: "x"}); err != nil {
			t.Fatalf("SetExpectation: %v", err)
		}
	}

	set()
	s.ResolveExpectation(ExpectMismatched, "miss")
	set()
	s.ResolveExpectation(ExpectMismatched, "miss")
	if got := s.FailStreak(); got != 2 {
		t.Fatalf("streak = %d, want 2", got)
	}
	if got := s.SuccessRate(); math.Abs(got-0.81) > 1e-9 {
		t.Fatalf("rate = %v, want 0.81", got)
	}

	set()
	s.ResolveExpectation(ExpectConfirmed, "ok")
	if got := s.FailStreak(); got != 0 {
		t.Fatalf("streak after confirm = %d, want 0", got)
	}
	if got := s.SuccessRate(); math.Abs(got-0.829) > 1e-9 {
		t.Fatalf("rate after confirm = %v, want 0.829", got)
	}
}

func TestTouchOrAddMemoryDedupes(t *testing.T) {
	s := NewState("a1", "Ada", "")

	if _, created := s.TouchOrAddMemory("threat_spotted", "zombie at 5", 0.2); !created {
		t.Fatal("first record should be created")
	}
	rec, created := s.TouchOrAddMemory("threat_spotted", "zombie at 5", 0.4)
	if created {
		t.Fatal("identical record duplicated")
	}
	if rec.Touches != 2 || rec.Importance != 0.4 {
		t.Fatalf("touched record = %+v, want Touches 2 Importance 0.4", rec)
	}
	if w, _, _ := s.MemoryCounts(); w != 1 {
		t.Fatalf("working count = %d, want 1", w)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewState("a1", "Ada", "")
	o := testObs(1, [3]float64{0, 64, 0}, 20)
	o.Inventory["stone"] = 2
	s.ApplyObservation(o)
	s.TouchPeer("p1", "Bo", 0.1, "chatting")

	snap := s.Snapshot()
	snap.Inventory["stone"] = 99
	snap.Peers[0].Affinity = -1

	if got := s.Snapshot(); got.Inventory["stone"] != 2 {
		t.Fatalf("inventory leaked through snapshot: %v", got.Inventory)
	}
	if r, _ := s.Peer("p1"); r.Affinity != 0.1 {
		t.Fatalf("peer leaked through snapshot: %+v", r)
	}
}
