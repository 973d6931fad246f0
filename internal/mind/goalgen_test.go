package mind

import (
	"context"
	"errors"
	"io"
	"log"
	"reflect"
	"testing"
	"time"

	"voxelmind.ai/internal/oracle"
)

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestGoalGenRanksAndCaps(t *testing.T) {
	s := NewState("a1", "Ada", "")
	s.ApplyObservation(testObs(1, [3]float64{0, 64, 0}, 20))

	provider := oracle.NewScripted(
		"GOAL: exploration: scout the ridge to the north\n" +
			"GOAL: resource: collect 5 logs\n" +
			"GOAL: survival: keep clear of the zombie\n" +
			"GOAL: social: greet the nearby agent",
	)
	g := NewGoalGen(DefaultGoalGenPolicy(), provider, "", discardLogger())

	if _, err := g.OnTick(context.Background(), s); err != nil {
		t.Fatalf("OnTick: %v", err)
	}

	goals := s.Goals()
	if len(goals) != GoalStackCap {
		t.Fatalf("stack size = %d, want %d", len(goals), GoalStackCap)
	}
	if goals[0].Kind != GoalSurvival || goals[0].Priority != 0.9 {
		t.Fatalf("head = %+v, want survival at 0.9", goals[0])
	}
	if goals[1].Kind != GoalResource || goals[1].TargetItem != "logs" || goals[1].TargetCount != 5 {
		t.Fatalf("resource goal = %+v, want logs x5 target", goals[1])
	}
	if goals[2].Kind != GoalSocial {
		t.Fatalf("tail = %+v, want social (exploration dropped)", goals[2])
	}
}

func TestGoalGenSurvivalUrgency(t *testing.T) {
	s := NewState("a1", "Ada", "")
	s.ApplyObservation(testObs(1, [3]float64{0, 64, 0}, 5))

	provider := oracle.NewScripted("GOAL: survival: flee and find food")
	g := NewGoalGen(DefaultGoalGenPolicy(), provider, "", discardLogger())
	if _, err := g.OnTick(context.Background(), s); err != nil {
		t.Fatalf("OnTick: %v", err)
	}
	if goals := s.Goals(); len(goals) != 1 || goals[0].Priority != 1.0 {
		t.Fatalf("goals = %+v, want single survival goal at 1.0", goals)
	}
}

func TestGoalGenFailureLeavesStackUnchanged(t *testing.T) {
	s := NewState("a1", "Ada", "")
	s.ApplyObservation(testObs(1, [3]float64{0, 64, 0}, 20))

	provider := oracle.NewScripted("GOAL: resource: collect 5 logs")
	g := NewGoalGen(DefaultGoalGenPolicy(), provider, "", discardLogger())
	if _, err := g.OnTick(context.Background(), s); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}
	before := s.Goals()
	if len(before) == 0 {
		t.Fatal("seed cycle produced no goals")
	}

	provider.FailWith(errors.New("oracle down"))
	d, err := g.OnTick(context.Background(), s)
	if err != nil {
		t.Fatalf("failing cycle returned error: %v", err)
	}
	if d.Note != "oracle failure, stack unchanged" {
		t.Fatalf("note = %q", d.Note)
	}
	if after := s.Goals(); !reflect.DeepEqual(before, after) {
		t.Fatalf("stack changed on oracle failure:\nbefore %+v\nafter  %+v", before, after)
	}
	if got := s.Counters().OracleFailures.Load(); got != 1 {
		t.Fatalf("oracle failure counter = %d, want 1", got)
	}
}

func TestGoalGenTimeoutLeavesStackUnchanged(t *testing.T) {
	s := NewState("a1", "Ada", "")
	s.ApplyObservation(testObs(1, [3]float64{0, 64, 0}, 20))

	provider := oracle.NewScripted("GOAL: resource: collect 5 logs")
	g := NewGoalGen(DefaultGoalGenPolicy(), provider, "", discardLogger())
	if _, err := g.OnTick(context.Background(), s); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}
	before := s.Goals()

	provider.SetDelay(200 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.OnTick(ctx, s); err != nil {
		t.Fatalf("timed-out cycle returned error: %v", err)
	}
	if after := s.Goals(); !reflect.DeepEqual(before, after) {
		t.Fatalf("stack changed on timeout:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestGoalGenAbandonsFailingGoal(t *testing.T) {
	s := NewState("a1", "Ada", "")
	s.ApplyObservation(testObs(1, [3]float64{0, 64, 0}, 20))

	provider := oracle.NewScripted(
		"GOAL: resource: collect 5 logs\nGOAL: exploration: scout the cave",
		"no new proposals",
	)
	pol := DefaultGoalGenPolicy()
	g := NewGoalGen(pol, provider, "", discardLogger())
	if _, err := g.OnTick(context.Background(), s); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}
	head := s.Goals()[0]

	for i := 0; i < pol.AbandonStreak; i++ {
		if err := s.SetExpectation(&Expectation{ActionID: "x"}); err != nil {
			t.Fatalf("SetExpectation: %v", err)
		}
		s.ResolveExpectation(ExpectMismatched, "miss")
	}

	if _, err := g.OnTick(context.Background(), s); err != nil {
		t.Fatalf("abandon cycle: %v", err)
	}
	for _, goal := range s.Goals() {
		if goal.ID == head.ID {
			t.Fatalf("failing head goal %q still on stack", head.Text)
		}
	}
}
