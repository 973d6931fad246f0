package bridge

import (
	"reflect"
	"testing"

	"voxelmind.ai/internal/mind"
)

func TestExpandCommands(t *testing.T) {
	cases := []struct {
		action mind.Action
		want   []string
	}{
		{mind.Action{Kind: mind.ActMoveForward, Steps: 3}, []string{"move 1", "move 1", "move 1"}},
		{mind.Action{Kind: mind.ActMoveBack, Steps: 1}, []string{"move -1"}},
		{mind.Action{Kind: mind.ActStrafeLeft, Steps: 2}, []string{"strafe -1", "strafe -1"}},
		{mind.Action{Kind: mind.ActJump}, []string{"jump 1"}},
		{mind.Action{Kind: mind.ActPlace}, []string{"look 0", "use 1"}},
		{mind.Action{Kind: mind.ActBreak}, []string{"look 0", "attack 1"}},
		{mind.Action{Kind: mind.ActSelectSlot, Slot: 2}, []string{"hotbar.3 1"}},
		{mind.Action{Kind: mind.ActCraft, Item: "planks"}, []string{"craft planks"}},
		{mind.Action{Kind: mind.ActSay, Text: "hello there"}, []string{"chat hello there"}},
		{mind.Action{Kind: mind.ActTurnTo, Yaw: 90}, nil},
		{mind.Wait(), []string{"move 0"}},
	}
	for _, tc := range cases {
		got := expandCommands(tc.action)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("expand(%s) = %v, want %v", tc.action.String(), got, tc.want)
		}
	}
}

func TestResolveSteps(t *testing.T) {
	a := resolveSteps(mind.Action{Kind: mind.ActMoveForward}, 3)
	if a.Steps != 3 {
		t.Fatalf("default steps = %d, want 3", a.Steps)
	}
	a = resolveSteps(mind.Action{Kind: mind.ActMoveForward, Steps: 7}, 3)
	if a.Steps != 7 {
		t.Fatalf("explicit steps = %d, want 7", a.Steps)
	}
	a = resolveSteps(mind.Action{Kind: mind.ActCraft, Item: "planks"}, 3)
	if a.Steps != 0 {
		t.Fatalf("non-movement steps = %d, want untouched", a.Steps)
	}
}

func TestTurnRateClamps(t *testing.T) {
	cases := []struct {
		err  float64
		want float64
	}{
		{45, 0.5},
		{90, 1},
		{180, 1},
		{-45, -0.5},
		{-250, -1},
	}
	for _, tc := range cases {
		if got := turnRate(tc.err); got != tc.want {
			t.Errorf("turnRate(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestYawToward(t *testing.T) {
	cases := []struct {
		from, to [3]float64
		want     float64
	}{
		{[3]float64{0, 64, 0}, [3]float64{0, 64, 10}, 0},   // +z ahead
		{[3]float64{0, 64, 44}, [3]float64{0, 64, 0}, 180}, // back toward center
		{[3]float64{10, 64, 0}, [3]float64{0, 64, 0}, 90},  // -x is yaw 90
		{[3]float64{0, 64, 0}, [3]float64{10, 64, 0}, 270}, // +x is yaw 270
	}
	for _, tc := range cases {
		if got := yawToward(tc.from, tc.to); got != tc.want {
			t.Errorf("yawToward(%v -> %v) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
