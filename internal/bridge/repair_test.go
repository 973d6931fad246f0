package bridge

import (
	"encoding/json"
	"testing"
	"time"

	"voxelmind.ai/internal/protocol"
)

func fullFrame(tick uint64, pos [3]float64) *protocol.ObsMsg {
	return &protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		AgentID:         "a-1",
		Self:            &protocol.SelfObs{Pos: pos, HP: 20, Food: 20, Alive: true},
		Inventory:       []protocol.ItemStack{{Item: "log", Count: 4}},
		Events:          []protocol.EventObs{{Kind: "pickup", Item: "log"}},
	}
}

func TestRepairSyntheticBeforeFirstFrame(t *testing.T) {
	r := NewRepairer([3]float64{0, 64, 0})
	obs, substituted := r.Repair(nil, time.Now())
	if !substituted {
		t.Fatal("nil frame should be substituted")
	}
	if !obs.Stale || !obs.Synthetic {
		t.Fatalf("obs = %+v, want stale synthetic", obs)
	}
	if obs.Pos != [3]float64{0, 64, 0} {
		t.Fatalf("pos = %v, want spawn", obs.Pos)
	}
	if obs.Tick != 1 {
		t.Fatalf("tick = %d, want 1", obs.Tick)
	}
}

func TestRepairStaleCopyKeepsContentDropsEvents(t *testing.T) {
	r := NewRepairer([3]float64{0, 64, 0})
	now := time.Now()

	good, substituted := r.Repair(fullFrame(5, [3]float64{3, 64, 3}), now)
	if substituted {
		t.Fatal("full frame must not be substituted")
	}
	if good.Inventory["log"] != 4 || len(good.Events) != 1 {
		t.Fatalf("translated frame = %+v", good)
	}

	stale, substituted := r.Repair(nil, now.Add(time.Second))
	if !substituted {
		t.Fatal("empty frame should be substituted")
	}
	if stale.Tick != 6 || stale.StaleFor != 1 {
		t.Fatalf("stale tick/for = %d/%d, want 6/1", stale.Tick, stale.StaleFor)
	}
	if stale.Pos != good.Pos || stale.Inventory["log"] != 4 {
		t.Fatalf("stale copy lost content: %+v", stale)
	}
	if len(stale.Events) != 0 {
		t.Fatal("stale copy must not replay events")
	}

	again, _ := r.Repair(nil, now.Add(2*time.Second))
	if again.Tick != 7 || again.StaleFor != 2 {
		t.Fatalf("second stale tick/for = %d/%d, want 7/2", again.Tick, again.StaleFor)
	}
}

func TestRepairStaleCopyHashesLikeSource(t *testing.T) {
	r := NewRepairer([3]float64{0, 64, 0})
	now := time.Now()

	raw := fullFrame(1, [3]float64{3, 64, 3})
	raw.Events = nil
	good, _ := r.Repair(raw, now)
	stale, _ := r.Repair(nil, now.Add(time.Second))
	if stale.Digest() != good.Digest() {
		t.Fatal("event-free substitute should hash like its source")
	}
}

func TestRepairEmptyFrameKeepsServerTick(t *testing.T) {
	r := NewRepairer([3]float64{0, 64, 0})
	now := time.Now()
	r.Repair(fullFrame(5, [3]float64{0, 64, 0}), now)

	empty := &protocol.ObsMsg{Type: protocol.TypeObs, Tick: 9}
	obs, _ := r.Repair(empty, now)
	if obs.Tick != 9 {
		t.Fatalf("tick = %d, want server tick 9", obs.Tick)
	}
}

func TestRepairInfoChannelWins(t *testing.T) {
	r := NewRepairer([3]float64{0, 64, 0})
	raw := fullFrame(3, [3]float64{1, 64, 1})
	raw.Info = json.RawMessage(`{"XPos":5,"YPos":64,"ZPos":5,"Life":3,"Food":7}`)

	obs, _ := r.Repair(raw, time.Now())
	if obs.Pos != [3]float64{5, 64, 5} {
		t.Fatalf("pos = %v, want info position", obs.Pos)
	}
	if obs.Health != 3 || obs.Food != 7 {
		t.Fatalf("vitals = %.0f/%.0f, want 3/7", obs.Health, obs.Food)
	}
	if !obs.Alive {
		t.Fatal("life 3 should read alive")
	}

	raw = fullFrame(4, [3]float64{1, 64, 1})
	raw.Info = json.RawMessage(`{"Life":0}`)
	obs, _ = r.Repair(raw, time.Now())
	if obs.Alive {
		t.Fatal("life 0 should read dead even when self says alive")
	}
}
