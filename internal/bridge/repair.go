package bridge

import (
	"time"

	"voxelmind.ai/internal/mind"
	"voxelmind.ai/internal/protocol"
)

// Repairer guarantees every bridge tick yields a usable observation. Empty
// or missing frames are replaced by a stale copy of the last good one, or
// by a synthetic spawn-point frame before any good frame exists. Modules
// therefore never see nil, and never two different nulls in a row.
type Repairer struct {
	spawn    [3]float64
	lastGood *mind.Observation
	lastTick uint64
	staleFor int
}

func NewRepairer(spawn [3]float64) *Repairer {
	return &Repairer{spawn: spawn}
}

// Repair translates a raw frame, or substitutes when the frame is nil or
// empty. The second return reports a substitution.
func (r *Repairer) Repair(raw *protocol.ObsMsg, now time.Time) (*mind.Observation, bool) {
	if raw == nil || raw.Empty() {
		tick := r.lastTick + 1
		if raw != nil && raw.Tick > tick {
			tick = raw.Tick
		}
		r.lastTick = tick
		r.staleFor++
		if r.lastGood != nil {
			return r.lastGood.StaleCopy(tick, now, r.staleFor), true
		}
		return r.synthetic(tick, now), true
	}

	obs := translateObs(raw, now)
	r.lastGood = obs
	r.lastTick = obs.Tick
	r.staleFor = 0
	return obs, false
}

// synthetic is the pre-first-frame placeholder. It is marked stale so it
// never overwrites vitals; it only gives modules something to read.
func (r *Repairer) synthetic(tick uint64, now time.Time) *mind.Observation {
	return &mind.Observation{
		Tick:      tick,
		At:        now,
		Pos:       r.spawn,
		Health:    20,
		Food:      20,
		Alive:     true,
		Inventory: map[string]int{},
		Stale:     true,
		StaleFor:  r.staleFor,
		Synthetic: true,
	}
}

// translateObs maps the wire frame into the internal shape. The info side
// channel is authoritative: where it carries a field, it wins over the
// primary self block.
func translateObs(raw *protocol.ObsMsg, now time.Time) *mind.Observation {
	o := &mind.Observation{
		Tick:      raw.Tick,
		At:        now,
		Inventory: map[string]int{},
	}
	if raw.Self != nil {
		o.Pos, o.Yaw, o.Pitch = raw.Self.Pos, raw.Self.Yaw, raw.Self.Pitch
		o.Health, o.Food, o.Alive = raw.Self.HP, raw.Self.Food, raw.Self.Alive
	}
	for _, st := range raw.Inventory {
		if st.Count > 0 {
			o.Inventory[st.Item] += st.Count
		}
	}
	for _, e := range raw.Entities {
		o.Entities = append(o.Entities, mind.Entity{
			ID:    e.ID,
			Kind:  mind.CategorizeEntity(e.Kind),
			Raw:   e.Kind,
			Name:  e.Name,
			Pos:   e.Pos,
			Item:  e.Item,
			Count: e.Count,
		})
	}
	for _, ev := range raw.Events {
		o.Events = append(o.Events, mind.ObsEvent{
			Kind:   ev.Kind,
			Actor:  ev.Actor,
			Target: ev.Target,
			Item:   ev.Item,
			Amount: ev.Amount,
			Text:   ev.Text,
		})
	}

	info, err := protocol.ParseInfo(raw.Info)
	if err != nil {
		return o
	}
	if info.Pos != nil {
		o.Pos = *info.Pos
	}
	if info.Yaw != nil {
		o.Yaw = *info.Yaw
	}
	if info.Pitch != nil {
		o.Pitch = *info.Pitch
	}
	if info.HP != nil {
		o.Health = *info.HP
		o.Alive = *info.HP > 0
	}
	if info.Food != nil {
		o.Food = *info.Food
	}
	if info.Inventory != nil {
		inv := map[string]int{}
		for _, st := range info.Inventory {
			if st.Count > 0 {
				inv[st.Item] += st.Count
			}
		}
		o.Inventory = inv
	}
	return o
}
