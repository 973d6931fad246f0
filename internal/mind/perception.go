package mind

import (
	"context"
	"fmt"
	"time"
)

type PerceptionPolicy struct {
	Interval        time.Duration
	NearDeathHealth float64
	ThreatDist      float64
	OpportunityDist float64
	LowFood         float64
}

func DefaultPerceptionPolicy() PerceptionPolicy {
	return PerceptionPolicy{
		Interval:        500 * time.Millisecond,
		NearDeathHealth: 4,
		ThreatDist:      10,
		OpportunityDist: 8,
		LowFood:         4,
	}
}

// Perception distills raw observations into salient memory records. It is
// idempotent over frame content: a frame whose content digest matches the
// last processed one produces nothing, so stale substitutes are free.
type Perception struct {
	pol  PerceptionPolicy
	prev *Observation
	last string
}

func NewPerception(pol PerceptionPolicy) *Perception {
	return &Perception{pol: pol}
}

func (p *Perception) Name() string            { return "perception" }
func (p *Perception) Interval() time.Duration { return p.pol.Interval }

func (p *Perception) OnTick(_ context.Context, s *State) (Delta, error) {
	cur := s.LatestObservation()
	if cur == nil {
		return Delta{}, nil
	}
	if cur.Digest() == p.last {
		return Delta{}, nil
	}

	goal := s.CurrentGoal()
	events := salientChanges(p.prev, cur, p.pol)
	for _, ev := range events {
		s.TouchOrAddMemory(ev.kind, ev.content, ImportanceFor(ev.kind, ev.content, goal))
	}
	p.prev = cur
	p.last = cur.Digest()

	if len(events) == 0 {
		return Delta{}, nil
	}
	s.Counters().SalientEvents.Add(uint64(len(events)))
	return Delta{Events: len(events), Note: events[0].kind}, nil
}

type salientEvent struct {
	kind    string
	content string
}

func salientChanges(prev, cur *Observation, pol PerceptionPolicy) []salientEvent {
	var out []salientEvent
	add := func(kind, format string, args ...any) {
		out = append(out, salientEvent{kind: kind, content: fmt.Sprintf(format, args...)})
	}

	if prev != nil {
		if drop := prev.Health - cur.Health; drop > 0 {
			actor := damageActor(cur.Events)
			if actor != "" {
				add("damage_taken", "took %.1f damage from %s", drop, actor)
			} else {
				add("damage_taken", "took %.1f damage", drop)
			}
		}
		if cur.Health > 0 && cur.Health <= pol.NearDeathHealth && prev.Health > pol.NearDeathHealth {
			add("near_death", "health critically low at %.1f", cur.Health)
		}
		if cur.Food <= pol.LowFood && prev.Food > pol.LowFood {
			add("low_food", "food down to %.1f", cur.Food)
		}
		for item, n := range cur.Inventory {
			if gain := n - prev.Inventory[item]; gain > 0 {
				add("item_acquired", "acquired %d %s (now %d)", gain, item, n)
			}
		}
		for item, n := range prev.Inventory {
			if loss := n - cur.Inventory[item]; loss > 0 {
				add("item_lost", "lost %d %s", loss, item)
			}
		}
	}

	known := map[string]bool{}
	if prev != nil {
		for _, e := range prev.Entities {
			known[e.ID] = true
		}
	}
	for _, e := range cur.Entities {
		if known[e.ID] {
			continue
		}
		d := dist3(cur.Pos, e.Pos)
		switch e.Kind {
		case EntityAgent:
			name := e.Name
			if name == "" {
				name = e.ID
			}
			add("agent_met", "met agent %s at %.1f blocks", name, d)
		case EntityHostile:
			if d <= pol.ThreatDist {
				add("threat_spotted", "%s spotted at %.1f blocks", e.Raw, d)
			}
		case EntityItem:
			if d <= pol.OpportunityDist && e.Item != "" {
				add("opportunity_spotted", "%s lying on the ground at %.1f blocks", e.Item, d)
			}
		}
	}

	for _, ev := range cur.Events {
		if ev.Kind == "chat" && ev.Actor != "" {
			add("chat_heard", "%s said: %s", ev.Actor, ev.Text)
		}
	}
	return out
}

// damageActor attributes self damage. An empty Target means the damage
// event is about this agent; targeted events concern peers.
func damageActor(events []ObsEvent) string {
	for _, ev := range events {
		if ev.Kind == "damage" && ev.Target == "" && ev.Actor != "" {
			return ev.Actor
		}
	}
	return ""
}
