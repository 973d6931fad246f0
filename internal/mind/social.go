package mind

import (
	"context"
	"time"
)

type SocialPolicy struct {
	Interval time.Duration

	CloseDist   float64 // within: strongest proximity bond
	NearbyDist  float64
	DistantDist float64 // beyond: no proximity effect

	CloseDelta   float64
	NearbyDelta  float64
	DistantDelta float64
	ChatDelta    float64
	DamageDelta  float64 // negative: a peer hurting us erodes affinity
	Decay        float64 // per-cycle pull toward zero for unseen peers
}

func DefaultSocialPolicy() SocialPolicy {
	return SocialPolicy{
		Interval:     2 * time.Second,
		CloseDist:    4,
		NearbyDist:   10,
		DistantDist:  24,
		CloseDelta:   0.02,
		NearbyDelta:  0.01,
		DistantDelta: 0.005,
		ChatDelta:    0.02,
		DamageDelta:  -0.05,
		Decay:        0.001,
	}
}

// SocialAwareness maintains the per-peer relationship model from visible
// agents and social events. Frames are deduplicated by content digest so a
// stale substitute never double-counts proximity.
type SocialAwareness struct {
	pol  SocialPolicy
	last string
}

func NewSocialAwareness(pol SocialPolicy) *SocialAwareness {
	return &SocialAwareness{pol: pol}
}

func (m *SocialAwareness) Name() string            { return "social" }
func (m *SocialAwareness) Interval() time.Duration { return m.pol.Interval }

func (m *SocialAwareness) OnTick(_ context.Context, s *State) (Delta, error) {
	obs := s.LatestObservation()
	if obs == nil || obs.Stale {
		return Delta{}, nil
	}
	if obs.Digest() == m.last {
		return Delta{}, nil
	}
	m.last = obs.Digest()

	touched := 0
	seen := map[string]bool{}
	for _, e := range obs.Entities {
		if e.Kind != EntityAgent {
			continue
		}
		seen[e.ID] = true
		d := dist3(obs.Pos, e.Pos)
		var delta float64
		switch {
		case d <= m.pol.CloseDist:
			delta = m.pol.CloseDelta
		case d <= m.pol.NearbyDist:
			delta = m.pol.NearbyDelta
		case d <= m.pol.DistantDist:
			delta = m.pol.DistantDelta
		default:
			continue
		}
		s.TouchPeer(e.ID, e.Name, delta, "")
		touched++
	}

	for _, ev := range obs.Events {
		switch ev.Kind {
		case "chat":
			if ev.Actor != "" {
				s.TouchPeer(ev.Actor, "", m.pol.ChatDelta, "chatting")
				touched++
			}
		case "damage":
			// Empty target means this agent was hit.
			if ev.Target == "" && ev.Actor != "" {
				s.TouchPeer(ev.Actor, "", m.pol.DamageDelta, "fighting")
				touched++
			}
		case "break":
			if ev.Actor != "" {
				s.TouchPeer(ev.Actor, "", 0, "mining")
				touched++
			}
		case "place":
			if ev.Actor != "" {
				s.TouchPeer(ev.Actor, "", 0, "building")
				touched++
			}
		case "pickup":
			if ev.Actor != "" {
				s.TouchPeer(ev.Actor, "", 0, "gathering")
				touched++
			}
		case "trade", "give":
			if ev.Actor != "" {
				s.TouchPeer(ev.Actor, "", 0, "trading")
				touched++
			}
		}
	}

	s.DecayPeers(seen, m.pol.Decay)
	if touched == 0 {
		return Delta{}, nil
	}
	return Delta{Events: touched, Note: "relationships updated"}, nil
}
