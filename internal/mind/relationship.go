package mind

import (
	"sort"
	"time"
)

// roleMinObservations is how many categorized actions a peer must show
// before a role is inferred for it.
const roleMinObservations = 5

var categoryRoles = map[string]string{
	"mining":    "miner",
	"building":  "builder",
	"trading":   "trader",
	"chatting":  "social",
	"fighting":  "fighter",
	"gathering": "gatherer",
}

// Relationship is the per-peer social model: a signed affinity in [-1, 1]
// plus counts of observed action categories for lazy role inference.
type Relationship struct {
	PeerID          string         `json:"peer_id"`
	Name            string         `json:"name,omitempty"`
	Affinity        float64        `json:"affinity"`
	Interactions    int            `json:"interactions"`
	LastInteraction time.Time      `json:"last_interaction"`
	ActionCounts    map[string]int `json:"action_counts,omitempty"`
}

// InferredRole returns the argmax action category mapped to a role name, or
// "" while fewer than roleMinObservations categorized actions are on record.
func (r *Relationship) InferredRole() string {
	total := 0
	for _, n := range r.ActionCounts {
		total += n
	}
	if total < roleMinObservations {
		return ""
	}
	best, bestN := "", 0
	for cat, n := range r.ActionCounts {
		if n > bestN || (n == bestN && cat < best) {
			best, bestN = cat, n
		}
	}
	return categoryRoles[best]
}

func (r *Relationship) clone() Relationship {
	c := *r
	if r.ActionCounts != nil {
		c.ActionCounts = make(map[string]int, len(r.ActionCounts))
		for k, v := range r.ActionCounts {
			c.ActionCounts[k] = v
		}
	}
	return c
}

func clampAffinity(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// topRelationships returns the n relationships with the strongest affinity
// magnitude, ties broken by peer ID for stable output.
func topRelationships(peers []Relationship, n int) []Relationship {
	out := append([]Relationship(nil), peers...)
	sort.Slice(out, func(i, j int) bool {
		ai, aj := abs(out[i].Affinity), abs(out[j].Affinity)
		if ai != aj {
			return ai > aj
		}
		return out[i].PeerID < out[j].PeerID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
