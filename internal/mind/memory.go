package mind

import (
	"strings"
	"time"
)

type MemoryTier int

const (
	TierWorking MemoryTier = iota
	TierShort
	TierLong
)

func (t MemoryTier) String() string {
	switch t {
	case TierWorking:
		return "working"
	case TierShort:
		return "short"
	case TierLong:
		return "long"
	}
	return "unknown"
}

type MemoryRecord struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Content    string     `json:"content"`
	Importance float64    `json:"importance"`
	Tier       MemoryTier `json:"tier"`
	CreatedAt  time.Time  `json:"created_at"`
	Touched    time.Time  `json:"touched"`
	Touches    int        `json:"touches"`
	// Passes counts short-tier consolidation passes where the record scored
	// above the long-term threshold.
	Passes int `json:"passes,omitempty"`
}

// MemorySink receives long-tier records evicted by consolidation so they
// survive outside the in-process state.
type MemorySink interface {
	ArchiveMemory(agentID string, rec MemoryRecord)
}

var baseImportance = map[string]float64{
	"damage_taken":   0.8,
	"near_death":     0.8,
	"action_failure": 0.8,
	"item_acquired":  0.5,
	"goal_completed": 0.5,
	"agent_met":      0.5,
}

// ImportanceFor scores an event kind, boosted by word overlap between the
// content and the current goal text (+0.2 per shared word, capped at two).
func ImportanceFor(kind, content string, goal *Goal) float64 {
	imp, ok := baseImportance[kind]
	if !ok {
		imp = 0.2
	}
	if goal != nil {
		overlap := wordOverlap(content, goal.Text)
		if overlap > 2 {
			overlap = 2
		}
		imp += 0.2 * float64(overlap)
	}
	if imp > 1 {
		imp = 1
	}
	return imp
}

func wordOverlap(a, b string) int {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(a)) {
		if len(w) > 3 {
			set[strings.Trim(w, ".,:;")] = true
		}
	}
	n := 0
	seen := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(b)) {
		w = strings.Trim(w, ".,:;")
		if len(w) > 3 && set[w] && !seen[w] {
			seen[w] = true
			n++
		}
	}
	return n
}
