package mind

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// DigestMaxItems bounds the memory lines in a rendered digest.
const DigestMaxItems = 10

// DigestMaxPeers bounds the relationship lines.
const DigestMaxPeers = 3

// Digest is the compact state summary fed to the reasoning oracle. It is
// built from a snapshot so rendering never touches live state.
type Digest struct {
	AgentID string
	Name    string
	Role    string

	Pos        [3]float64
	Yaw        float64
	Health     float64
	Food       float64
	Alive      bool
	ConnStatus string
	Stale      bool
	StaleFor   int

	Goal      *Goal
	GoalQueue int

	Inventory []string // rendered "item xN", sorted
	Memories  []MemoryRecord
	Peers     []Relationship

	AgentsNear   int
	HostilesNear int
	PassivesNear int
	ItemsNear    int
	Hostile      string // nearest hostile, "kind at dist"

	LastAction  *Action
	LastOutcome string
	SuccessRate float64
	FailStreak  int
}

func BuildDigest(snap Snapshot, maxItems int) Digest {
	if maxItems <= 0 {
		maxItems = DigestMaxItems
	}
	d := Digest{
		AgentID: snap.AgentID, Name: snap.Name, Role: snap.Role,
		Pos: snap.Pos, Yaw: snap.Yaw,
		Health: snap.Health, Food: snap.Food, Alive: snap.Alive,
		ConnStatus:  snap.ConnStatus,
		SuccessRate: snap.SuccessRate,
		FailStreak:  snap.FailStreak,
		LastOutcome: snap.LastOutcome,
	}
	if snap.Obs != nil {
		d.Stale = snap.Obs.Stale
		d.StaleFor = snap.Obs.StaleFor
		for _, e := range snap.Obs.Entities {
			switch e.Kind {
			case EntityAgent:
				d.AgentsNear++
			case EntityHostile:
				d.HostilesNear++
			case EntityPassive:
				d.PassivesNear++
			case EntityItem:
				d.ItemsNear++
			}
		}
		if h, dist, ok := snap.Obs.NearestByKind(EntityHostile); ok {
			d.Hostile = fmt.Sprintf("%s at %.1f", h.Raw, dist)
		}
	}
	if len(snap.Goals) > 0 {
		g := snap.Goals[0]
		d.Goal = &g
		d.GoalQueue = len(snap.Goals) - 1
	}
	if snap.LastDecision != nil {
		a := snap.LastDecision.Action
		d.LastAction = &a
	}

	items := make([]string, 0, len(snap.Inventory))
	for k := range snap.Inventory {
		items = append(items, k)
	}
	sort.Strings(items)
	for _, k := range items {
		d.Inventory = append(d.Inventory, fmt.Sprintf("%s x%d", k, snap.Inventory[k]))
	}
	if len(d.Inventory) > 8 {
		d.Inventory = d.Inventory[:8]
	}

	d.Memories = selectMemories(snap.Working, snap.Short, maxItems)
	d.Peers = topRelationships(snap.Peers, DigestMaxPeers)
	return d
}

// selectMemories takes all working records then the most important short
// ones, newest first within each group, up to max total.
func selectMemories(working, short []MemoryRecord, max int) []MemoryRecord {
	out := append([]MemoryRecord(nil), working...)
	sort.Slice(out, func(i, j int) bool { return out[i].Touched.After(out[j].Touched) })
	if len(out) > max {
		return out[:max]
	}
	rest := append([]MemoryRecord(nil), short...)
	sort.Slice(rest, func(i, j int) bool {
		if rest[i].Importance != rest[j].Importance {
			return rest[i].Importance > rest[j].Importance
		}
		return rest[i].Touched.After(rest[j].Touched)
	})
	for _, r := range rest {
		if len(out) >= max {
			break
		}
		out = append(out, r)
	}
	return out
}

// Render produces the deterministic prompt body. Hash covers exactly this
// text, so a decision's digest identifies what the oracle actually saw.
func (d Digest) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s", d.Name)
	if d.Role != "" {
		fmt.Fprintf(&b, " (%s)", d.Role)
	}
	fmt.Fprintf(&b, ". Connection: %s.\n", d.ConnStatus)
	if !d.Alive {
		b.WriteString("You are dead and waiting to respawn.\n")
	}
	fmt.Fprintf(&b, "Position: (%.1f, %.1f, %.1f), yaw %.0f. Health %.1f, food %.1f.\n",
		d.Pos[0], d.Pos[1], d.Pos[2], d.Yaw, d.Health, d.Food)
	if d.Stale {
		fmt.Fprintf(&b, "Observation: stale for %d ticks, treat positions as approximate.\n", d.StaleFor)
	} else {
		b.WriteString("Observation: live.\n")
	}

	if d.Goal != nil {
		fmt.Fprintf(&b, "Current goal: [%s] %s (priority %.2f", d.Goal.Kind, d.Goal.Text, d.Goal.Priority)
		if d.GoalQueue > 0 {
			fmt.Fprintf(&b, ", %d more queued", d.GoalQueue)
		}
		b.WriteString(")\n")
	} else {
		b.WriteString("Current goal: none.\n")
	}

	if len(d.Inventory) > 0 {
		fmt.Fprintf(&b, "Inventory: %s\n", strings.Join(d.Inventory, ", "))
	} else {
		b.WriteString("Inventory: empty.\n")
	}

	fmt.Fprintf(&b, "Nearby: %d agents, %d hostiles, %d passive mobs, %d items.\n",
		d.AgentsNear, d.HostilesNear, d.PassivesNear, d.ItemsNear)
	if d.Hostile != "" {
		fmt.Fprintf(&b, "Nearest hostile: %s.\n", d.Hostile)
	}

	for i, p := range d.Peers {
		if i == 0 {
			b.WriteString("People you know:\n")
		}
		name := p.Name
		if name == "" {
			name = p.PeerID
		}
		fmt.Fprintf(&b, "- %s: affinity %+.2f", name, p.Affinity)
		if role := p.InferredRole(); role != "" {
			fmt.Fprintf(&b, ", seems to be a %s", role)
		}
		b.WriteString("\n")
	}

	for i, m := range d.Memories {
		if i == 0 {
			b.WriteString("Recent memories:\n")
		}
		fmt.Fprintf(&b, "- [%.1f] %s: %s\n", m.Importance, m.Kind, m.Content)
	}

	if d.LastAction != nil {
		fmt.Fprintf(&b, "Last action: %s", d.LastAction.String())
		if d.LastOutcome != "" {
			fmt.Fprintf(&b, " -> %s", d.LastOutcome)
		}
		b.WriteString(".\n")
	}
	fmt.Fprintf(&b, "Action success rate %.2f, failure streak %d.\n", d.SuccessRate, d.FailStreak)
	return b.String()
}

func (d Digest) Hash() string {
	sum := sha256.Sum256([]byte(d.Render()))
	return hex.EncodeToString(sum[:])
}
