package mind

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"
	"sync"
	"time"
)

type EntityKind string

const (
	EntityAgent   EntityKind = "agent"
	EntityHostile EntityKind = "hostile"
	EntityPassive EntityKind = "passive"
	EntityItem    EntityKind = "item"
	EntityUnknown EntityKind = "unknown"
)

var hostileKinds = map[string]bool{
	"zombie": true, "skeleton": true, "spider": true, "creeper": true,
	"enderman": true, "witch": true, "drowned": true, "pillager": true,
}

var passiveKinds = map[string]bool{
	"pig": true, "cow": true, "sheep": true, "chicken": true,
	"rabbit": true, "horse": true, "villager": true,
}

func CategorizeEntity(raw string) EntityKind {
	switch {
	case raw == "agent" || raw == "player":
		return EntityAgent
	case hostileKinds[raw]:
		return EntityHostile
	case passiveKinds[raw]:
		return EntityPassive
	case raw == "item" || raw == "item_stack":
		return EntityItem
	}
	return EntityUnknown
}

type Entity struct {
	ID    string
	Kind  EntityKind
	Raw   string // environment species string
	Name  string
	Pos   [3]float64
	Item  string
	Count int
}

type ObsEvent struct {
	Kind   string // "chat", "damage", "pickup", "place", "break", "craft", "death"
	Actor  string
	Target string
	Item   string
	Amount float64
	Text   string
}

// Observation is the repaired per-tick world view. Instances are immutable
// once applied to the state; modules share pointers freely.
type Observation struct {
	Tick uint64
	At   time.Time

	Pos    [3]float64
	Yaw    float64
	Pitch  float64
	Health float64
	Food   float64
	Alive  bool

	Inventory map[string]int
	Entities  []Entity
	Events    []ObsEvent

	// Stale marks a substituted copy of an older frame; StaleFor counts how
	// many consecutive ticks the substitution has run. Synthetic marks a
	// frame fabricated before any real one arrived.
	Stale     bool
	StaleFor  int
	Synthetic bool

	digestOnce sync.Once
	digest     string
}

// Digest hashes the world content only. Tick, At and the staleness markers
// are excluded, so a substituted copy of an event-free frame hashes
// identically to its source.
func (o *Observation) Digest() string {
	o.digestOnce.Do(func() {
		h := sha256.New()
		digestVec3(h, o.Pos)
		digestF64(h, o.Yaw)
		digestF64(h, o.Pitch)
		digestF64(h, o.Health)
		digestF64(h, o.Food)
		digestBool(h, o.Alive)
		digestInventory(h, o.Inventory)
		for _, e := range sortedEntities(o.Entities) {
			h.Write([]byte(e.ID))
			h.Write([]byte(e.Raw))
			h.Write([]byte(e.Item))
			digestVec3(h, e.Pos)
			digestU64(h, uint64(e.Count))
		}
		for _, ev := range o.Events {
			h.Write([]byte(ev.Kind))
			h.Write([]byte(ev.Actor))
			h.Write([]byte(ev.Target))
			h.Write([]byte(ev.Item))
			h.Write([]byte(ev.Text))
			digestF64(h, ev.Amount)
		}
		o.digest = hex.EncodeToString(h.Sum(nil))
	})
	return o.digest
}

// StaleCopy returns a substitute frame carrying this frame's content at a
// later tick.
func (o *Observation) StaleCopy(tick uint64, at time.Time, staleFor int) *Observation {
	c := &Observation{
		Tick: tick, At: at,
		Pos: o.Pos, Yaw: o.Yaw, Pitch: o.Pitch,
		Health: o.Health, Food: o.Food, Alive: o.Alive,
		Inventory: make(map[string]int, len(o.Inventory)),
		Entities:  append([]Entity(nil), o.Entities...),
		Stale:     true, StaleFor: staleFor,
	}
	for k, v := range o.Inventory {
		c.Inventory[k] = v
	}
	// Events are one-shot; a cached frame must not replay them.
	return c
}

func (o *Observation) InventoryCount(item string) int {
	if o == nil {
		return 0
	}
	return o.Inventory[item]
}

// NearestByKind returns the closest entity of the kind and its distance, or
// false when none is visible.
func (o *Observation) NearestByKind(kind EntityKind) (Entity, float64, bool) {
	best := Entity{}
	bestDist := math.MaxFloat64
	found := false
	for _, e := range o.Entities {
		if e.Kind != kind {
			continue
		}
		d := dist3(o.Pos, e.Pos)
		if d < bestDist {
			best, bestDist, found = e, d, true
		}
	}
	return best, bestDist, found
}

func sortedEntities(in []Entity) []Entity {
	out := append([]Entity(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func dist3(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func digestU64(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

func digestF64(h hash.Hash, v float64) {
	digestU64(h, math.Float64bits(v))
}

func digestVec3(h hash.Hash, v [3]float64) {
	digestF64(h, v[0])
	digestF64(h, v[1])
	digestF64(h, v[2])
}

func digestBool(h hash.Hash, v bool) {
	if v {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

func digestInventory(h hash.Hash, inv map[string]int) {
	keys := make([]string, 0, len(inv))
	for k := range inv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		digestU64(h, uint64(inv[k]))
	}
}
