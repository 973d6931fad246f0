package protocol

import "encoding/json"

// OBS (server -> client): one observation frame. A frame without a self
// block is transient (the server had nothing usable for that tick); clients
// are expected to substitute their last good frame.
type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`

	Self      *SelfObs    `json:"self,omitempty"`
	Inventory []ItemStack `json:"inventory,omitempty"`
	Entities  []EntityObs `json:"entities,omitempty"`
	Events    []EventObs  `json:"events,omitempty"`

	// Side channel with ground-truth fields. Authoritative over Self and
	// Inventory when present.
	Info json.RawMessage `json:"info,omitempty"`

	Done bool `json:"done,omitempty"`
}

// Empty reports whether the frame carries no usable self state.
func (m *ObsMsg) Empty() bool { return m == nil || m.Self == nil }

type SelfObs struct {
	Pos   [3]float64 `json:"pos"`
	Yaw   float64    `json:"yaw"`
	Pitch float64    `json:"pitch"`
	HP    float64    `json:"hp"`
	Food  float64    `json:"food"`
	Alive bool       `json:"alive"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type EntityObs struct {
	ID   string     `json:"id"`
	Kind string     `json:"kind"` // env-native name, e.g. "agent", "Zombie", "Pig", "item"
	Name string     `json:"name,omitempty"`
	Pos  [3]float64 `json:"pos"`

	// Optional payload for item drops.
	Item  string `json:"item,omitempty"`
	Count int    `json:"count,omitempty"`
}

type EventObs struct {
	Kind   string  `json:"kind"` // "damage", "chat", "pickup", "death", ...
	Actor  string  `json:"actor,omitempty"`
	Target string  `json:"target,omitempty"`
	Item   string  `json:"item,omitempty"`
	Amount float64 `json:"amount,omitempty"`
	Text   string  `json:"text,omitempty"`
}

// InfoFields is the parsed form of the info side channel. Nil pointers mean
// the key was absent from the frame.
type InfoFields struct {
	Pos       *[3]float64
	Yaw       *float64
	Pitch     *float64
	HP        *float64
	Food      *float64
	Inventory []ItemStack
}

// ParseInfo decodes the loosely-keyed info blob. Position arrives as
// XPos/YPos/ZPos; vitals as Life/Food. Unknown keys are ignored.
func ParseInfo(raw json.RawMessage) (InfoFields, error) {
	var out InfoFields
	if len(raw) == 0 {
		return out, nil
	}
	var m struct {
		XPos      *float64    `json:"XPos"`
		YPos      *float64    `json:"YPos"`
		ZPos      *float64    `json:"ZPos"`
		Yaw       *float64    `json:"Yaw"`
		Pitch     *float64    `json:"Pitch"`
		Life      *float64    `json:"Life"`
		Food      *float64    `json:"Food"`
		Inventory []ItemStack `json:"inventory"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return out, err
	}
	if m.XPos != nil && m.YPos != nil && m.ZPos != nil {
		out.Pos = &[3]float64{*m.XPos, *m.YPos, *m.ZPos}
	}
	out.Yaw = m.Yaw
	out.Pitch = m.Pitch
	out.HP = m.Life
	out.Food = m.Food
	out.Inventory = m.Inventory
	return out, nil
}

// ACT (client -> server): a command sequence applied one command per env
// tick. The next OBS for the agent reflects the state after the last one.
type ActMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ActID           string   `json:"act_id"`
	Tick            uint64   `json:"tick,omitempty"`
	AgentID         string   `json:"agent_id"`
	Commands        []string `json:"commands"`
}
