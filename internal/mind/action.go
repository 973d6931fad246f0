package mind

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ActionKind enumerates the closed action vocabulary the controller may
// choose from. Only the bridge expands these into environment commands.
type ActionKind string

const (
	ActMoveForward ActionKind = "move_forward"
	ActMoveBack    ActionKind = "move_back"
	ActStrafeLeft  ActionKind = "strafe_left"
	ActStrafeRight ActionKind = "strafe_right"
	ActJump        ActionKind = "jump"
	ActTurnTo      ActionKind = "turn_to"
	ActPlace       ActionKind = "place"
	ActBreak       ActionKind = "break"
	ActUse         ActionKind = "use"
	ActSelectSlot  ActionKind = "select_slot"
	ActCraft       ActionKind = "craft"
	ActSay         ActionKind = "say"
	ActWait        ActionKind = "wait"
)

type Action struct {
	Kind  ActionKind `json:"kind"`
	Yaw   float64    `json:"yaw,omitempty"`   // turn_to target, degrees [0,360)
	Slot  int        `json:"slot,omitempty"`  // select_slot
	Item  string     `json:"item,omitempty"`  // craft
	Text  string     `json:"text,omitempty"`  // say
	Steps int        `json:"steps,omitempty"` // movement repeat; 0 means the bridge default
}

var ErrUnknownAction = errors.New("unknown action")

func Wait() Action { return Action{Kind: ActWait} }

func (a Action) String() string {
	switch a.Kind {
	case ActTurnTo:
		return fmt.Sprintf("turn_to %.0f", a.Yaw)
	case ActSelectSlot:
		return fmt.Sprintf("select_slot %d", a.Slot)
	case ActCraft:
		return "craft " + a.Item
	case ActSay:
		return "say " + a.Text
	default:
		return string(a.Kind)
	}
}

// Movement reports whether the action is expected to change position.
func (a Action) Movement() bool {
	switch a.Kind {
	case ActMoveForward, ActMoveBack, ActStrafeLeft, ActStrafeRight, ActJump:
		return true
	}
	return false
}

// ParseAction parses one vocabulary token with its argument. Spaces and
// underscores between the verb words are interchangeable; anything outside
// the closed set is an error.
func ParseAction(s string) (Action, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Action{}, fmt.Errorf("%w: empty", ErrUnknownAction)
	}
	fields := strings.Fields(s)
	verb := strings.ToLower(fields[0])
	// Accept "move forward" as well as "move_forward".
	if len(fields) >= 2 {
		joined := verb + "_" + strings.ToLower(fields[1])
		switch ActionKind(joined) {
		case ActMoveForward, ActMoveBack, ActStrafeLeft, ActStrafeRight, ActTurnTo, ActSelectSlot:
			verb = joined
			fields = fields[1:]
		}
	}

	rest := strings.TrimSpace(strings.TrimPrefix(s, fields[0]))
	if len(fields) > 1 {
		rest = strings.TrimSpace(strings.Join(fields[1:], " "))
	}

	switch ActionKind(verb) {
	case ActMoveForward, ActMoveBack, ActStrafeLeft, ActStrafeRight, ActJump, ActPlace, ActBreak, ActUse, ActWait:
		return Action{Kind: ActionKind(verb)}, nil
	case ActTurnTo:
		deg, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return Action{}, fmt.Errorf("%w: turn_to needs degrees, got %q", ErrUnknownAction, rest)
		}
		return Action{Kind: ActTurnTo, Yaw: normalizeYaw(deg)}, nil
	case ActSelectSlot:
		slot, err := strconv.Atoi(rest)
		if err != nil || slot < 0 || slot > 8 {
			return Action{}, fmt.Errorf("%w: select_slot needs 0..8, got %q", ErrUnknownAction, rest)
		}
		return Action{Kind: ActSelectSlot, Slot: slot}, nil
	case ActCraft:
		if rest == "" {
			return Action{}, fmt.Errorf("%w: craft needs an item", ErrUnknownAction)
		}
		return Action{Kind: ActCraft, Item: strings.ToLower(rest)}, nil
	case ActSay:
		if rest == "" {
			return Action{}, fmt.Errorf("%w: say needs text", ErrUnknownAction)
		}
		return Action{Kind: ActSay, Text: rest}, nil
	}
	return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, verb)
}

func normalizeYaw(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}

// YawDelta returns the shortest signed angular distance from one yaw to
// another in degrees, in (-180, 180].
func YawDelta(from, to float64) float64 {
	d := normalizeYaw(to) - normalizeYaw(from)
	if d > 180 {
		d -= 360
	}
	if d <= -180 {
		d += 360
	}
	return d
}
